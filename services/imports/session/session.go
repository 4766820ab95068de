// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session ties analysis, identity and editing of one file together.
//
// A Session analyzes a file once, indexes its units, and writes unit edits
// and synthesized statements back into a whole-file buffer. The buffer is
// addressed in original offsets throughout, so commits, removals and
// insertions can happen in any order.
//
// Thread Safety: a Session is not safe for concurrent use. Sessions for
// different files are independent and may run in parallel; they share only
// the injected advisory.Advisor.
package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/importmanager/services/imports/advisory"
	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/buffer"
	"github.com/AleutianAI/importmanager/services/imports/registry"
	"github.com/AleutianAI/importmanager/services/imports/synth"
)

// InsertMode selects where InsertAtUnit places text relative to a unit.
type InsertMode string

const (
	InsertAppend  InsertMode = "append"
	InsertPrepend InsertMode = "prepend"
	InsertReplace InsertMode = "replace"
)

// ParseInsertMode validates a mode string.
func ParseInsertMode(s string) (InsertMode, error) {
	switch m := InsertMode(strings.ToLower(strings.TrimSpace(s))); m {
	case InsertAppend, InsertPrepend, InsertReplace:
		return m, nil
	default:
		return "", ast.NewContractError("insertAtUnit", 0, "invalid insert mode %q (want append, prepend or replace)", s)
	}
}

// PositionTop inserts a statement before the first non-comment statement.
// Any other position inserts after the last live module import.
const PositionTop = "top"

type options struct {
	analyzer     *ast.Analyzer
	registryOpts []registry.Option
	synth        *synth.Synthesizer
	advisor      *advisory.Advisor
	logger       *slog.Logger
}

// Option configures a Session.
type Option func(*options)

// WithAnalyzer sets the analyzer. Defaults to ast.NewAnalyzer().
func WithAnalyzer(a *ast.Analyzer) Option {
	return func(o *options) {
		o.analyzer = a
	}
}

// WithRegistryOptions passes options to the session's registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, opts...)
	}
}

// WithSynthesizer sets the statement synthesizer. Defaults to synth.New().
func WithSynthesizer(s *synth.Synthesizer) Option {
	return func(o *options) {
		o.synth = s
	}
}

// WithAdvisor shares a process-wide advisor. Without one, the session gets
// a private advisor and duplicate warnings are only deduplicated per file.
func WithAdvisor(a *advisory.Advisor) Option {
	return func(o *options) {
		o.advisor = a
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Session is the editing context for one file.
type Session struct {
	id        string
	filename  string
	topOffset int

	registry *registry.Registry
	synth    *synth.Synthesizer
	buf      *buffer.Buffer
	logger   *slog.Logger

	// newline is the file's line break, "\r\n" or "\n".
	newline string
	// joined maps the start of a removed final line to the offset of the
	// line break before it, which the removal also deleted.
	joined map[int]int
}

// Open analyzes content and indexes its units.
//
// # Description
//
// Parses the file, assigns ids and hashes to every discovered unit and
// prepares an empty edit buffer. Hash collisions are reported through the
// advisor as warnings.
//
// # Inputs
//
//   - ctx: Context for cancellation of the analysis.
//   - content: Source text.
//   - filename: Salts unit hashes and labels diagnostics and diffs.
//
// # Outputs
//
//   - *Session: Ready for selection and editing.
//   - error: ast.SyntaxError, ast.ErrFileTooLarge, ast.ErrInvalidContent or
//     a context error.
func Open(ctx context.Context, content []byte, filename string, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.analyzer == nil {
		o.analyzer = ast.NewAnalyzer(ast.WithLogger(o.logger))
	}
	if o.synth == nil {
		o.synth = synth.New()
	}
	if o.advisor == nil {
		adv, err := advisory.New(advisory.DefaultCacheSize, advisory.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.advisor = adv
	}

	result, err := o.analyzer.Analyze(ctx, content, filename)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := o.logger.With(slog.String("session", id), slog.String("file", filename))

	reg := registry.New(filename, append(o.registryOpts, registry.WithWarner(o.advisor))...)
	reg.Index(result)

	sessionsOpened.Inc()
	logger.Debug("session opened",
		slog.Int("module", len(result.Module)),
		slog.Int("dynamic", len(result.Dynamic)),
		slog.Int("commonjs", len(result.CommonJS)),
	)

	return &Session{
		id:        id,
		filename:  filename,
		topOffset: result.TopOffset,
		registry:  reg,
		synth:     o.synth,
		buf:       buffer.New(string(content)),
		logger:    logger,
		newline:   lineBreak(content),
		joined:    make(map[int]int),
	}, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Filename returns the file the session edits.
func (s *Session) Filename() string { return s.filename }

// TopOffset returns where "top" statements are inserted.
func (s *Session) TopOffset() int { return s.topOffset }

// Original returns the unedited source.
func (s *Session) Original() string { return s.buf.Original() }

// Code returns the edited source.
func (s *Session) Code() string { return s.buf.String() }

// Modified reports whether anything was written to the buffer.
func (s *Session) Modified() bool { return s.buf.Modified() }

// EditMap returns every buffer edit with original and new offsets.
func (s *Session) EditMap() []buffer.Edit { return s.buf.EditMap() }

// Diff renders the edits as a unified diff. Returns "" if nothing changed.
func (s *Session) Diff() (string, error) { return s.buf.UnifiedDiff(s.filename) }

// Units lists every unit, retired ones included, by kind then id.
func (s *Session) Units() []*ast.Unit { return s.registry.Units() }

// Count returns the number of live units of a kind.
func (s *Session) Count(kind ast.Kind) int { return s.registry.Count(kind) }

// =============================================================================
// Selection
// =============================================================================

// SelectByName selects the single live unit whose module name matches.
// Kinds restrict the search; none means all kinds.
func (s *Session) SelectByName(name string, kinds []ast.Kind, allowNull bool) (*ast.Unit, error) {
	u, err := s.registry.SelectByName(name, kinds, allowNull)
	recordSelection("name", u, err)
	return u, err
}

// SelectByID selects a unit by id. A retired id is a ContractError.
func (s *Session) SelectByID(id int, allowNull bool) (*ast.Unit, error) {
	u, err := s.registry.SelectByID(id, allowNull)
	recordSelection("id", u, err)
	return u, err
}

// SelectByHash selects a live unit by hash.
func (s *Session) SelectByHash(hash string, allowNull bool) (*ast.Unit, error) {
	u, err := s.registry.SelectByHash(hash, allowNull)
	recordSelection("hash", u, err)
	return u, err
}

// =============================================================================
// Commit and removal
// =============================================================================

// Commit writes the unit's local buffer over its original span. Committing
// again replaces the previous commit.
func (s *Session) Commit(u *ast.Unit) error {
	const op = "commit"
	err := s.commit(op, u)
	recordOperation(op, err)
	return err
}

func (s *Session) commit(op string, u *ast.Unit) error {
	if err := s.checkUnit(op, u); err != nil {
		return err
	}
	if err := s.buf.Overwrite(u.Start, u.End, u.Code); err != nil {
		return ast.NewContractError(op, u.ID, "%v", err)
	}
	s.logger.Debug("unit committed", slog.Int("unit", u.ID), slog.String("hash", u.Hash))
	return nil
}

// Remove deletes the unit's original span, plus one trailing newline, and
// retires the unit. A unit on the last line of the file takes the line break
// before it instead, unless that break already carries another edit.
func (s *Session) Remove(u *ast.Unit) error {
	const op = "remove"
	err := s.remove(op, u)
	recordOperation(op, err)
	return err
}

func (s *Session) remove(op string, u *ast.Unit) error {
	if err := s.checkUnit(op, u); err != nil {
		return err
	}
	start, end := u.Start, s.lineEnd(u.End)
	if s.lastLine(u.End) {
		end = u.End
		if p := s.lineBreakBefore(start); p < start && s.buf.Untouched(p, start) {
			start = p
		}
	}
	if err := s.buf.Remove(start, end); err != nil {
		return ast.NewContractError(op, u.ID, "%v", err)
	}
	if start < u.Start {
		s.joined[u.Start] = start
	}
	s.registry.Retire(u)
	s.logger.Debug("unit removed", slog.Int("unit", u.ID), slog.String("module", u.Module.Name))
	return nil
}

// =============================================================================
// Insertion
// =============================================================================

// InsertAtUnit places text relative to a unit.
//
// Append inserts on the line after the unit, prepend on the line before.
// Replace substitutes the unit's span with text (minus one trailing newline)
// and retires the unit.
func (s *Session) InsertAtUnit(u *ast.Unit, mode InsertMode, text string) error {
	const op = "insertAtUnit"
	err := s.insertAtUnit(op, u, mode, text)
	recordOperation(op, err)
	return err
}

func (s *Session) insertAtUnit(op string, u *ast.Unit, mode InsertMode, text string) error {
	if err := s.checkUnit(op, u); err != nil {
		return err
	}

	var err error
	switch mode {
	case InsertAppend:
		err = s.insertAfter(u.End, text)
	case InsertPrepend:
		err = s.insertLine(u.Start, trimNewline(text))
	case InsertReplace:
		if err = s.buf.Overwrite(u.Start, u.End, trimNewline(text)); err == nil {
			s.registry.Retire(u)
		}
	default:
		return ast.NewContractError(op, u.ID, "invalid insert mode %q (want append, prepend or replace)", mode)
	}
	if err != nil {
		return ast.NewContractError(op, u.ID, "%v", err)
	}
	return nil
}

// InsertStatement inserts a whole statement into the file.
//
// PositionTop inserts before the first non-comment statement, keeping any
// leading comment or hashbang in place. Any other position inserts after
// the last live module import, or at the top when there is none.
func (s *Session) InsertStatement(text, position string) error {
	const op = "insertStatement"
	err := s.insertStatement(op, text, position)
	recordOperation(op, err)
	return err
}

func (s *Session) insertStatement(op, text, position string) error {
	if strings.TrimSpace(text) == "" {
		return ast.NewContractError(op, 0, "statement text must not be empty")
	}
	text = trimNewline(text)

	var err error
	last := s.registry.LastLive(ast.KindModule)
	if position == PositionTop || last == nil {
		err = s.insertTop(text)
	} else {
		err = s.buf.Insert(last.End, s.newline+text)
	}
	if err != nil {
		return ast.NewContractError(op, 0, "%v", err)
	}
	return nil
}

func (s *Session) insertTop(text string) error {
	at := s.topOffset
	original := s.buf.Original()
	if at == len(original) && at > 0 && original[at-1] != '\n' {
		return s.buf.Insert(at, s.newline+text+s.newline)
	}
	return s.insertLine(at, text)
}

// insertAfter inserts text on its own line after offset end.
func (s *Session) insertAfter(end int, text string) error {
	text = trimNewline(text)
	if next := s.lineEnd(end); next > end {
		return s.insertLine(next, text)
	}
	return s.buf.Insert(end, s.newline+text)
}

// insertLine inserts text as a whole line starting at line start at. If the
// line break before at went with a removed final line, the text goes in
// front of that removal, led by its own line break.
func (s *Session) insertLine(at int, text string) error {
	if p, ok := s.joined[at]; ok {
		return s.buf.Insert(p, s.newline+text)
	}
	return s.buf.Insert(at, text+s.newline)
}

// lineEnd skips one line break ("\n" or "\r\n") at end, if present.
func (s *Session) lineEnd(end int) int {
	rest := s.buf.Original()[end:]
	switch {
	case strings.HasPrefix(rest, "\r\n"):
		return end + 2
	case strings.HasPrefix(rest, "\n"):
		return end + 1
	}
	return end
}

// lineBreakBefore returns the offset of the line break ending right at
// start, or start when there is none.
func (s *Session) lineBreakBefore(start int) int {
	head := s.buf.Original()[:start]
	switch {
	case strings.HasSuffix(head, "\r\n"):
		return start - 2
	case strings.HasSuffix(head, "\n"):
		return start - 1
	}
	return start
}

// lastLine reports whether nothing follows the line ending at end: the file
// ends there without a line break, or the following break was taken by the
// removal of the line after it.
func (s *Session) lastLine(end int) bool {
	next := s.lineEnd(end)
	if next == end {
		return end == s.buf.Len()
	}
	_, taken := s.joined[next]
	return taken
}

func lineBreak(content []byte) string {
	if bytes.Contains(content, []byte("\r\n")) {
		return "\r\n"
	}
	return "\n"
}

// trimNewline drops one trailing line break.
func trimNewline(text string) string {
	if t, ok := strings.CutSuffix(text, "\r\n"); ok {
		return t
	}
	return strings.TrimSuffix(text, "\n")
}

// =============================================================================
// Synthesis
// =============================================================================

// MakeModuleStatement renders `import a, { b } from "path";`.
func (s *Session) MakeModuleStatement(path string, defaults, named []string) (string, error) {
	return s.synth.ModuleStatement(path, defaults, named)
}

// MakeDynamicStatement renders `const name = await import("path");`.
func (s *Session) MakeDynamicStatement(path, declarator, name string) (string, error) {
	return s.synth.DynamicStatement(path, declarator, name)
}

// MakeCommonJSStatement renders `const name = require("path");`.
func (s *Session) MakeCommonJSStatement(path, declarator, name string) (string, error) {
	return s.synth.CommonJSStatement(path, declarator, name)
}

// =============================================================================
// Internals
// =============================================================================

func (s *Session) checkUnit(op string, u *ast.Unit) error {
	if u == nil {
		return ast.NewContractError(op, 0, "no unit given")
	}
	if u.Retired() {
		return ast.NewContractError(op, u.ID, "unit was removed or replaced")
	}
	for _, own := range s.registry.Units() {
		if own == u {
			return nil
		}
	}
	return ast.NewContractError(op, u.ID, "unit does not belong to %s", s.filename)
}

// String summarizes the session for logs.
func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s): %d module, %d dynamic, %d commonjs",
		s.id, s.filename,
		s.Count(ast.KindModule), s.Count(ast.KindDynamic), s.Count(ast.KindCommonJS))
}

// =============================================================================
// Listing
// =============================================================================

// UnitView is the listing form of a unit.
type UnitView struct {
	ID       int      `json:"id"`
	Hash     string   `json:"hash"`
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Type     string   `json:"type"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Code     string   `json:"code"`
	Defaults []string `json:"defaults,omitempty"`
	Members  []string `json:"members,omitempty"`
	Retired  bool     `json:"retired,omitempty"`
}

// Listing describes every unit, retired ones included, by kind then id.
func (s *Session) Listing() []UnitView {
	units := s.Units()
	views := make([]UnitView, 0, len(units))
	for _, u := range units {
		views = append(views, UnitView{
			ID:       u.ID,
			Hash:     u.Hash,
			Kind:     u.Kind.String(),
			Name:     u.Module.Name,
			Value:    u.Module.Value,
			Type:     string(u.Module.Type),
			Start:    u.Start,
			End:      u.End,
			Code:     u.Code,
			Defaults: u.DefaultMembers.Names(),
			Members:  u.Members.Names(),
			Retired:  u.Retired(),
		})
	}
	return views
}
