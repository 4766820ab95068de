// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultMaxFileSize is the default upper bound for analyzed content.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the size above which a warning is logged.
	WarnFileSize = 1024 * 1024
)

// AnalyzerOption configures an Analyzer instance.
type AnalyzerOption func(*Analyzer)

// WithMaxFileSize sets the maximum content size the analyzer will accept.
// Non-positive values are ignored.
func WithMaxFileSize(bytes int64) AnalyzerOption {
	return func(a *Analyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger used for size warnings.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Analyzer discovers import units with tree-sitter's JavaScript grammar.
//
// Description:
//
//	Analyze walks the top-level statements of a file. Import declarations
//	become module-kind units. Variable declarations and expression
//	statements are searched depth-first for the first `import(...)` or
//	`require(...)` call; only that first call is extracted per statement.
//
//	AnalyzeUnit re-runs the same extraction on a single statement and is
//	what keeps a unit's offsets valid after every edit.
//
// Thread Safety:
//
//	Analyzer instances are safe for concurrent use. Each call creates its own
//	tree-sitter parser.
type Analyzer struct {
	maxFileSize int64
	logger      *slog.Logger
}

// NewAnalyzer creates an Analyzer with default limits.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze discovers all import units of a file.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before parsing; tree-sitter
//     parsing itself is not interruptible.
//   - content: Source bytes. Must be valid UTF-8.
//   - filePath: Used for diagnostics only.
//
// Outputs:
//   - *Result: Units per kind in discovery order. IDs and hashes are not
//     assigned here; see the registry package.
//   - error: SyntaxError if the source does not parse, ErrFileTooLarge,
//     ErrInvalidContent, or a context error.
func (a *Analyzer) Analyze(ctx context.Context, content []byte, filePath string) (*Result, error) {
	started := time.Now()
	ctx, span := startAnalyzeSpan(ctx, filePath, len(content))
	defer span.End()

	result, err := a.analyze(ctx, content, filePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordAnalyzeMetrics(ctx, time.Since(started), 0, false)
		return nil, err
	}

	setAnalyzeSpanResult(span, result)
	recordAnalyzeMetrics(ctx, time.Since(started), result.Count(), true)
	return result, nil
}

func (a *Analyzer) analyze(ctx context.Context, content []byte, filePath string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze canceled before start: %w", err)
	}
	if int64(len(content)) > a.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), a.maxFileSize)
	}
	if len(content) > WarnFileSize {
		a.logger.Warn("analyzing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	tree, err := parse(ctx, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if err := checkSyntax(root, filePath); err != nil {
		return nil, err
	}

	result := &Result{
		Module:    make([]*Unit, 0),
		Dynamic:   make([]*Unit, 0),
		CommonJS:  make([]*Unit, 0),
		TopOffset: len(content),
	}

	topFound := false
	for i := 0; i < int(root.ChildCount()); i++ {
		stmt := root.Child(i)
		if stmt == nil || isTrivia(stmt) {
			continue
		}
		if !topFound {
			result.TopOffset = int(stmt.StartByte())
			topFound = true
		}

		unit := a.extract(stmt, content)
		if unit == nil {
			continue
		}
		switch unit.Kind {
		case KindModule:
			result.Module = append(result.Module, unit)
		case KindDynamic:
			result.Dynamic = append(result.Dynamic, unit)
		case KindCommonJS:
			result.CommonJS = append(result.CommonJS, unit)
		}
	}

	return result, nil
}

// AnalyzeUnit re-derives a unit of the given kind from a single statement.
//
// The returned unit has Start 0 and End len(code); every span is relative to
// code. It fails with a SyntaxError if code does not parse and with a
// ContractError if code no longer holds a construct of the given kind.
func (a *Analyzer) AnalyzeUnit(kind Kind, code string) (*Unit, error) {
	ctx := context.Background()
	unit, err := a.analyzeUnit(ctx, kind, code)
	recordReanalyze(ctx, kind, err == nil)
	return unit, err
}

func (a *Analyzer) analyzeUnit(ctx context.Context, kind Kind, code string) (*Unit, error) {
	content := []byte(code)
	tree, err := parse(ctx, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if err := checkSyntax(root, "<unit>"); err != nil {
		return nil, err
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		stmt := root.Child(i)
		if stmt == nil || isTrivia(stmt) {
			continue
		}
		unit := a.extract(stmt, content)
		if unit == nil || unit.Kind != kind {
			break
		}
		return unit, nil
	}
	return nil, NewContractError("analyzeUnit", 0, "code no longer holds a %s import: %q", kind, code)
}

// parse runs tree-sitter with the JavaScript grammar.
func parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	return tree, nil
}

// checkSyntax fails with a SyntaxError at the first ERROR or MISSING node.
func checkSyntax(root *sitter.Node, filePath string) error {
	if root == nil {
		return &SyntaxError{FilePath: filePath, Message: "tree-sitter returned nil root node"}
	}
	errNode := findFirstError(root)
	if errNode == nil {
		if root.HasError() {
			return &SyntaxError{FilePath: filePath, Message: "source contains syntax errors"}
		}
		return nil
	}

	pos := errNode.StartPoint()
	msg := "unexpected token"
	if errNode.IsMissing() {
		msg = fmt.Sprintf("missing %s", errNode.Type())
	}
	return &SyntaxError{
		FilePath: filePath,
		Line:     int(pos.Row) + 1,
		Column:   int(pos.Column) + 1,
		Message:  msg,
	}
}

// findFirstError finds the first error node in the tree.
func findFirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findFirstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func isTrivia(node *sitter.Node) bool {
	switch node.Type() {
	case nodeComment, nodeHashBang:
		return true
	}
	return false
}

// extract builds a unit from one top-level statement, or returns nil.
func (a *Analyzer) extract(stmt *sitter.Node, content []byte) *Unit {
	switch stmt.Type() {
	case nodeImportStatement:
		return a.moduleUnit(stmt, content)
	case nodeLexicalDeclaration, nodeVariableDeclaration, nodeExpressionStatement:
		call, kind := findImportCall(stmt, content)
		if call == nil {
			return nil
		}
		return a.callUnit(stmt, call, kind, content)
	}
	return nil
}

// newUnit seeds a unit with the statement's span and text.
func (a *Analyzer) newUnit(kind Kind, stmt *sitter.Node, content []byte) *Unit {
	start, end := int(stmt.StartByte()), int(stmt.EndByte())
	return &Unit{
		Kind:           kind,
		Start:          start,
		End:            end,
		Code:           string(content[start:end]),
		DefaultMembers: BindingGroup{Separator: defaultSeparator},
		Members:        BindingGroup{Separator: defaultSeparator},
		analyzer:       a,
	}
}

// =============================================================================
// Module-kind extraction
// =============================================================================

func (a *Analyzer) moduleUnit(stmt *sitter.Node, content []byte) *Unit {
	unit := a.newUnit(KindModule, stmt, content)
	base := unit.Start

	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		switch child.Type() {
		case nodeImport:
			unit.keywordEnd = int(child.EndByte()) - base
		case nodeImportClause:
			readImportClause(child, content, base, unit)
		}
	}

	unit.Module = describeModule(stmt.ChildByFieldName(fieldSource), content, base, 0)
	return unit
}

// readImportClause fills both binding groups from an import_clause node.
func readImportClause(clause *sitter.Node, content []byte, base int, unit *Unit) {
	var defaults []Binding

	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case nodeIdentifier:
			start, end := local(child, base)
			defaults = append(defaults, Binding{
				Name:   child.Content(content),
				Start:  start,
				End:    end,
				AbsEnd: end,
			})
		case nodeNamespaceImport:
			start, end := local(child, base)
			b := Binding{Name: "*", Start: start, End: start + 1, AbsEnd: end}
			if n := int(child.NamedChildCount()); n > 0 {
				ident := child.NamedChild(n - 1)
				aStart, aEnd := local(ident, base)
				b.Alias = &Alias{Name: ident.Content(content), Start: aStart, End: aEnd}
			}
			defaults = append(defaults, b)
		case nodeNamedImports:
			start, end := local(child, base)
			braces := &Span{Start: start, End: end}
			unit.Members = newGroup(readNamedImports(child, content, base), unit.Code)
			unit.Members.braces = braces
			if unit.Members.Count > 0 {
				unit.Members.Span = braces
			}
		}
	}

	unit.DefaultMembers = newGroup(defaults, unit.Code)
}

func readNamedImports(node *sitter.Node, content []byte, base int) []Binding {
	var bindings []Binding
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		if spec.Type() != nodeImportSpecifier {
			continue
		}

		nameNode := spec.ChildByFieldName(fieldName)
		if nameNode == nil && spec.NamedChildCount() > 0 {
			nameNode = spec.NamedChild(0)
		}
		if nameNode == nil {
			continue
		}
		start, end := local(nameNode, base)
		_, absEnd := local(spec, base)
		b := Binding{
			Name:   nameNode.Content(content),
			Start:  start,
			End:    end,
			AbsEnd: absEnd,
		}

		aliasNode := spec.ChildByFieldName(fieldAlias)
		if aliasNode == nil && spec.NamedChildCount() > 1 {
			aliasNode = spec.NamedChild(int(spec.NamedChildCount()) - 1)
		}
		if aliasNode != nil {
			aStart, aEnd := local(aliasNode, base)
			b.Alias = &Alias{Name: aliasNode.Content(content), Start: aStart, End: aEnd}
		}
		bindings = append(bindings, b)
	}
	return bindings
}

// newGroup links siblings and infers the separator from the first pair.
func newGroup(bindings []Binding, code string) BindingGroup {
	group := BindingGroup{
		Bindings:  bindings,
		Count:     len(bindings),
		Separator: defaultSeparator,
	}
	for i := range bindings {
		bindings[i].Index = i
		bindings[i].Last = -1
		bindings[i].Next = -1
		if i > 0 {
			bindings[i].Last = bindings[i-1].AbsEnd
		}
		if i < len(bindings)-1 {
			bindings[i].Next = bindings[i+1].Start
		}
	}
	if len(bindings) > 0 {
		group.Span = &Span{Start: bindings[0].Start, End: bindings[len(bindings)-1].AbsEnd}
	}
	if len(bindings) > 1 {
		group.Separator = code[bindings[0].AbsEnd:bindings[1].Start]
	}
	return group
}

// =============================================================================
// Dynamic and CommonJS extraction
// =============================================================================

// findImportCall searches depth-first, in source order, for the first
// `import(...)` or `require(...)` call below node.
func findImportCall(node *sitter.Node, content []byte) (*sitter.Node, Kind) {
	if node.Type() == nodeCallExpression {
		if fn := node.ChildByFieldName(fieldFunction); fn != nil {
			switch {
			case fn.Type() == nodeImport:
				return node, KindDynamic
			case fn.Type() == nodeIdentifier && fn.Content(content) == requireIdent:
				return node, KindCommonJS
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if call, kind := findImportCall(node.NamedChild(i), content); call != nil {
			return call, kind
		}
	}
	return nil, 0
}

func (a *Analyzer) callUnit(stmt, call *sitter.Node, kind Kind, content []byte) *Unit {
	unit := a.newUnit(kind, stmt, content)
	base := unit.Start

	var arg *sitter.Node
	args := call.ChildByFieldName(fieldArguments)
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			if c := args.NamedChild(i); c.Type() != nodeComment {
				arg = c
				break
			}
		}
	}

	// `require()` without arguments: an empty raw specifier just inside "(".
	emptyAt := 0
	if args != nil {
		emptyAt = int(args.StartByte()) - base + 1
	}
	unit.Module = describeModule(arg, content, base, emptyAt)
	unit.Declarator = declaratorOf(stmt, content)
	return unit
}

func declaratorOf(stmt *sitter.Node, content []byte) *Declarator {
	if stmt.Type() != nodeLexicalDeclaration && stmt.Type() != nodeVariableDeclaration {
		return nil
	}
	d := &Declarator{}
	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		if i == 0 {
			d.Keyword = child.Type()
		}
		if child.Type() == nodeVariableDeclarator {
			if name := child.ChildByFieldName(fieldName); name != nil {
				d.Name = name.Content(content)
			}
			break
		}
	}
	return d
}

// =============================================================================
// Helpers
// =============================================================================

// describeModule classifies a specifier node. A nil node yields an empty raw
// descriptor at emptyAt.
func describeModule(node *sitter.Node, content []byte, base, emptyAt int) ModuleDescriptor {
	if node == nil {
		return ModuleDescriptor{
			Span: Span{Start: emptyAt, End: emptyAt},
			Name: UnresolvedName,
			Type: ModuleRaw,
		}
	}

	start, end := local(node, base)
	text := node.Content(content)
	if node.Type() != nodeString || len(text) < 2 {
		return ModuleDescriptor{
			Span:  Span{Start: start, End: end},
			Name:  UnresolvedName,
			Value: text,
			Type:  ModuleRaw,
		}
	}

	value := text[1 : len(text)-1]
	return ModuleDescriptor{
		Span:  Span{Start: start, End: end},
		Name:  ShortName(value),
		Value: value,
		Type:  ModuleString,
		Quote: text[:1],
	}
}

// ShortName returns the final path segment of a module specifier:
// "./lib/util.js" -> "util.js", "@scope/pkg" -> "pkg", "fs" -> "fs".
func ShortName(specifier string) string {
	trimmed := strings.TrimRight(specifier, "/")
	if trimmed == "" {
		return specifier
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// local converts a node's absolute byte range to one relative to base.
func local(node *sitter.Node, base int) (int, int) {
	return int(node.StartByte()) - base, int(node.EndByte()) - base
}
