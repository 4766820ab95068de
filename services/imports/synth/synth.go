// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synth builds new import statements as text.
//
// The output is plain JavaScript; nothing here parses. Callers insert the
// text through a session, which analyzes the result on the next run.
package synth

import (
	"strings"

	"github.com/AleutianAI/importmanager/services/imports/ast"
)

// DefaultQuote wraps synthesized specifiers.
const DefaultQuote = `"`

// Declarators accepted by DynamicStatement and CommonJSStatement.
var Declarators = []string{"const", "let", "var"}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithQuote sets the specifier quote. Only `"` and `'` are accepted; other
// values leave the default in place.
func WithQuote(q string) Option {
	return func(s *Synthesizer) {
		if q == `"` || q == `'` {
			s.quote = q
		}
	}
}

// Synthesizer renders import statements. The zero value is not usable; use New.
type Synthesizer struct {
	quote string
}

// New creates a Synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{quote: DefaultQuote}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote returns the configured quote character.
func (s *Synthesizer) Quote() string {
	return s.quote
}

// ModuleStatement renders `import a, { b, c } from "path";`.
//
// With both lists empty the result is the bare form `import "path";`.
// Named entries may carry an alias ("c as d").
func (s *Synthesizer) ModuleStatement(path string, defaults, named []string) (string, error) {
	const op = "makeModuleStatement"
	if err := checkPath(op, path); err != nil {
		return "", err
	}
	if err := checkNames(op, defaults); err != nil {
		return "", err
	}
	if err := checkNames(op, named); err != nil {
		return "", err
	}

	var clause []string
	if len(defaults) > 0 {
		clause = append(clause, strings.Join(defaults, ", "))
	}
	if len(named) > 0 {
		clause = append(clause, "{ "+strings.Join(named, ", ")+" }")
	}

	if len(clause) == 0 {
		return "import " + s.quoted(path) + ";", nil
	}
	return "import " + strings.Join(clause, ", ") + " from " + s.quoted(path) + ";", nil
}

// DynamicStatement renders `const name = await import("path");`, or
// `await import("path");` when declarator is empty.
func (s *Synthesizer) DynamicStatement(path, declarator, name string) (string, error) {
	const op = "makeDynamicStatement"
	if err := checkPath(op, path); err != nil {
		return "", err
	}
	call := "await import(" + s.quoted(path) + ");"
	if declarator == "" {
		return call, nil
	}
	if err := checkDeclarator(op, declarator, name); err != nil {
		return "", err
	}
	return declarator + " " + name + " = " + call, nil
}

// CommonJSStatement renders `const name = require("path");`.
func (s *Synthesizer) CommonJSStatement(path, declarator, name string) (string, error) {
	const op = "makeCommonJSStatement"
	if err := checkPath(op, path); err != nil {
		return "", err
	}
	if err := checkDeclarator(op, declarator, name); err != nil {
		return "", err
	}
	return declarator + " " + name + " = require(" + s.quoted(path) + ");", nil
}

func (s *Synthesizer) quoted(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, s.quote, `\`+s.quote)
	return s.quote + escaped + s.quote
}

func checkPath(op, path string) error {
	if strings.TrimSpace(path) == "" {
		return ast.NewContractError(op, 0, "module path must not be empty")
	}
	if strings.ContainsAny(path, "\r\n") {
		return ast.NewContractError(op, 0, "module path must be a single line")
	}
	return nil
}

func checkNames(op string, names []string) error {
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return ast.NewContractError(op, 0, "member names must not be empty")
		}
	}
	return nil
}

func checkDeclarator(op, declarator, name string) error {
	valid := false
	for _, d := range Declarators {
		if declarator == d {
			valid = true
			break
		}
	}
	if !valid {
		return ast.NewContractError(op, 0, "declarator %q is not one of %v", declarator, Declarators)
	}
	if strings.TrimSpace(name) == "" {
		return ast.NewContractError(op, 0, "a %s declaration needs a variable name", declarator)
	}
	return nil
}
