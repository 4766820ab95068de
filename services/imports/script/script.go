// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package script reads and runs YAML edit scripts against a session.
//
// A script is a list of steps. A unit step selects one unit and applies
// its actions in order; the unit is committed at the end of the step unless
// an action removed or replaced it. A statement step inserts literal or
// synthesized text.
//
//	steps:
//	  - select: {name: react, kinds: [module]}
//	    actions:
//	      - addMembers: [useMemo]
//	      - setAlias: {group: member, name: useState, alias: useLocalState}
//	  - insertStatement:
//	      position: top
//	      commonjs: {path: fs, declarator: const, name: fs}
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/importmanager/services/imports/ast"
)

// MaxScriptSize caps script files (1MB).
const MaxScriptSize = 1024 * 1024

var scriptValidate = validator.New()

// Script is a parsed edit script.
type Script struct {
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Step is either a unit step (Select + Actions) or a statement step.
type Step struct {
	Select          *Selector  `yaml:"select" validate:"omitempty"`
	Actions         []Action   `yaml:"actions" validate:"dive"`
	InsertStatement *Statement `yaml:"insertStatement" validate:"omitempty"`
}

// Selector picks one unit by name, id or hash.
type Selector struct {
	Name      string   `yaml:"name"`
	Kinds     []string `yaml:"kinds" validate:"dive,oneof=module dynamic commonjs es6 cjs"`
	ID        *int     `yaml:"id"`
	Hash      string   `yaml:"hash"`
	AllowNull bool     `yaml:"allowNull"`
}

// Action is one edit. Exactly one field is set.
type Action struct {
	RenameModule      *RenameModule `yaml:"renameModule"`
	AddMembers        []string      `yaml:"addMembers"`
	AddDefaultMembers []string      `yaml:"addDefaultMembers"`
	RemoveMember      *MemberRef    `yaml:"removeMember"`
	RemoveMembers     string        `yaml:"removeMembers"`
	RenameMember      *RenameMember `yaml:"renameMember"`
	SetAlias          *SetAlias     `yaml:"setAlias"`
	Remove            bool          `yaml:"remove"`
	Insert            *Insert       `yaml:"insert"`
}

// RenameModule replaces the module specifier.
type RenameModule struct {
	Name string `yaml:"name" validate:"required"`
	Mode string `yaml:"mode" validate:"omitempty,oneof=string raw"`
}

// MemberRef names one binding.
type MemberRef struct {
	Group string `yaml:"group" validate:"required"`
	Name  string `yaml:"name"`
}

// RenameMember renames a binding.
type RenameMember struct {
	Group     string `yaml:"group" validate:"required"`
	Name      string `yaml:"name" validate:"required"`
	NewName   string `yaml:"newName" validate:"required"`
	KeepAlias bool   `yaml:"keepAlias"`
}

// SetAlias sets or (with an empty alias) removes a binding's alias.
type SetAlias struct {
	Group string `yaml:"group" validate:"required"`
	Name  string `yaml:"name" validate:"required"`
	Alias string `yaml:"alias"`
}

// Insert places text relative to the selected unit.
type Insert struct {
	Mode string `yaml:"mode" validate:"required"`
	Text string `yaml:"text" validate:"required"`
}

// Statement inserts a whole statement. Exactly one of Text, Module, Dynamic
// and CommonJS is set.
type Statement struct {
	Position string      `yaml:"position"`
	Text     string      `yaml:"text"`
	Module   *ModuleSpec `yaml:"module"`
	Dynamic  *CallSpec   `yaml:"dynamic"`
	CommonJS *CallSpec   `yaml:"commonjs"`
}

// ModuleSpec describes a synthesized import declaration.
type ModuleSpec struct {
	Path     string   `yaml:"path" validate:"required"`
	Defaults []string `yaml:"defaults"`
	Named    []string `yaml:"named"`
}

// CallSpec describes a synthesized dynamic import or require.
type CallSpec struct {
	Path       string `yaml:"path" validate:"required"`
	Declarator string `yaml:"declarator"`
	Name       string `yaml:"name"`
}

// Parse reads a script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	var sc Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script is empty")
		}
		return nil, fmt.Errorf("unmarshaling script: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat script: %w", err)
	}
	if info.Size() > MaxScriptSize {
		return nil, fmt.Errorf("script too large: %d bytes (max %d)", info.Size(), MaxScriptSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return Parse(data)
}

// Validate checks field constraints and that every step, selector, action
// and statement sets exactly one alternative.
func (sc *Script) Validate() error {
	if err := scriptValidate.Struct(sc); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("invalid script: step %d: %w", i+1, err)
		}
	}
	return nil
}

func (st *Step) validate() error {
	switch {
	case st.Select != nil && st.InsertStatement != nil:
		return errors.New("select and insertStatement are mutually exclusive")
	case st.Select == nil && st.InsertStatement == nil:
		return errors.New("need select or insertStatement")
	case st.InsertStatement != nil && len(st.Actions) > 0:
		return errors.New("insertStatement steps take no actions")
	}

	if st.InsertStatement != nil {
		s := st.InsertStatement
		if n := count(s.Text != "", s.Module != nil, s.Dynamic != nil, s.CommonJS != nil); n != 1 {
			return fmt.Errorf("insertStatement needs exactly one of text, module, dynamic, commonjs (got %d)", n)
		}
		return nil
	}

	sel := st.Select
	if n := count(sel.Name != "", sel.ID != nil, sel.Hash != ""); n != 1 {
		return fmt.Errorf("select needs exactly one of name, id, hash (got %d)", n)
	}
	if len(sel.Kinds) > 0 && sel.Name == "" {
		return errors.New("kinds only apply to selection by name")
	}
	for j, a := range st.Actions {
		if n := a.count(); n != 1 {
			return fmt.Errorf("action %d sets %d operations, want exactly one", j+1, n)
		}
	}
	return nil
}

func (a *Action) count() int {
	return count(
		a.RenameModule != nil,
		a.AddMembers != nil,
		a.AddDefaultMembers != nil,
		a.RemoveMember != nil,
		a.RemoveMembers != "",
		a.RenameMember != nil,
		a.SetAlias != nil,
		a.Remove,
		a.Insert != nil,
	)
}

func count(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// kinds resolves the selector's kind filter.
func (sel *Selector) kinds() ([]ast.Kind, error) {
	kinds := make([]ast.Kind, 0, len(sel.Kinds))
	for _, s := range sel.Kinds {
		k, err := ast.ParseKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
