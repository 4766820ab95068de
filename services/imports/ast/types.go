// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast discovers module-import constructs in JavaScript source and
// models each one as an editable Unit.
//
// Three families of constructs are recognized at the top level of a file:
//
//   - static module imports:  import a, { b as c } from "m";
//   - dynamic imports:        const m = await import("m");
//   - CommonJS requires:      const m = require("m");
//
// Every Unit owns a local copy of its statement text. Edit operations
// (AddMembers, RemoveMember, RenameModule, ...) change only that local copy
// and then re-derive all structural offsets by analyzing the edited text
// again. Nothing reaches the whole-file buffer until the caller commits the
// unit through a session.
//
// # Thread Safety
//
// Analyzer is safe for concurrent use. Units are not: callers must
// serialize edits against a single Unit.
package ast

import (
	"fmt"
	"strings"
)

// =============================================================================
// Kinds and groups
// =============================================================================

// Kind is the syntactic family of an import construct.
type Kind int

const (
	// KindModule is a static `import ... from "m"` declaration.
	KindModule Kind = iota

	// KindDynamic is an `import("m")` expression inside a statement.
	KindDynamic

	// KindCommonJS is a `require("m")` call inside a statement.
	KindCommonJS
)

// AllKinds lists every kind in discovery-report order.
var AllKinds = []Kind{KindModule, KindDynamic, KindCommonJS}

// String returns "module", "dynamic", "commonjs" or "unknown".
func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindDynamic:
		return "dynamic"
	case KindCommonJS:
		return "commonjs"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind resolves a kind name. "es6" and "cjs" are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "module", "es6":
		return KindModule, nil
	case "dynamic":
		return KindDynamic, nil
	case "commonjs", "cjs":
		return KindCommonJS, nil
	default:
		return 0, NewContractError("parseKind", 0, "unknown unit kind %q", s)
	}
}

// Group selects one of the two binding groups of a module-kind unit.
type Group int

const (
	// GroupDefault holds default and namespace bindings.
	GroupDefault Group = iota

	// GroupNamed holds the bindings inside `{ ... }`.
	GroupNamed
)

// String returns "default" or "named".
func (g Group) String() string {
	if g == GroupDefault {
		return "default"
	}
	return "named"
}

// ParseGroup resolves the member selectors used by edit scripts.
//
// "defaultMember"/"defaultMembers" select GroupDefault and "member"/"members"
// select GroupNamed. The plural flag reports whether the selector addressed the
// whole group.
func ParseGroup(s string) (Group, bool, error) {
	switch s {
	case "defaultMember":
		return GroupDefault, false, nil
	case "defaultMembers":
		return GroupDefault, true, nil
	case "member":
		return GroupNamed, false, nil
	case "members":
		return GroupNamed, true, nil
	default:
		return 0, false, NewContractError("parseGroup", 0,
			"unknown member selector %q (want member, members, defaultMember or defaultMembers)", s)
	}
}

// ModuleType classifies a module specifier.
type ModuleType string

const (
	// ModuleString is a quoted string literal specifier.
	ModuleString ModuleType = "string"

	// ModuleRaw is any other expression; no static name can be resolved.
	ModuleRaw ModuleType = "raw"
)

// ParseModuleType resolves "string" or "raw".
func ParseModuleType(s string) (ModuleType, error) {
	switch ModuleType(s) {
	case ModuleString, ModuleRaw:
		return ModuleType(s), nil
	case "":
		return ModuleString, nil
	default:
		return "", NewContractError("parseModuleType", 0, "unknown module type %q (want string or raw)", s)
	}
}

// UnresolvedName is the module name recorded for raw specifiers.
const UnresolvedName = "N/A"

// defaultSeparator is used when a group has fewer than two bindings.
const defaultSeparator = ", "

// =============================================================================
// Structural records
// =============================================================================

// Span is a half-open byte interval [Start, End) relative to its owning buffer.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End - Start.
func (s Span) Len() int {
	return s.End - s.Start
}

// Alias is the local name introduced by `as`.
type Alias struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Binding is one imported name.
//
// Start/End cover the name only; AbsEnd extends over `as alias` when present.
// Last is the AbsEnd of the previous sibling and Next the Start of the next
// sibling, or -1 when there is no such sibling. Removal uses them to pick the
// separator that goes with the binding.
type Binding struct {
	Name   string `json:"name"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	AbsEnd int    `json:"absEnd"`
	Alias  *Alias `json:"alias,omitempty"`
	Index  int    `json:"index"`
	Last   int    `json:"last"`
	Next   int    `json:"next"`
}

// LocalName returns the alias if present, otherwise the name.
func (b Binding) LocalName() string {
	if b.Alias != nil {
		return b.Alias.Name
	}
	return b.Name
}

// BindingGroup is an ordered list of bindings sharing punctuation.
type BindingGroup struct {
	Bindings []Binding `json:"entities"`
	Count    int       `json:"count"`

	// Span covers the whole group; nil when the group is empty.
	Span *Span `json:"span,omitempty"`

	// Separator is the join text between the first two bindings, reused when
	// new bindings are appended.
	Separator string `json:"separator"`

	// braces covers `{ ... }` of a named group, even an empty one.
	braces *Span
}

// Names returns binding names in source order.
func (g *BindingGroup) Names() []string {
	names := make([]string, 0, len(g.Bindings))
	for _, b := range g.Bindings {
		names = append(names, b.Name)
	}
	return names
}

// ModuleDescriptor describes the module specifier of a unit.
type ModuleDescriptor struct {
	// Span of the specifier in the unit's local buffer (quotes included).
	Span Span `json:"span"`

	// Name is the final path segment, or UnresolvedName for raw specifiers.
	Name string `json:"name"`

	// Value is the unquoted specifier for strings, the source text otherwise.
	Value string `json:"value"`

	Type  ModuleType `json:"type"`
	Quote string     `json:"quote,omitempty"`
}

// Declarator records the variable a dynamic or CommonJS import is bound to.
type Declarator struct {
	Keyword string `json:"keyword"`
	Name    string `json:"name"`
}

// =============================================================================
// Unit
// =============================================================================

// Unit is one discovered import construct.
//
// Start/End locate the construct in the whole-file buffer as it was when it
// was analyzed. Code is the unit's own buffer; all other spans are relative
// to Code.
type Unit struct {
	ID   int    `json:"id"`
	Hash string `json:"hash"`
	Kind Kind   `json:"type"`

	Start int    `json:"start"`
	End   int    `json:"end"`
	Code  string `json:"code"`

	Module ModuleDescriptor `json:"module"`

	DefaultMembers BindingGroup `json:"defaultMembers"`
	Members        BindingGroup `json:"members"`

	Declarator *Declarator `json:"declarator,omitempty"`

	// keywordEnd is the end of the `import` keyword in Code (module kind).
	keywordEnd int

	retired  bool
	analyzer *Analyzer
}

// Retired reports whether the unit has been tombstoned.
func (u *Unit) Retired() bool {
	return u.retired
}

// Bare reports whether a module-kind unit imports nothing: `import "m";`.
func (u *Unit) Bare() bool {
	return u.Kind == KindModule &&
		u.DefaultMembers.Count == 0 &&
		u.Members.Count == 0 &&
		u.Members.braces == nil
}

// Group returns the binding group g of a module-kind unit.
func (u *Unit) Group(g Group) (*BindingGroup, error) {
	if u.Kind != KindModule {
		return nil, NewContractError("group", u.ID,
			"%s units have no %s members", u.Kind, g)
	}
	if g == GroupDefault {
		return &u.DefaultMembers, nil
	}
	return &u.Members, nil
}

// String returns a one-line description used in listings.
func (u *Unit) String() string {
	return fmt.Sprintf("%d %s %s %q", u.ID, u.Hash, u.Kind, u.Module.Name)
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of analyzing one file.
type Result struct {
	Module   []*Unit `json:"module"`
	Dynamic  []*Unit `json:"dynamic"`
	CommonJS []*Unit `json:"commonjs"`

	// TopOffset is where "top" statements are inserted: the start of the
	// first statement that is not a comment, or the end of the source.
	TopOffset int `json:"topOffset"`
}

// ByKind returns the units of one kind.
func (r *Result) ByKind(k Kind) []*Unit {
	switch k {
	case KindModule:
		return r.Module
	case KindDynamic:
		return r.Dynamic
	default:
		return r.CommonJS
	}
}

// Count returns the number of units of all kinds.
func (r *Result) Count() int {
	return len(r.Module) + len(r.Dynamic) + len(r.CommonJS)
}
