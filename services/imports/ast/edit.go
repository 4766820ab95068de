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
	"strings"
	"unicode"
)

// Edit operations on a unit's local buffer.
//
// Every operation splices Code and then calls update, which re-analyzes the
// whole local buffer and replaces all structural fields. Offsets are never
// patched by hand. If the spliced text does not re-analyze, the unit is left
// untouched and the error is returned.

// RenameModule replaces the module specifier.
//
// With ModuleString the new name is wrapped in the unit's quote character
// (double quote for raw specifiers). ModuleRaw inserts newName verbatim and
// is refused for module-kind units, whose specifier must be a string.
func (u *Unit) RenameModule(newName string, mode ModuleType) error {
	const op = "renameModule"
	if err := u.checkLive(op); err != nil {
		return err
	}

	var text string
	switch mode {
	case ModuleString:
		quote := u.Module.Quote
		if quote == "" {
			quote = `"`
		}
		text = quote + newName + quote
	case ModuleRaw:
		if u.Kind == KindModule {
			return NewContractError(op, u.ID, "module imports require a string specifier, raw mode is not allowed")
		}
		text = newName
	default:
		return NewContractError(op, u.ID, "unknown rename mode %q (want string or raw)", mode)
	}

	return u.update(u.splice(u.Module.Span.Start, u.Module.Span.End, text))
}

// AddDefaultMembers appends default bindings.
func (u *Unit) AddDefaultMembers(names []string) error {
	return u.addBindings("addDefaultMembers", GroupDefault, names)
}

// AddMembers appends named bindings. Entries may carry an alias ("a as b").
func (u *Unit) AddMembers(names []string) error {
	return u.addBindings("addMembers", GroupNamed, names)
}

func (u *Unit) addBindings(op string, g Group, names []string) error {
	if err := u.checkModule(op); err != nil {
		return err
	}
	if len(names) == 0 {
		return NewContractError(op, u.ID, "no member names given")
	}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return NewContractError(op, u.ID, "member names must not be empty")
		}
	}

	target, other := &u.DefaultMembers, &u.Members
	if g == GroupNamed {
		target, other = &u.Members, &u.DefaultMembers
	}
	joined := strings.Join(names, target.Separator)

	var code string
	switch {
	case target.Count > 0:
		at := target.Bindings[target.Count-1].AbsEnd
		code = u.splice(at, at, target.Separator+joined)

	case g == GroupNamed && u.Members.braces != nil:
		// `{}` is already there: fill it in place.
		code = u.splice(u.Members.braces.Start, u.Members.braces.End, "{ "+joined+" }")

	case g == GroupNamed && other.Count > 0:
		at := other.Span.End
		code = u.splice(at, at, ", { "+joined+" }")

	case g == GroupDefault && u.Members.braces != nil:
		at := u.Members.braces.Start
		code = u.splice(at, at, joined+", ")

	default:
		clause := joined
		if g == GroupNamed {
			clause = "{ " + joined + " }"
		}
		at := u.Module.Span.Start
		if at > 0 && !unicode.IsSpace(rune(u.Code[at-1])) {
			clause = " " + clause
		}
		code = u.splice(at, at, clause+" from ")
	}

	return u.update(code)
}

// RemoveMember removes one binding by exact name.
//
// Removing the last binding of a group removes the group's punctuation too.
// When no group remains the statement falls back to a bare import.
func (u *Unit) RemoveMember(g Group, name string) error {
	const op = "removeMember"
	group, b, err := u.member(op, g, name)
	if err != nil {
		return err
	}
	if group.Count == 1 {
		return u.removeGroup(op, g)
	}

	start, end := b.Start, b.Next
	if b.Next < 0 {
		start, end = b.Last, b.AbsEnd
	}
	return u.update(u.splice(start, end, ""))
}

// RemoveMembers removes a whole binding group.
func (u *Unit) RemoveMembers(g Group) error {
	return u.removeGroup("removeMembers", g)
}

func (u *Unit) removeGroup(op string, g Group) error {
	if err := u.checkModule(op); err != nil {
		return err
	}

	braces := u.Members.braces
	switch {
	case g == GroupNamed && braces == nil:
		return NewContractError(op, u.ID, "unit has no named members to remove")
	case g == GroupDefault && u.DefaultMembers.Count == 0:
		return NewContractError(op, u.ID, "unit has no default members to remove")
	}

	var code string
	switch {
	case g == GroupNamed && u.DefaultMembers.Count > 0:
		code = u.splice(u.DefaultMembers.Span.End, braces.End, "")
	case g == GroupDefault && braces != nil:
		code = u.splice(u.DefaultMembers.Span.Start, braces.Start, "")
	default:
		// Nothing would be left between `import` and the specifier.
		code = u.splice(u.keywordEnd, u.Module.Span.Start, " ")
	}
	return u.update(code)
}

// RenameMember renames a binding.
//
// With keepAlias the name span alone is overwritten and an existing alias
// survives. Without it the alias is dropped; a newName of the form
// "x as y" therefore replaces it.
func (u *Unit) RenameMember(g Group, name, newName string, keepAlias bool) error {
	const op = "renameMember"
	if strings.TrimSpace(newName) == "" {
		return NewContractError(op, u.ID, "new member name must not be empty")
	}
	_, b, err := u.member(op, g, name)
	if err != nil {
		return err
	}

	end := b.AbsEnd
	if keepAlias {
		end = b.End
	}
	return u.update(u.splice(b.Start, end, newName))
}

// SetAlias sets, replaces or (with an empty alias) removes a binding's alias.
//
// Plain default bindings cannot carry an alias; namespace bindings cannot
// lose theirs.
func (u *Unit) SetAlias(g Group, name, alias string) error {
	const op = "setAlias"
	_, b, err := u.member(op, g, name)
	if err != nil {
		return err
	}
	namespace := g == GroupDefault && b.Name == "*"
	if g == GroupDefault && !namespace {
		return NewContractError(op, u.ID, "default member %q cannot carry an alias", name)
	}

	var code string
	switch {
	case alias == "" && b.Alias == nil:
		return nil
	case alias == "" && namespace:
		return NewContractError(op, u.ID, "namespace import requires an alias")
	case alias == "":
		code = u.splice(b.End, b.AbsEnd, "")
	case b.Alias != nil:
		code = u.splice(b.Alias.Start, b.Alias.End, alias)
	default:
		code = u.splice(b.End, b.End, " as "+alias)
	}
	return u.update(code)
}

// MakeUntraceable tombstones the unit. Registry lookups by name and hash skip
// it from now on; its id stays reserved.
func (u *Unit) MakeUntraceable() {
	u.retired = true
}

// =============================================================================
// Internals
// =============================================================================

func (u *Unit) checkLive(op string) error {
	if u.retired {
		return NewContractError(op, u.ID, "unit was removed or replaced and can no longer be edited")
	}
	return nil
}

func (u *Unit) checkModule(op string) error {
	if err := u.checkLive(op); err != nil {
		return err
	}
	if u.Kind != KindModule {
		return NewContractError(op, u.ID, "%s units have no members", u.Kind)
	}
	return nil
}

// member finds exactly one binding named name in group g.
func (u *Unit) member(op string, g Group, name string) (*BindingGroup, Binding, error) {
	if err := u.checkModule(op); err != nil {
		return nil, Binding{}, err
	}
	group, err := u.Group(g)
	if err != nil {
		return nil, Binding{}, err
	}

	var found []Binding
	for _, b := range group.Bindings {
		if b.Name == name {
			found = append(found, b)
		}
	}
	switch len(found) {
	case 0:
		return nil, Binding{}, NewContractError(op, u.ID, "no %s member named %q (have %v)", g, name, group.Names())
	case 1:
		return group, found[0], nil
	default:
		return nil, Binding{}, NewContractError(op, u.ID, "%d %s members are named %q", len(found), g, name)
	}
}

func (u *Unit) splice(start, end int, text string) string {
	return u.Code[:start] + text + u.Code[end:]
}

// update re-derives every structural field from code.
func (u *Unit) update(code string) error {
	if u.analyzer == nil {
		u.analyzer = NewAnalyzer()
	}
	fresh, err := u.analyzer.AnalyzeUnit(u.Kind, code)
	if err != nil {
		return err
	}

	u.Code = fresh.Code
	u.Module = fresh.Module
	u.DefaultMembers = fresh.DefaultMembers
	u.Members = fresh.Members
	u.Declarator = fresh.Declarator
	u.keywordEnd = fresh.keywordEnd
	return nil
}

// Reanalyze re-derives the unit's structure from its current Code. It is a
// no-op on unedited units and is exposed for callers that modify Code
// directly.
func (u *Unit) Reanalyze() error {
	if err := u.checkLive("reanalyze"); err != nil {
		return err
	}
	return u.update(u.Code)
}
