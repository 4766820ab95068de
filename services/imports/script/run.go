// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package script

import (
	"fmt"

	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/session"
)

// Report counts what a run did.
type Report struct {
	Steps     int `json:"steps"`
	Skipped   int `json:"skipped"`
	Committed int `json:"committed"`
	Removed   int `json:"removed"`
	Replaced  int `json:"replaced"`
	Inserted  int `json:"inserted"`
}

// Run applies the script to s.
//
// The first error aborts the run and is returned wrapped with its step
// number; errors.Is and errors.As see through the wrapping. Edits made by
// earlier steps stay in the session buffer. Steps whose selection found
// nothing under allowNull are skipped.
func Run(s *session.Session, sc *Script) (*Report, error) {
	report := &Report{}
	for i := range sc.Steps {
		if err := runStep(s, &sc.Steps[i], report); err != nil {
			return report, fmt.Errorf("step %d: %w", i+1, err)
		}
		report.Steps++
	}
	return report, nil
}

func runStep(s *session.Session, st *Step, report *Report) error {
	if st.InsertStatement != nil {
		text, err := statementText(s, st.InsertStatement)
		if err != nil {
			return err
		}
		if err := s.InsertStatement(text, st.InsertStatement.Position); err != nil {
			return err
		}
		report.Inserted++
		return nil
	}

	u, err := selectUnit(s, st.Select)
	if err != nil {
		return err
	}
	if u == nil {
		report.Skipped++
		return nil
	}

	edited := false
	for j := range st.Actions {
		changed, err := apply(s, u, &st.Actions[j], report)
		if err != nil {
			return fmt.Errorf("action %d: %w", j+1, err)
		}
		edited = edited || changed
	}

	if edited && !u.Retired() {
		if err := s.Commit(u); err != nil {
			return err
		}
		report.Committed++
	}
	return nil
}

func selectUnit(s *session.Session, sel *Selector) (*ast.Unit, error) {
	switch {
	case sel.ID != nil:
		return s.SelectByID(*sel.ID, sel.AllowNull)
	case sel.Hash != "":
		return s.SelectByHash(sel.Hash, sel.AllowNull)
	default:
		kinds, err := sel.kinds()
		if err != nil {
			return nil, err
		}
		return s.SelectByName(sel.Name, kinds, sel.AllowNull)
	}
}

// apply runs one action and reports whether it edited the unit's local
// buffer.
func apply(s *session.Session, u *ast.Unit, a *Action, report *Report) (bool, error) {
	switch {
	case a.RenameModule != nil:
		mode, err := ast.ParseModuleType(a.RenameModule.Mode)
		if err != nil {
			return false, err
		}
		return true, u.RenameModule(a.RenameModule.Name, mode)

	case a.AddMembers != nil:
		return true, u.AddMembers(a.AddMembers)

	case a.AddDefaultMembers != nil:
		return true, u.AddDefaultMembers(a.AddDefaultMembers)

	case a.RemoveMember != nil:
		g, plural, err := ast.ParseGroup(a.RemoveMember.Group)
		if err != nil {
			return false, err
		}
		if plural && a.RemoveMember.Name == "" {
			return true, u.RemoveMembers(g)
		}
		return true, u.RemoveMember(g, a.RemoveMember.Name)

	case a.RemoveMembers != "":
		g, _, err := ast.ParseGroup(a.RemoveMembers)
		if err != nil {
			return false, err
		}
		return true, u.RemoveMembers(g)

	case a.RenameMember != nil:
		g, _, err := ast.ParseGroup(a.RenameMember.Group)
		if err != nil {
			return false, err
		}
		return true, u.RenameMember(g, a.RenameMember.Name, a.RenameMember.NewName, a.RenameMember.KeepAlias)

	case a.SetAlias != nil:
		g, _, err := ast.ParseGroup(a.SetAlias.Group)
		if err != nil {
			return false, err
		}
		return true, u.SetAlias(g, a.SetAlias.Name, a.SetAlias.Alias)

	case a.Remove:
		if err := s.Remove(u); err != nil {
			return false, err
		}
		report.Removed++
		return false, nil

	case a.Insert != nil:
		mode, err := session.ParseInsertMode(a.Insert.Mode)
		if err != nil {
			return false, err
		}
		if err := s.InsertAtUnit(u, mode, a.Insert.Text); err != nil {
			return false, err
		}
		if mode == session.InsertReplace {
			report.Replaced++
		} else {
			report.Inserted++
		}
		return false, nil
	}
	return false, ast.NewContractError("script", u.ID, "empty action")
}

func statementText(s *session.Session, st *Statement) (string, error) {
	switch {
	case st.Module != nil:
		return s.MakeModuleStatement(st.Module.Path, st.Module.Defaults, st.Module.Named)
	case st.Dynamic != nil:
		return s.MakeDynamicStatement(st.Dynamic.Path, st.Dynamic.Declarator, st.Dynamic.Name)
	case st.CommonJS != nil:
		return s.MakeCommonJSStatement(st.CommonJS.Path, st.CommonJS.Declarator, st.CommonJS.Name)
	default:
		return st.Text, nil
	}
}
