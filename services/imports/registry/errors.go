// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/importmanager/services/imports/ast"
)

var (
	// ErrNoMatch indicates a selection matched no live unit.
	ErrNoMatch = errors.New("no matching unit")

	// ErrAmbiguous indicates a selection matched more than one unit.
	ErrAmbiguous = errors.New("ambiguous unit selection")
)

// Candidate is one line of a MatchError listing.
type Candidate struct {
	ID   int    `json:"id"`
	Hash string `json:"hash"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// MatchError reports a selection that did not resolve to exactly one unit.
//
// For zero matches Candidates lists every live unit of the searched kinds;
// for several matches it lists the matches. Either way a caller can pick a
// hash from the listing and select again.
type MatchError struct {
	// Query describes the selection, e.g. `name "m"`.
	Query string

	// Matches is the number of units that matched.
	Matches int

	Candidates []Candidate
}

// Error returns the query, the match count and the candidate listing.
func (e *MatchError) Error() string {
	var sb strings.Builder
	if e.Matches == 0 {
		fmt.Fprintf(&sb, "no unit matches %s", e.Query)
	} else {
		fmt.Fprintf(&sb, "%d units match %s; select by hash to disambiguate", e.Matches, e.Query)
	}
	if len(e.Candidates) > 0 {
		sb.WriteString("\ncandidates:")
		for _, c := range e.Candidates {
			fmt.Fprintf(&sb, "\n  id=%d hash=%s %s %q: %s", c.ID, c.Hash, c.Kind, c.Name, oneLine(c.Code))
		}
	}
	return sb.String()
}

// Unwrap returns ErrNoMatch or ErrAmbiguous.
func (e *MatchError) Unwrap() error {
	if e.Matches == 0 {
		return ErrNoMatch
	}
	return ErrAmbiguous
}

// IsMatchError checks if an error is a selection failure.
func IsMatchError(err error) bool {
	return errors.Is(err, ErrNoMatch) || errors.Is(err, ErrAmbiguous)
}

func newMatchError(query string, matches int, units []*ast.Unit) *MatchError {
	candidates := make([]Candidate, 0, len(units))
	for _, u := range units {
		candidates = append(candidates, Candidate{
			ID:   u.ID,
			Hash: u.Hash,
			Kind: u.Kind.String(),
			Name: u.Module.Name,
			Code: u.Code,
		})
	}
	return &MatchError{Query: query, Matches: matches, Candidates: candidates}
}

func oneLine(code string) string {
	return strings.Join(strings.Fields(code), " ")
}
