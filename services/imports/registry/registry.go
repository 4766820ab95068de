// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry assigns identities to import units and resolves lookups.
//
// Every unit gets a sequential id from its kind's numeric base and a
// content-derived hash. Hash collisions are disambiguated with "#2", "#3",
// ... in discovery order. Retired (tombstoned) units keep their id but no
// longer match name or hash lookups.
//
// Thread Safety: a Registry belongs to one session and is not safe for
// concurrent use.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/importmanager/services/imports/ast"
)

// Default id bases per kind.
const (
	DefaultModuleBase   = 1000
	DefaultDynamicBase  = 2000
	DefaultCommonJSBase = 3000

	// DefaultHashLength is the number of hex digits kept from the digest.
	DefaultHashLength = 10
)

// Warner receives advisory messages. *advisory.Advisor implements it.
type Warner interface {
	Warn(msg string, attrs ...slog.Attr)
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDBase overrides the id base of one kind.
func WithIDBase(kind ast.Kind, base int) Option {
	return func(r *Registry) {
		r.bases[kind] = base
	}
}

// WithHashLength sets the number of hex digits per hash (4..64).
func WithHashLength(n int) Option {
	return func(r *Registry) {
		if n >= 4 && n <= sha256.Size*2 {
			r.hashLength = n
		}
	}
}

// WithWarner routes advisory messages.
func WithWarner(w Warner) Option {
	return func(r *Registry) {
		r.warner = w
	}
}

// Registry indexes the units of one file.
type Registry struct {
	filename   string
	bases      map[ast.Kind]int
	hashLength int
	warner     Warner

	byKind    map[ast.Kind][]*ast.Unit
	hashCount map[string]int
}

// New creates an empty registry for filename. The filename salts every hash.
func New(filename string, opts ...Option) *Registry {
	r := &Registry{
		filename: filename,
		bases: map[ast.Kind]int{
			ast.KindModule:   DefaultModuleBase,
			ast.KindDynamic:  DefaultDynamicBase,
			ast.KindCommonJS: DefaultCommonJSBase,
		},
		hashLength: DefaultHashLength,
		byKind:     make(map[ast.Kind][]*ast.Unit),
		hashCount:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index assigns ids and hashes to the units of result and replaces any
// previously indexed units.
func (r *Registry) Index(result *ast.Result) {
	r.byKind = make(map[ast.Kind][]*ast.Unit)
	r.hashCount = make(map[string]int)

	for _, kind := range ast.AllKinds {
		units := result.ByKind(kind)
		for i, u := range units {
			u.ID = r.bases[kind] + i
			u.Hash = r.uniqueHash(u)
		}
		r.byKind[kind] = units
	}
}

// uniqueHash hashes u and appends "#n" to the n-th unit with the same digest.
func (r *Registry) uniqueHash(u *ast.Unit) string {
	base := Hash(u, r.filename, r.hashLength)
	r.hashCount[base]++
	n := r.hashCount[base]
	if n == 1 {
		return base
	}

	if r.warner != nil {
		r.warner.Warn(
			fmt.Sprintf("%s imports %s module %q more than once with identical members; select by hash to tell them apart",
				r.filename, u.Kind, u.Module.Name),
			slog.String("file", r.filename),
			slog.String("hash", base),
		)
	}
	return fmt.Sprintf("%s#%d", base, n)
}

// Hash computes the content identity of a unit: module name, kind, filename
// and, for module units, every binding name and alias in source order.
func Hash(u *ast.Unit, filename string, length int) string {
	var sb strings.Builder
	sb.WriteString(u.Module.Name)
	sb.WriteByte(0)
	sb.WriteString(u.Kind.String())
	sb.WriteByte(0)
	sb.WriteString(filename)

	if u.Kind == ast.KindModule {
		for _, group := range []*ast.BindingGroup{&u.DefaultMembers, &u.Members} {
			sb.WriteByte(1)
			for _, b := range group.Bindings {
				sb.WriteByte(0)
				sb.WriteString(b.Name)
				if b.Alias != nil {
					sb.WriteString(" as ")
					sb.WriteString(b.Alias.Name)
				}
			}
		}
	}

	sum := sha256.Sum256([]byte(sb.String()))
	digest := hex.EncodeToString(sum[:])
	if length <= 0 || length > len(digest) {
		return digest
	}
	return digest[:length]
}

// Units returns every indexed unit, retired ones included, ordered by kind
// then id.
func (r *Registry) Units() []*ast.Unit {
	var all []*ast.Unit
	for _, kind := range ast.AllKinds {
		all = append(all, r.byKind[kind]...)
	}
	return all
}

// Live returns the non-retired units of the given kinds (all kinds if none).
func (r *Registry) Live(kinds ...ast.Kind) []*ast.Unit {
	if len(kinds) == 0 {
		kinds = ast.AllKinds
	}
	var live []*ast.Unit
	for _, kind := range kinds {
		for _, u := range r.byKind[kind] {
			if !u.Retired() {
				live = append(live, u)
			}
		}
	}
	return live
}

// Count returns the number of live units of one kind.
func (r *Registry) Count(kind ast.Kind) int {
	return len(r.Live(kind))
}

// LastLive returns the live unit of kind that ends last in the file, or nil.
func (r *Registry) LastLive(kind ast.Kind) *ast.Unit {
	live := r.Live(kind)
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].End < live[j].End })
	return live[len(live)-1]
}

// Retire tombstones a unit.
func (r *Registry) Retire(u *ast.Unit) {
	u.MakeUntraceable()
}

// =============================================================================
// Selection
// =============================================================================

// SelectByName finds the single live unit whose module short name (or full
// string specifier) equals name, restricted to kinds when given.
//
// Zero matches return (nil, nil) when allowNull is set, a MatchError
// otherwise. Two or more matches are always a MatchError.
func (r *Registry) SelectByName(name string, kinds []ast.Kind, allowNull bool) (*ast.Unit, error) {
	pool := r.Live(kinds...)
	var matches []*ast.Unit
	for _, u := range pool {
		if u.Module.Name == name || (u.Module.Type == ast.ModuleString && u.Module.Value == name) {
			matches = append(matches, u)
		}
	}
	return r.resolve(fmt.Sprintf("name %q", name), matches, pool, allowNull)
}

// SelectByHash finds the live unit with the given hash.
func (r *Registry) SelectByHash(hash string, allowNull bool) (*ast.Unit, error) {
	pool := r.Live()
	var matches []*ast.Unit
	for _, u := range pool {
		if u.Hash == hash {
			matches = append(matches, u)
		}
	}
	return r.resolve(fmt.Sprintf("hash %q", hash), matches, pool, allowNull)
}

// SelectByID finds the unit with the given id. Selecting a retired unit by id
// is a ContractError.
func (r *Registry) SelectByID(id int, allowNull bool) (*ast.Unit, error) {
	for _, u := range r.Units() {
		if u.ID != id {
			continue
		}
		if u.Retired() {
			return nil, ast.NewContractError("selectById", id, "unit was removed or replaced")
		}
		return u, nil
	}
	return r.resolve(fmt.Sprintf("id %d", id), nil, r.Live(), allowNull)
}

func (r *Registry) resolve(query string, matches, pool []*ast.Unit, allowNull bool) (*ast.Unit, error) {
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if allowNull {
			if r.warner != nil {
				r.warner.Warn(
					fmt.Sprintf("%s: selection by %s matched nothing; continuing because null results are allowed", r.filename, query),
					slog.String("file", r.filename),
				)
			}
			return nil, nil
		}
		return nil, newMatchError(query, 0, pool)
	default:
		return nil, newMatchError(query, len(matches), matches)
	}
}
