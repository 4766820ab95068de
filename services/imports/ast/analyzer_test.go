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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, src string) *Result {
	t.Helper()
	result, err := NewAnalyzer().Analyze(context.Background(), []byte(src), "test.js")
	require.NoError(t, err)
	return result
}

func TestAnalyzer_ModuleImport_DefaultAndNamed(t *testing.T) {
	result := analyze(t, `import a, { b, c as d } from "m";`)

	require.Len(t, result.Module, 1)
	assert.Empty(t, result.Dynamic)
	assert.Empty(t, result.CommonJS)

	u := result.Module[0]
	assert.Equal(t, KindModule, u.Kind)
	assert.Equal(t, "m", u.Module.Name)
	assert.Equal(t, ModuleString, u.Module.Type)
	assert.Equal(t, `"`, u.Module.Quote)
	assert.Equal(t, `"m"`, u.Code[u.Module.Span.Start:u.Module.Span.End])

	assert.Equal(t, []string{"a"}, u.DefaultMembers.Names())
	require.Equal(t, 2, u.Members.Count)
	assert.Equal(t, "b", u.Members.Bindings[0].Name)
	assert.Nil(t, u.Members.Bindings[0].Alias)
	assert.Equal(t, "c", u.Members.Bindings[1].Name)
	require.NotNil(t, u.Members.Bindings[1].Alias)
	assert.Equal(t, "d", u.Members.Bindings[1].Alias.Name)
	assert.Equal(t, ", ", u.Members.Separator)
	require.NotNil(t, u.Members.Span)
	assert.Equal(t, "{ b, c as d }", u.Code[u.Members.Span.Start:u.Members.Span.End])
}

func TestAnalyzer_BindingSpansAndLinks(t *testing.T) {
	result := analyze(t, `import { b, c as d } from "m";`)
	u := result.Module[0]

	b, c := u.Members.Bindings[0], u.Members.Bindings[1]
	assert.Equal(t, "b", u.Code[b.Start:b.End])
	assert.Equal(t, "c", u.Code[c.Start:c.End])
	assert.Equal(t, "c as d", u.Code[c.Start:c.AbsEnd])
	assert.Equal(t, "d", u.Code[c.Alias.Start:c.Alias.End])

	assert.Equal(t, -1, b.Last)
	assert.Equal(t, c.Start, b.Next)
	assert.Equal(t, b.AbsEnd, c.Last)
	assert.Equal(t, -1, c.Next)
	assert.Equal(t, 0, b.Index)
	assert.Equal(t, 1, c.Index)
}

func TestAnalyzer_NamespaceImport(t *testing.T) {
	u := analyze(t, `import * as ns from './lib/util.js';`).Module[0]

	require.Equal(t, 1, u.DefaultMembers.Count)
	ns := u.DefaultMembers.Bindings[0]
	assert.Equal(t, "*", ns.Name)
	require.NotNil(t, ns.Alias)
	assert.Equal(t, "ns", ns.Alias.Name)
	assert.Equal(t, "* as ns", u.Code[ns.Start:ns.AbsEnd])
	assert.Equal(t, "util.js", u.Module.Name)
	assert.Equal(t, "./lib/util.js", u.Module.Value)
	assert.Equal(t, "'", u.Module.Quote)
}

func TestAnalyzer_BareImport(t *testing.T) {
	u := analyze(t, `import "./polyfill.js";`).Module[0]

	assert.True(t, u.Bare())
	assert.Zero(t, u.DefaultMembers.Count)
	assert.Zero(t, u.Members.Count)
	assert.Nil(t, u.DefaultMembers.Span)
	assert.Nil(t, u.Members.Span)
	assert.Equal(t, ", ", u.Members.Separator)
}

func TestAnalyzer_CommonJSRequire(t *testing.T) {
	result := analyze(t, `const x = require("fs");`)

	require.Len(t, result.CommonJS, 1)
	u := result.CommonJS[0]
	assert.Equal(t, KindCommonJS, u.Kind)
	assert.Equal(t, "fs", u.Module.Name)
	assert.Equal(t, ModuleString, u.Module.Type)
	assert.Equal(t, `const x = require("fs");`, u.Code)
	require.NotNil(t, u.Declarator)
	assert.Equal(t, "const", u.Declarator.Keyword)
	assert.Equal(t, "x", u.Declarator.Name)
}

func TestAnalyzer_DynamicImport(t *testing.T) {
	src := "let mod = await import(\"./plugins/a.js\");\nimport(`./${name}.js`).then(run);\n"
	result := analyze(t, src)

	require.Len(t, result.Dynamic, 2)
	first := result.Dynamic[0]
	assert.Equal(t, "a.js", first.Module.Name)
	assert.Equal(t, "let", first.Declarator.Keyword)
	assert.Equal(t, "mod", first.Declarator.Name)

	second := result.Dynamic[1]
	assert.Equal(t, ModuleRaw, second.Module.Type)
	assert.Equal(t, UnresolvedName, second.Module.Name)
	assert.Nil(t, second.Declarator)
}

func TestAnalyzer_RawRequire(t *testing.T) {
	u := analyze(t, `var lib = require(path.join(dir, "lib"));`).CommonJS[0]

	assert.Equal(t, ModuleRaw, u.Module.Type)
	assert.Equal(t, UnresolvedName, u.Module.Name)
	assert.Equal(t, `path.join(dir, "lib")`, u.Module.Value)
	assert.Equal(t, "var", u.Declarator.Keyword)
}

func TestAnalyzer_FirstMatchPerStatement(t *testing.T) {
	result := analyze(t, `const a = require("a"), b = require("b");`)

	require.Len(t, result.CommonJS, 1)
	assert.Equal(t, "a", result.CommonJS[0].Module.Name)
}

func TestAnalyzer_IgnoresNestedAndUnrelatedCode(t *testing.T) {
	src := `function load() { return require("hidden"); }
const y = compute(1);
foo.require("nope");
`
	result := analyze(t, src)
	assert.Zero(t, result.Count())
}

func TestAnalyzer_DiscoveryOrderAndSpans(t *testing.T) {
	src := "import a from \"a\";\nconst b = require(\"b\");\nimport c from \"c\";\n"
	result := analyze(t, src)

	require.Len(t, result.Module, 2)
	require.Len(t, result.CommonJS, 1)
	for _, u := range append(result.Module, result.CommonJS...) {
		assert.Equal(t, src[u.Start:u.End], u.Code)
	}
	assert.Equal(t, "a", result.Module[0].Module.Name)
	assert.Equal(t, "c", result.Module[1].Module.Name)
}

func TestAnalyzer_TopOffset(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no comment", "import a from \"a\";\n", "import a"},
		{"block comment", "/* license */\nimport a from \"a\";\n", "import a"},
		{"hashbang", "#!/usr/bin/env node\nconst x = 1;\n", "const x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := analyze(t, tt.src)
			assert.True(t, strings.HasPrefix(tt.src[result.TopOffset:], tt.want))
		})
	}

	empty := analyze(t, "/* only a comment */\n")
	assert.Equal(t, len("/* only a comment */\n"), empty.TopOffset)
}

func TestAnalyzer_SyntaxError(t *testing.T) {
	_, err := NewAnalyzer().Analyze(context.Background(), []byte("import a from \"a\";\nimport { b from \"b\";\n"), "bad.js")

	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
	var synErr *SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Equal(t, "bad.js", synErr.FilePath)
	assert.Positive(t, synErr.Line)
}

func TestAnalyzer_Limits(t *testing.T) {
	analyzer := NewAnalyzer(WithMaxFileSize(8))
	_, err := analyzer.Analyze(context.Background(), []byte(`import a from "a";`), "big.js")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = NewAnalyzer().Analyze(context.Background(), []byte{0xff, 0xfe}, "bin.js")
	assert.ErrorIs(t, err, ErrInvalidContent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewAnalyzer().Analyze(ctx, []byte(`import a from "a";`), "c.js")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_ReanalysisIsIdempotent(t *testing.T) {
	src := "import def, * as ns from 'x';\nimport { a, b as bb, c } from \"y\";\nconst z = require('z');\n"
	result := analyze(t, src)
	analyzer := NewAnalyzer()

	for _, u := range append(result.Module, result.CommonJS...) {
		again, err := analyzer.AnalyzeUnit(u.Kind, u.Code)
		require.NoError(t, err)
		assert.Equal(t, u.Module, again.Module)
		assert.Equal(t, u.DefaultMembers, again.DefaultMembers)
		assert.Equal(t, u.Members, again.Members)
		assert.Equal(t, u.Declarator, again.Declarator)
	}
}

func TestAnalyzer_AnalyzeUnitKindMismatch(t *testing.T) {
	_, err := NewAnalyzer().AnalyzeUnit(KindModule, `const x = require("x");`)
	assert.True(t, IsContractError(err))
}

func TestShortName(t *testing.T) {
	tests := map[string]string{
		"fs":             "fs",
		"./lib/util.js":  "util.js",
		"@scope/pkg":     "pkg",
		"../dir/":        "dir",
		"node:path":      "node:path",
		"https://x.y/z":  "z",
		"/":              "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, ShortName(in), in)
	}
}

func TestParseGroup(t *testing.T) {
	tests := []struct {
		in     string
		group  Group
		plural bool
	}{
		{"member", GroupNamed, false},
		{"members", GroupNamed, true},
		{"defaultMember", GroupDefault, false},
		{"defaultMembers", GroupDefault, true},
	}
	for _, tt := range tests {
		g, plural, err := ParseGroup(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.group, g, tt.in)
		assert.Equal(t, tt.plural, plural, tt.in)
	}

	_, _, err := ParseGroup("namedMembers")
	assert.True(t, IsContractError(err))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("cjs")
	require.NoError(t, err)
	assert.Equal(t, KindCommonJS, k)

	k, err = ParseKind("ES6")
	require.NoError(t, err)
	assert.Equal(t, KindModule, k)

	_, err = ParseKind("amd")
	assert.True(t, IsContractError(err))
}
