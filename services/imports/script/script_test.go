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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/registry"
	"github.com/AleutianAI/importmanager/services/imports/session"
)

const source = `import React, { useState } from "react";
import "./styles.css";
const fs = require("fs");
const lodash = require("lodash");

render();
`

func run(t *testing.T, doc string) (*session.Session, *Report, error) {
	t.Helper()
	sc, err := Parse([]byte(doc))
	require.NoError(t, err)
	s, err := session.Open(context.Background(), []byte(source), "app.js")
	require.NoError(t, err)
	report, err := Run(s, sc)
	return s, report, err
}

func TestRun_UnitSteps(t *testing.T) {
	s, report, err := run(t, `
steps:
  - select: {name: react, kinds: [module]}
    actions:
      - addMembers: [useMemo]
      - setAlias: {group: member, name: useState, alias: useLocalState}
  - select: {name: styles.css}
    actions:
      - addDefaultMembers: [styles]
  - select: {name: lodash}
    actions:
      - remove: true
  - select: {name: fs, kinds: [cjs]}
    actions:
      - renameModule: {name: "node:fs"}
`)
	require.NoError(t, err)

	assert.Equal(t, `import React, { useState as useLocalState, useMemo } from "react";
import styles from "./styles.css";
const fs = require("node:fs");

render();
`, s.Code())
	assert.Equal(t, &Report{Steps: 4, Committed: 3, Removed: 1}, report)
}

func TestRun_StatementSteps(t *testing.T) {
	s, report, err := run(t, `
steps:
  - insertStatement:
      position: top
      text: '"use strict";'
  - insertStatement:
      module: {path: ./util.js, named: [a, b]}
  - insertStatement:
      dynamic: {path: ./lazy.js, declarator: let, name: lazy}
  - select: {name: fs}
    actions:
      - insert: {mode: append, text: 'const path = require("path");'}
`)
	require.NoError(t, err)

	assert.Equal(t, `"use strict";
import React, { useState } from "react";
import "./styles.css";
import { a, b } from "./util.js";
let lazy = await import("./lazy.js");
const fs = require("fs");
const path = require("path");
const lodash = require("lodash");

render();
`, s.Code())
	assert.Equal(t, 4, report.Inserted)
	assert.Zero(t, report.Committed)
}

func TestRun_ReplaceSkipsCommit(t *testing.T) {
	s, report, err := run(t, `
steps:
  - select: {name: lodash}
    actions:
      - insert: {mode: replace, text: 'import lodash from "lodash-es";'}
`)
	require.NoError(t, err)
	assert.Contains(t, s.Code(), "import lodash from \"lodash-es\";\n\nrender();")
	assert.Equal(t, 1, report.Replaced)
	assert.Zero(t, report.Committed)
}

func TestRun_AllowNullSkips(t *testing.T) {
	s, report, err := run(t, `
steps:
  - select: {name: missing, allowNull: true}
    actions:
      - addMembers: [x]
`)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.False(t, s.Modified())
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		check func(error) bool
	}{
		{
			name:  "no match",
			doc:   "steps:\n  - select: {name: missing}\n    actions: [{remove: true}]\n",
			check: registry.IsMatchError,
		},
		{
			name:  "members on commonjs",
			doc:   "steps:\n  - select: {name: fs}\n    actions: [{addMembers: [x]}]\n",
			check: ast.IsContractError,
		},
		{
			name:  "edit after remove",
			doc:   "steps:\n  - select: {name: fs}\n    actions: [{remove: true}, {addMembers: [x]}]\n",
			check: ast.IsContractError,
		},
		{
			name:  "bad insert mode",
			doc:   "steps:\n  - select: {name: fs}\n    actions: [{insert: {mode: sideways, text: x}}]\n",
			check: ast.IsContractError,
		},
		{
			name:  "bad group",
			doc:   "steps:\n  - select: {name: react}\n    actions: [{removeMember: {group: named, name: useState}}]\n",
			check: ast.IsContractError,
		},
		{
			name:  "retired id",
			doc:   "steps:\n  - select: {id: 3000}\n    actions: [{remove: true}]\n  - select: {id: 3000}\n    actions: [{remove: true}]\n",
			check: ast.IsContractError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.doc)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.Contains(t, err.Error(), "step ")
		})
	}
}

func TestRun_RemoveMemberGroups(t *testing.T) {
	s, _, err := run(t, `
steps:
  - select: {name: react}
    actions:
      - removeMember: {group: members}
      - removeMembers: defaultMember
`)
	require.NoError(t, err)
	assert.Contains(t, s.Code(), "import \"react\";\n")
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"no steps":           "steps: []\n",
		"unknown key":        "steps:\n  - select: {name: a}\n    actoins: []\n",
		"two selectors":      "steps:\n  - select: {name: a, hash: b}\n",
		"no selector":        "steps:\n  - actions: [{remove: true}]\n",
		"two operations":     "steps:\n  - select: {name: a}\n    actions: [{remove: true, addMembers: [x]}]\n",
		"bad kind":           "steps:\n  - select: {name: a, kinds: [amd]}\n",
		"kinds without name": "steps:\n  - select: {hash: abc, kinds: [module]}\n",
		"statement with two": "steps:\n  - insertStatement: {text: x, commonjs: {path: y, declarator: const, name: y}}\n",
		"statement actions":  "steps:\n  - insertStatement: {text: x}\n    actions: [{remove: true}]\n",
		"missing new name":   "steps:\n  - select: {name: a}\n    actions: [{renameMember: {group: member, name: x}}]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - select: {id: 1000}\n    actions: [{remove: true}]\n"), 0o600))

	sc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sc.Steps, 1)
	assert.Equal(t, 1000, *sc.Steps[0].Select.ID)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
