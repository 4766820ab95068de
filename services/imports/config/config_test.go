// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/importmanager/services/imports/session"
	"github.com/AleutianAI/importmanager/services/imports/synth"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(10*1024*1024), cfg.Analyzer.MaxFileSize)
	assert.Equal(t, 10, cfg.Registry.HashLength)
	assert.Equal(t, IDBases{Module: 1000, Dynamic: 2000, CommonJS: 3000}, cfg.Registry.IDBases)
	assert.Equal(t, `"`, cfg.QuoteChar())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8090", cfg.Server.Addr)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte("synth:\n  quote: single\nregistry:\n  id_bases:\n    module: 1\n"))
	require.NoError(t, err)

	assert.Equal(t, "'", cfg.QuoteChar())
	assert.Equal(t, 1, cfg.Registry.IDBases.Module)
	assert.Equal(t, 2000, cfg.Registry.IDBases.Dynamic)
	assert.Equal(t, 10, cfg.Registry.HashLength)

	s := synth.New(cfg.SynthOptions()...)
	assert.Equal(t, "'", s.Quote())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad quote":      "synth:\n  quote: backtick\n",
		"short hash":     "registry:\n  hash_length: 2\n",
		"bad level":      "logging:\n  level: loud\n",
		"negative base":  "registry:\n  id_bases:\n    dynamic: -1\n",
		"not yaml":       "analyzer: [\n",
		"empty addr":     "server:\n  addr: \"\"\n",
		"zero file size": "analyzer:\n  max_file_size: 0\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"IMPORTMANAGER_HASH_LENGTH":        "16",
		"IMPORTMANAGER_MAX_FILE_SIZE":      "2048",
		"IMPORTMANAGER_LOG_LEVEL":          "DEBUG",
		"IMPORTMANAGER_LOG_JSON":           "true",
		"IMPORTMANAGER_QUOTE":              "single",
		"IMPORTMANAGER_ADVISORY_UNBOUNDED": "1",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 16, cfg.Registry.HashLength)
	assert.Equal(t, int64(2048), cfg.Analyzer.MaxFileSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "'", cfg.QuoteChar())
	assert.True(t, cfg.Advisory.Unbounded)

	bad := map[string]string{"IMPORTMANAGER_HASH_LENGTH": "ten"}
	err := Default().applyEnv(func(k string) string { return bad[k] })
	assert.ErrorContains(t, err, "IMPORTMANAGER_HASH_LENGTH")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "importmanager.yaml")
	require.NoError(t, os.WriteFile(path, []byte("advisory:\n  cache_size: 7\n"), 0o600))

	t.Setenv("IMPORTMANAGER_ADDR", ":9999")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Advisory.CacheSize)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_NewAdvisor(t *testing.T) {
	cfg, err := Parse([]byte("advisory:\n  cache_size: 2\n"))
	require.NoError(t, err)
	adv, err := cfg.NewAdvisor(nil)
	require.NoError(t, err)
	for _, msg := range []string{"a", "b", "c"} {
		adv.Record(msg)
	}
	assert.Equal(t, 2, adv.Seen())

	cfg, err = Parse([]byte("advisory:\n  cache_size: 2\n  unbounded: true\n"))
	require.NoError(t, err)
	adv, err = cfg.NewAdvisor(nil)
	require.NoError(t, err)
	for _, msg := range []string{"a", "b", "c"} {
		adv.Record(msg)
	}
	assert.Equal(t, 3, adv.Seen())
	assert.False(t, adv.Record("a"))
}

func TestConfig_ComponentOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.AnalyzerOptions(nil), 2)
	assert.Len(t, cfg.RegistryOptions(), 4)
}

func TestConfig_SessionOptions(t *testing.T) {
	cfg, err := Parse([]byte("registry:\n  id_bases:\n    commonjs: 10\nsynth:\n  quote: single\n"))
	require.NoError(t, err)
	adv, err := cfg.NewAdvisor(nil)
	require.NoError(t, err)

	s, err := session.Open(context.Background(), []byte(`const fs = require("fs");`+"\n"), "a.js", cfg.SessionOptions(adv, nil)...)
	require.NoError(t, err)

	u, err := s.SelectByName("fs", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 10, u.ID)

	stmt, err := s.MakeCommonJSStatement("path", "const", "path")
	require.NoError(t, err)
	assert.Equal(t, `const path = require('path');`, stmt)
}
