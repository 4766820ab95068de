// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/importmanager/services/imports/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const source = "import a, { b } from \"m\";\nconst fs = require(\"fs\");\n"

func setupTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	adv, err := cfg.NewAdvisor(nil)
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandlers(cfg, adv, nil))
	return router
}

func post(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_Health(t *testing.T) {
	router := setupTestRouter(t, nil)
	req, _ := http.NewRequest(http.MethodGet, "/v1/imports/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandlers_Analyze(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := post(t, router, "/v1/imports/analyze", AnalyzeRequest{Filename: "app.js", Source: source})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Units, 2)

	assert.Equal(t, 1000, resp.Units[0].ID)
	assert.Equal(t, "module", resp.Units[0].Kind)
	assert.Equal(t, []string{"a"}, resp.Units[0].Defaults)
	assert.Equal(t, []string{"b"}, resp.Units[0].Members)
	assert.Equal(t, 3000, resp.Units[1].ID)
	assert.Equal(t, "fs", resp.Units[1].Name)
}

func TestHandlers_Apply(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := post(t, router, "/v1/imports/apply", ApplyRequest{
		Filename: "app.js",
		Source:   source,
		Script:   "steps:\n  - select: {name: m}\n    actions: [{addMembers: [c]}]\n",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ApplyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "import a, { b, c } from \"m\";\nconst fs = require(\"fs\");\n", resp.Code)
	assert.Contains(t, resp.Diff, "+import a, { b, c } from \"m\";")
	require.Len(t, resp.EditMap, 1)
	assert.Equal(t, 1, resp.Report.Committed)
}

func TestHandlers_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing filename",
			path:       "/v1/imports/analyze",
			body:       map[string]string{"source": source},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "syntax error",
			path:       "/v1/imports/analyze",
			body:       AnalyzeRequest{Filename: "bad.js", Source: "import {"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SYNTAX_ERROR",
		},
		{
			name:       "invalid script",
			path:       "/v1/imports/apply",
			body:       ApplyRequest{Filename: "app.js", Source: source, Script: "steps: []"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_SCRIPT",
		},
		{
			name:       "no match",
			path:       "/v1/imports/apply",
			body:       ApplyRequest{Filename: "app.js", Source: source, Script: "steps:\n  - select: {name: zzz}\n    actions: [{remove: true}]\n"},
			wantStatus: http.StatusConflict,
			wantCode:   "MATCH_ERROR",
		},
		{
			name:       "contract violation",
			path:       "/v1/imports/apply",
			body:       ApplyRequest{Filename: "app.js", Source: source, Script: "steps:\n  - select: {name: fs}\n    actions: [{addMembers: [x]}]\n"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "CONTRACT_ERROR",
		},
	}
	router := setupTestRouter(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, router, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandlers_MatchErrorListsCandidates(t *testing.T) {
	router := setupTestRouter(t, nil)
	w := post(t, router, "/v1/imports/apply", ApplyRequest{
		Filename: "app.js",
		Source:   "import x from \"m\";\nimport y from \"m\";\n",
		Script:   "steps:\n  - select: {name: m}\n    actions: [{remove: true}]\n",
	})

	require.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, 1000, resp.Candidates[0].ID)
	assert.Equal(t, 1001, resp.Candidates[1].ID)
}

func TestHandlers_BodyLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MaxBodyBytes = 64
	router := setupTestRouter(t, cfg)

	w := post(t, router, "/v1/imports/analyze", AnalyzeRequest{
		Filename: "big.js",
		Source:   strings.Repeat("import a from \"a\";\n", 10),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
