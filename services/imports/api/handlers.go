// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes analysis and edit scripts over HTTP.
//
// Requests are stateless: every call carries the full source and gets a
// fresh session. Only the advisory dedup set is shared between requests.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/importmanager/services/imports/advisory"
	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/buffer"
	"github.com/AleutianAI/importmanager/services/imports/config"
	"github.com/AleutianAI/importmanager/services/imports/registry"
	"github.com/AleutianAI/importmanager/services/imports/script"
	"github.com/AleutianAI/importmanager/services/imports/session"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// AnalyzeRequest is the body of POST /v1/imports/analyze.
type AnalyzeRequest struct {
	Filename string `json:"filename" binding:"required"`
	Source   string `json:"source"`
}

// AnalyzeResponse lists the units of a file.
type AnalyzeResponse struct {
	SessionID string             `json:"session_id"`
	TopOffset int                `json:"top_offset"`
	Units     []session.UnitView `json:"units"`
}

// ApplyRequest is the body of POST /v1/imports/apply. Script is a YAML edit
// script.
type ApplyRequest struct {
	Filename string `json:"filename" binding:"required"`
	Source   string `json:"source"`
	Script   string `json:"script" binding:"required"`
}

// ApplyResponse carries the edited file.
type ApplyResponse struct {
	SessionID string         `json:"session_id"`
	Code      string         `json:"code"`
	Diff      string         `json:"diff"`
	EditMap   []buffer.Edit  `json:"edit_map"`
	Report    *script.Report `json:"report"`
}

// ErrorResponse is returned for every failure.
type ErrorResponse struct {
	Error      string               `json:"error"`
	Code       string               `json:"code"`
	Report     *script.Report       `json:"report,omitempty"`
	Candidates []registry.Candidate `json:"candidates,omitempty"`
}

// HealthResponse is the body of GET /v1/imports/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Handlers serves the import API.
type Handlers struct {
	cfg     *config.Config
	advisor *advisory.Advisor
	logger  *slog.Logger
}

// NewHandlers creates handlers sharing one advisor across requests.
func NewHandlers(cfg *config.Config, advisor *advisory.Advisor, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{cfg: cfg, advisor: advisor, logger: logger}
}

// RegisterRoutes registers the /imports endpoints on rg.
//
// Endpoints:
//
//	POST /v1/imports/analyze - List the import units of a file
//	POST /v1/imports/apply - Run an edit script and return the new file
//	GET  /v1/imports/health - Liveness
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	imports := rg.Group("/imports")
	imports.Use(h.limitBody())
	imports.POST("/analyze", h.HandleAnalyze)
	imports.POST("/apply", h.HandleApply)
	imports.GET("/health", h.HandleHealth)
}

func (h *Handlers) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxBodyBytes)
		}
		c.Next()
	}
}

// HandleAnalyze handles POST /v1/imports/analyze.
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: Malformed body
//	413 Request Entity Too Large: Source over the size limit
//	422 Unprocessable Entity: Source does not parse
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "HandleAnalyze", err)
		return
	}

	s, err := session.Open(c.Request.Context(), []byte(req.Source), req.Filename, h.sessionOptions()...)
	if err != nil {
		h.fail(c, "HandleAnalyze", err, nil)
		return
	}

	c.JSON(http.StatusOK, AnalyzeResponse{
		SessionID: s.ID(),
		TopOffset: s.TopOffset(),
		Units:     s.Listing(),
	})
}

// HandleApply handles POST /v1/imports/apply.
//
// Response:
//
//	200 OK: ApplyResponse
//	400 Bad Request: Malformed body or script
//	409 Conflict: A selection matched zero or several units
//	413 Request Entity Too Large: Source over the size limit
//	422 Unprocessable Entity: Source does not parse, or an edit broke a
//	  unit contract
func (h *Handlers) HandleApply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "HandleApply", err)
		return
	}

	sc, err := script.Parse([]byte(req.Script))
	if err != nil {
		h.logger.Warn("Invalid script", slog.String("handler", "HandleApply"), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SCRIPT"})
		return
	}

	s, err := session.Open(c.Request.Context(), []byte(req.Source), req.Filename, h.sessionOptions()...)
	if err != nil {
		h.fail(c, "HandleApply", err, nil)
		return
	}

	report, err := script.Run(s, sc)
	if err != nil {
		h.fail(c, "HandleApply", err, report)
		return
	}

	diff, err := s.Diff()
	if err != nil {
		h.fail(c, "HandleApply", err, report)
		return
	}

	h.logger.Info("Script applied",
		slog.String("session", s.ID()),
		slog.String("file", req.Filename),
		slog.Int("steps", report.Steps),
	)
	c.JSON(http.StatusOK, ApplyResponse{
		SessionID: s.ID(),
		Code:      s.Code(),
		Diff:      diff,
		EditMap:   s.EditMap(),
		Report:    report,
	})
}

// HandleHealth handles GET /v1/imports/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

func (h *Handlers) sessionOptions() []session.Option {
	return h.cfg.SessionOptions(h.advisor, h.logger)
}

func (h *Handlers) badRequest(c *gin.Context, handler string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: "TOO_LARGE"})
		return
	}
	h.logger.Warn("Invalid request body", slog.String("handler", handler), slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
}

// fail maps engine errors to HTTP status codes.
func (h *Handlers) fail(c *gin.Context, handler string, err error, report *script.Report) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	resp := ErrorResponse{Error: err.Error(), Report: report}

	var matchErr *registry.MatchError
	switch {
	case ast.IsSyntaxError(err):
		status, code = http.StatusUnprocessableEntity, "SYNTAX_ERROR"
	case errors.As(err, &matchErr):
		status, code = http.StatusConflict, "MATCH_ERROR"
		resp.Candidates = matchErr.Candidates
	case ast.IsContractError(err):
		status, code = http.StatusUnprocessableEntity, "CONTRACT_ERROR"
	case errors.Is(err, ast.ErrFileTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "TOO_LARGE"
	case errors.Is(err, ast.ErrInvalidContent):
		status, code = http.StatusBadRequest, "INVALID_CONTENT"
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", slog.String("handler", handler), slog.String("error", err.Error()))
	} else {
		h.logger.Debug("Request rejected", slog.String("handler", handler), slog.String("code", code))
	}
	resp.Code = code
	c.JSON(status, resp)
}
