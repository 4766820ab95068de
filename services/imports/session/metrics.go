// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/registry"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "importmanager_sessions_opened_total",
		Help: "Total sessions opened",
	})

	sessionOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importmanager_session_operations_total",
		Help: "Whole-file buffer operations by operation and outcome",
	}, []string{"op", "outcome"})

	selectionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "importmanager_selection_failures_total",
		Help: "Unit selections that did not resolve to exactly one live unit",
	}, []string{"by", "reason"})
)

func recordOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sessionOperations.WithLabelValues(op, outcome).Inc()
}

func recordSelection(by string, u *ast.Unit, err error) {
	switch {
	case errors.Is(err, registry.ErrNoMatch):
		selectionFailures.WithLabelValues(by, "no_match").Inc()
	case errors.Is(err, registry.ErrAmbiguous):
		selectionFailures.WithLabelValues(by, "ambiguous").Inc()
	case ast.IsContractError(err):
		selectionFailures.WithLabelValues(by, "retired").Inc()
	case err == nil && u == nil:
		selectionFailures.WithLabelValues(by, "null").Inc()
	}
}
