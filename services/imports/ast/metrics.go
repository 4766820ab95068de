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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for import analysis.
var (
	tracer = otel.Tracer("importmanager.ast")
	meter  = otel.Meter("importmanager.ast")
)

// Metrics for analysis operations.
var (
	analyzeLatency  metric.Float64Histogram
	analyzeTotal    metric.Int64Counter
	unitsDiscovered metric.Int64Histogram
	reanalyzeTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"imports_analyze_duration_seconds",
			metric.WithDescription("Duration of whole-file import analysis"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"imports_analyze_total",
			metric.WithDescription("Total number of whole-file analyses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unitsDiscovered, err = meter.Int64Histogram(
			"imports_units_discovered",
			metric.WithDescription("Number of import units discovered per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		reanalyzeTotal, err = meter.Int64Counter(
			"imports_unit_reanalyze_total",
			metric.WithDescription("Total single-unit re-analyses triggered by edits"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalyzeMetrics records metrics for one Analyze call.
func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, unitCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)
	if success {
		unitsDiscovered.Record(ctx, int64(unitCount))
	}
}

// recordReanalyze records one single-unit re-analysis.
func recordReanalyze(ctx context.Context, kind Kind, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	reanalyzeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.Bool("success", success),
	))
}

// startAnalyzeSpan creates a span for an Analyze call.
//
// Returns:
//   - ctx: Context with span
//   - span: The created span (caller must call span.End())
func startAnalyzeSpan(ctx context.Context, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(
			attribute.String("imports.file", filePath),
			attribute.Int("imports.content_size", contentSize),
		),
	)
}

// setAnalyzeSpanResult sets the per-kind unit counts on an analyze span.
func setAnalyzeSpanResult(span trace.Span, result *Result) {
	span.SetAttributes(
		attribute.Int("imports.module_units", len(result.Module)),
		attribute.Int("imports.dynamic_units", len(result.Dynamic)),
		attribute.Int("imports.commonjs_units", len(result.CommonJS)),
	)
}
