// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/importmanager/pkg/ux"
	"github.com/AleutianAI/importmanager/services/imports/buffer"
	"github.com/AleutianAI/importmanager/services/imports/script"
)

// ApplyResult is the outcome of running a script against one file.
type ApplyResult struct {
	File      string         `json:"file"`
	SessionID string         `json:"session_id"`
	Code      string         `json:"-"`
	Diff      string         `json:"-"`
	EditMap   []buffer.Edit  `json:"edit_map"`
	Report    *script.Report `json:"report"`
	Changed   bool           `json:"changed"`
}

type applyOptions struct {
	scriptPath string
	write      bool
	diff       bool
	editMap    bool
	watch      bool
}

func newApplyCmd(a *app) *cobra.Command {
	var opts applyOptions
	cmd := &cobra.Command{
		Use:   "apply --script FILE [flags] FILE...",
		Short: "Run an edit script against one or more files",
		Long: `Apply runs the steps of a YAML edit script against every file.

Without output flags the edited source is printed to stdout. --write
rewrites changed files in place, --diff prints a unified diff and
--edit-map prints the replaced ranges as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.watch && opts.write {
				return errors.New("--watch cannot be combined with --write")
			}
			sc, err := script.Load(opts.scriptPath)
			if err != nil {
				return err
			}

			out, status := cmd.OutOrStdout(), ux.NewPrinter(cmd.ErrOrStderr())
			results, err := a.applyFiles(cmd.Context(), sc, args)
			if err != nil {
				return err
			}
			for _, res := range results {
				if err := emit(out, status, res, opts); err != nil {
					return err
				}
			}
			if opts.watch {
				return a.watch(cmd.Context(), out, status, args, opts)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.scriptPath, "script", "s", "", "Edit script (YAML)")
	flags.BoolVarP(&opts.write, "write", "w", false, "Rewrite changed files in place")
	flags.BoolVar(&opts.diff, "diff", false, "Print a unified diff")
	flags.BoolVar(&opts.editMap, "edit-map", false, "Print the edit map as JSON")
	flags.BoolVar(&opts.watch, "watch", false, "Re-apply when a file or the script changes")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// applyFiles runs sc against every path in parallel. Results keep the order
// of paths.
func (a *app) applyFiles(ctx context.Context, sc *script.Script, paths []string) ([]*ApplyResult, error) {
	results := make([]*ApplyResult, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			res, err := a.applyFile(gCtx, sc, path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// applyFile opens path in a fresh session and runs sc against it.
func (a *app) applyFile(ctx context.Context, sc *script.Script, path string) (*ApplyResult, error) {
	s, err := a.openFile(ctx, path)
	if err != nil {
		return nil, err
	}
	report, err := script.Run(s, sc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	diff, err := s.Diff()
	if err != nil {
		return nil, fmt.Errorf("%s: rendering diff: %w", path, err)
	}

	a.logger.Debug("Script applied",
		slog.String("file", path),
		slog.String("session", s.ID()),
		slog.Int("steps", report.Steps),
		slog.Int("skipped", report.Skipped),
	)
	return &ApplyResult{
		File:      path,
		SessionID: s.ID(),
		Code:      s.Code(),
		Diff:      diff,
		EditMap:   s.EditMap(),
		Report:    report,
		Changed:   s.Code() != s.Original(),
	}, nil
}

// emit writes one result according to the output flags.
func emit(out io.Writer, status *ux.Printer, res *ApplyResult, opts applyOptions) error {
	if opts.write {
		if !res.Changed {
			status.Muted("unchanged " + res.File)
		} else {
			if err := writeFile(res.File, res.Code); err != nil {
				return err
			}
			status.Success(fmt.Sprintf("wrote %s (%d steps)", res.File, res.Report.Steps))
		}
	}
	if opts.diff {
		if _, err := io.WriteString(out, res.Diff); err != nil {
			return err
		}
	}
	if opts.editMap {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if !opts.write && !opts.diff && !opts.editMap {
		if _, err := io.WriteString(out, res.Code); err != nil {
			return err
		}
	}
	return nil
}

// writeFile replaces path's content, keeping its permissions.
func writeFile(path, code string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(code), info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// watch re-applies the script whenever a source file or the script itself
// is written, until ctx is cancelled. A script change re-runs every file.
// Failures are reported and watching continues.
func (a *app) watch(ctx context.Context, out io.Writer, status *ux.Printer, paths []string, opts applyOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	scriptPath := filepath.Clean(opts.scriptPath)
	for _, p := range append([]string{scriptPath}, paths...) {
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
	}
	status.Muted(fmt.Sprintf("watching %d files, Ctrl-C to stop", len(paths)+1))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			targets := []string{event.Name}
			if filepath.Clean(event.Name) == scriptPath {
				targets = paths
			}
			a.reapply(ctx, out, status, targets, opts)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("Watcher error", slog.String("error", err.Error()))
		}
	}
}

func (a *app) reapply(ctx context.Context, out io.Writer, status *ux.Printer, targets []string, opts applyOptions) {
	sc, err := script.Load(opts.scriptPath)
	if err != nil {
		status.Error(err.Error())
		return
	}
	for _, path := range targets {
		res, err := a.applyFile(ctx, sc, path)
		if err != nil {
			status.Error(err.Error())
			continue
		}
		if err := emit(out, status, res, opts); err != nil {
			status.Error(err.Error())
		}
	}
}
