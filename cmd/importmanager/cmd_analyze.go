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
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/importmanager/pkg/ux"
	"github.com/AleutianAI/importmanager/services/imports/session"
)

// FileListing is the analysis result for one file.
type FileListing struct {
	File      string             `json:"file"`
	SessionID string             `json:"session_id"`
	TopOffset int                `json:"top_offset"`
	Units     []session.UnitView `json:"units"`
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "List the import units of one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listings, err := a.analyzeFiles(cmd.Context(), args)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listings)
			}
			printListings(ux.NewPrinter(cmd.OutOrStdout()), listings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	return cmd
}

// analyzeFiles opens one session per file in parallel. Results keep the
// order of paths. The first failure cancels the remaining files.
func (a *app) analyzeFiles(ctx context.Context, paths []string) ([]FileListing, error) {
	listings := make([]FileListing, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			s, err := a.openFile(gCtx, path)
			if err != nil {
				return err
			}
			listings[i] = FileListing{
				File:      path,
				SessionID: s.ID(),
				TopOffset: s.TopOffset(),
				Units:     s.Listing(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}

// openFile reads path and analyzes it.
func (a *app) openFile(ctx context.Context, path string) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	return session.Open(ctx, data, path, a.sessionOptions()...)
}

func printListings(p *ux.Printer, listings []FileListing) {
	for i, l := range listings {
		if i > 0 {
			p.Newline()
		}
		p.Title(l.File)
		if len(l.Units) == 0 {
			p.Muted("  no imports")
			continue
		}
		rows := make([][]string, 0, len(l.Units))
		for _, u := range l.Units {
			code := oneLine(u.Code)
			if u.Retired {
				code = "(removed) " + code
			}
			rows = append(rows, []string{strconv.Itoa(u.ID), u.Hash, u.Kind, u.Name, code})
		}
		p.Table(
			[]string{"ID", "HASH", "KIND", "NAME", "CODE"},
			rows,
			[]*lipgloss.Style{&ux.Styles.Highlight, &ux.Styles.Muted, nil, nil, nil},
		)
	}
}

func oneLine(code string) string {
	return strings.Join(strings.Fields(code), " ")
}
