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
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/importmanager/pkg/logging"
	"github.com/AleutianAI/importmanager/pkg/ux"
	"github.com/AleutianAI/importmanager/services/imports/advisory"
	"github.com/AleutianAI/importmanager/services/imports/ast"
	"github.com/AleutianAI/importmanager/services/imports/config"
	"github.com/AleutianAI/importmanager/services/imports/registry"
	"github.com/AleutianAI/importmanager/services/imports/session"
)

// Exit codes for CLI commands.
const (
	ExitSuccess  = 0 // Operation completed successfully
	ExitError    = 1 // Any failure not listed below
	ExitSyntax   = 2 // A source file does not parse
	ExitMatch    = 3 // A selection matched zero or several units
	ExitContract = 4 // An edit was invalid for its unit
)

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case ast.IsSyntaxError(err):
		return ExitSyntax
	case registry.IsMatchError(err):
		return ExitMatch
	case ast.IsContractError(err):
		return ExitContract
	default:
		return ExitError
	}
}

// app holds state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool
	logDir     string
	otelStdout bool

	cfg      *config.Config
	logger   *logging.Logger
	advisor  *advisory.Advisor
	shutdown func(context.Context) error
}

// run executes the CLI with args and returns the exit code.
//
// # Description
//
// Builds a fresh command tree, executes it, releases the logger and tracer
// provider, and prints the error, if any, to stderr.
//
// # Inputs
//
//   - ctx: Cancelled on SIGINT/SIGTERM. Stops watch mode and the server.
//   - args: Arguments without the program name.
//   - stdout, stderr: Output destinations.
//
// # Outputs
//
//   - int: One of the Exit* constants.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		ux.NewPrinter(stderr).Error(err.Error())
		return exitCode(err)
	}
	return ExitSuccess
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "importmanager",
		Short: "Analyze and edit JavaScript import statements",
		Long: `importmanager finds the module imports, dynamic imports and require
calls of JavaScript files, and applies scripted edits to them while
keeping every untouched byte of the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default $IMPORTMANAGER_CONFIG)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "Log as JSON")
	flags.StringVar(&a.logDir, "log-dir", "", "Also write JSON logs to this directory")
	flags.BoolVar(&a.otelStdout, "otel-stdout", false, "Print analysis trace spans and metrics to stderr")

	root.AddCommand(newAnalyzeCmd(a), newApplyCmd(a), newServeCmd(a))
	return root
}

// init loads configuration and builds the logger, advisor and tracing.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logJSON {
		cfg.Logging.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		Service: "importmanager",
		JSON:    cfg.Logging.JSON,
		Writer:  cmd.ErrOrStderr(),
		LogDir:  a.logDir,
	})

	a.advisor, err = cfg.NewAdvisor(a.logger.Slog())
	if err != nil {
		return fmt.Errorf("creating advisor: %w", err)
	}

	if a.otelStdout {
		a.shutdown, err = setupTelemetry(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) sessionOptions() []session.Option {
	return a.cfg.SessionOptions(a.advisor, a.logger.Slog())
}

// close flushes telemetry and closes the log file.
func (a *app) close() error {
	var errs []error
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.shutdown(ctx))
		cancel()
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}
