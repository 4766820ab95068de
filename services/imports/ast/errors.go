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
	"errors"
	"fmt"
)

// Sentinel errors for analysis and edit failures.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrSyntax indicates the source could not be parsed. Analysis of the
	// whole file fails; there are no partial results.
	ErrSyntax = errors.New("syntax error")

	// ErrContract indicates an operation that is invalid for the unit it was
	// applied to: wrong group for the kind, unknown mode, missing or
	// ambiguous member, retired unit.
	ErrContract = errors.New("contract violation")

	// ErrFileTooLarge indicates the content exceeds the analyzer's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")
)

// SyntaxError reports where the parser first failed.
//
// Example:
//
//	_, err := analyzer.Analyze(ctx, src, "main.js")
//	var synErr *SyntaxError
//	if errors.As(err, &synErr) {
//	    fmt.Printf("%s:%d:%d\n", synErr.FilePath, synErr.Line, synErr.Column)
//	}
type SyntaxError struct {
	// FilePath is the file being analyzed.
	FilePath string

	// Line is 1-indexed; 0 when unknown.
	Line int

	// Column is 1-indexed; 0 when unknown.
	Column int

	// Message describes the failure.
	Message string
}

// Error returns "file:line:col: message" with as much location as is known.
func (e *SyntaxError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns ErrSyntax.
func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// ContractError reports an invalid operation on a unit.
type ContractError struct {
	// Op is the operation that was refused, e.g. "renameModule".
	Op string

	// UnitID is the unit the operation targeted; 0 when not unit-specific.
	UnitID int

	// Message describes the violation.
	Message string
}

// Error returns "op: unit N: message".
func (e *ContractError) Error() string {
	if e.UnitID != 0 {
		return fmt.Sprintf("%s: unit %d: %s", e.Op, e.UnitID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns ErrContract.
func (e *ContractError) Unwrap() error {
	return ErrContract
}

// NewContractError builds a ContractError with a formatted message.
func NewContractError(op string, unitID int, format string, args ...any) *ContractError {
	return &ContractError{
		Op:      op,
		UnitID:  unitID,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsSyntaxError checks if an error is or wraps ErrSyntax.
func IsSyntaxError(err error) bool {
	return errors.Is(err, ErrSyntax)
}

// IsContractError checks if an error is or wraps ErrContract.
func IsContractError(err error) bool {
	return errors.Is(err, ErrContract)
}
