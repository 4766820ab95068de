// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output. Styling is applied only when the
// destination is a terminal; pipes and files get plain, greppable text.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - headers
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - ids and hashes
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the shared lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Header    lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Header:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealDeep),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes status lines and tables to one destination.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter creates a printer that styles output only if w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styled: IsTerminal(w)}
}

// NewPlainPrinter creates a printer that never styles.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Styled reports whether output carries ANSI styling.
func (p *Printer) Styled() bool { return p.styled }

// Render applies style when styling is enabled.
func (p *Printer) Render(style lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return style.Render(text)
}

// Title prints a styled title.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.Render(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	p.status(IconSuccess, "OK", Styles.Success, text)
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	p.status(IconWarning, "WARN", Styles.Warning, text)
}

// Error prints an error message
func (p *Printer) Error(text string) {
	p.status(IconError, "ERROR", Styles.Error, text)
}

// Newline prints an empty line.
func (p *Printer) Newline() {
	fmt.Fprintln(p.w)
}

// Muted prints muted/secondary text
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.w, p.Render(Styles.Muted, text))
}

func (p *Printer) status(icon Icon, tag string, style lipgloss.Style, text string) {
	if !p.styled {
		fmt.Fprintf(p.w, "%s: %s\n", tag, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", style.Render(string(icon)), style.Render(text))
}

// Table prints rows in aligned columns separated by two spaces. The last
// column is not padded. Cell styles apply per column and may be nil.
func (p *Printer) Table(header []string, rows [][]string, styles []*lipgloss.Style) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style func(i int) *lipgloss.Style) {
		var b strings.Builder
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			text := cell
			if s := style(i); s != nil {
				text = p.Render(*s, cell)
			}
			b.WriteString(text)
			if i < len(cells)-1 && i < len(widths) {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
			}
		}
		fmt.Fprintln(p.w, strings.TrimRight(b.String(), " "))
	}

	line(header, func(int) *lipgloss.Style { return &Styles.Header })
	for _, row := range rows {
		line(row, func(i int) *lipgloss.Style {
			if i < len(styles) {
				return styles[i]
			}
			return nil
		})
	}
}
