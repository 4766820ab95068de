// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package buffer holds a whole-file text buffer with positional edits.
//
// Every edit is addressed in ORIGINAL offsets and recorded, not applied.
// The resulting text, the edit map and the unified diff are all rendered
// from the recorded edits, so earlier edits never shift later positions.
//
// Overlap rules:
//
//   - An edit whose range equals or contains an earlier range supersedes it.
//   - Zero-width inserts strictly inside a superseding range are dropped.
//   - Partial overlap, or an edit inside an earlier larger range, fails with
//     ErrOverlap.
//   - Inserts at the same offset render in the order they were made, before
//     any replacement starting there.
package buffer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrOverlap indicates an edit partially overlaps an earlier one.
	ErrOverlap = errors.New("overlapping edit")

	// ErrOutOfRange indicates an edit outside the original text.
	ErrOutOfRange = errors.New("edit out of range")
)

// Edit is one entry of the edit map.
type Edit struct {
	// OrigStart and OrigEnd address the replaced range in the original text.
	OrigStart int `json:"orig_start"`
	OrigEnd   int `json:"orig_end"`

	// Text replaces the range.
	Text string `json:"text"`

	// NewStart and NewEnd address Text in the rendered output.
	NewStart int `json:"new_start"`
	NewEnd   int `json:"new_end"`
}

type replacement struct {
	start, end int
	text       string
	seq        int
}

func (r replacement) insert() bool {
	return r.start == r.end
}

// Buffer records edits against an immutable original text.
//
// Thread Safety: not safe for concurrent use.
type Buffer struct {
	original string
	edits    []replacement
	seq      int
}

// New creates a buffer over original.
func New(original string) *Buffer {
	return &Buffer{original: original}
}

// Original returns the unedited text.
func (b *Buffer) Original() string {
	return b.original
}

// Len returns the length of the original text.
func (b *Buffer) Len() int {
	return len(b.original)
}

// Modified reports whether any edit is recorded.
func (b *Buffer) Modified() bool {
	return len(b.edits) > 0
}

// Untouched reports whether no edit overlaps original [start,end) and no
// insert lands anywhere in [start,end].
func (b *Buffer) Untouched(start, end int) bool {
	for _, e := range b.edits {
		if e.insert() {
			if start <= e.start && e.start <= end {
				return false
			}
			continue
		}
		if e.start < end && start < e.end {
			return false
		}
	}
	return true
}

// Overwrite replaces original [start,end) with text.
func (b *Buffer) Overwrite(start, end int, text string) error {
	if start < 0 || end < start || end > len(b.original) {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrOutOfRange, start, end, len(b.original))
	}
	if start == end {
		return b.Insert(start, text)
	}

	kept := b.edits[:0:0]
	for _, e := range b.edits {
		switch {
		case e.insert():
			if e.start > start && e.start < end {
				continue
			}
		case start <= e.start && e.end <= end:
			continue
		case e.end <= start || end <= e.start:
		default:
			return fmt.Errorf("%w: [%d,%d) intersects earlier edit [%d,%d)", ErrOverlap, start, end, e.start, e.end)
		}
		kept = append(kept, e)
	}

	b.edits = append(kept, b.next(start, end, text))
	return nil
}

// Remove deletes original [start,end).
func (b *Buffer) Remove(start, end int) error {
	return b.Overwrite(start, end, "")
}

// Insert adds text at original offset at without replacing anything.
func (b *Buffer) Insert(at int, text string) error {
	if at < 0 || at > len(b.original) {
		return fmt.Errorf("%w: offset %d in %d bytes", ErrOutOfRange, at, len(b.original))
	}
	for _, e := range b.edits {
		if !e.insert() && e.start < at && at < e.end {
			return fmt.Errorf("%w: offset %d is inside earlier edit [%d,%d)", ErrOverlap, at, e.start, e.end)
		}
	}
	b.edits = append(b.edits, b.next(at, at, text))
	return nil
}

func (b *Buffer) next(start, end int, text string) replacement {
	b.seq++
	return replacement{start: start, end: end, text: text, seq: b.seq}
}

// sorted returns the edits in render order.
func (b *Buffer) sorted() []replacement {
	edits := append([]replacement(nil), b.edits...)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		if edits[i].insert() != edits[j].insert() {
			return edits[i].insert()
		}
		return edits[i].seq < edits[j].seq
	})
	return edits
}

// String renders the edited text.
func (b *Buffer) String() string {
	var sb strings.Builder
	sb.Grow(len(b.original))
	pos := 0
	for _, e := range b.sorted() {
		sb.WriteString(b.original[pos:e.start])
		sb.WriteString(e.text)
		pos = e.end
	}
	sb.WriteString(b.original[pos:])
	return sb.String()
}

// EditMap lists every recorded edit in render order with its position in
// the rendered text.
func (b *Buffer) EditMap() []Edit {
	edits := b.sorted()
	out := make([]Edit, 0, len(edits))
	delta := 0
	for _, e := range edits {
		newStart := e.start + delta
		out = append(out, Edit{
			OrigStart: e.start,
			OrigEnd:   e.end,
			Text:      e.text,
			NewStart:  newStart,
			NewEnd:    newStart + len(e.text),
		})
		delta += len(e.text) - (e.end - e.start)
	}
	return out
}
