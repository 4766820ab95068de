// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package buffer

import (
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// DefaultContext is the number of unchanged lines around each hunk.
const DefaultContext = 3

const noNewline = "\\ No newline at end of file\n"

// FileDiff builds a unified diff of the recorded edits.
//
// Hunks come straight from the edit map: each edit is widened to the whole
// lines it touches, touching edits share a hunk, and nearby hunks merge when
// their context would overlap. Returns nil if nothing was edited.
func (b *Buffer) FileDiff(name string, context int) *diff.FileDiff {
	if !b.Modified() {
		return nil
	}
	if context < 0 {
		context = 0
	}

	orig := newLineIndex(b.original)
	rendered := b.String()
	groups := b.lineGroups(orig)

	fd := &diff.FileDiff{OrigName: "a/" + name, NewName: "b/" + name}
	for i := 0; i < len(groups); {
		// Collect groups whose context windows meet.
		j := i + 1
		for j < len(groups) && groups[j].oa-groups[j-1].ob <= 2*context {
			j++
		}
		fd.Hunks = append(fd.Hunks, b.hunk(orig, rendered, groups[i:j], context))
		i = j
	}
	return fd
}

// UnifiedDiff renders FileDiff as text. Returns "" if nothing was edited.
func (b *Buffer) UnifiedDiff(name string) (string, error) {
	fd := b.FileDiff(name, DefaultContext)
	if fd == nil {
		return "", nil
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// lineGroup is a run of original lines [oa,ob) rewritten by one or more
// edits. newStart/newEnd address the rewritten text in the rendered output.
type lineGroup struct {
	oa, ob           int
	newStart, newEnd int
}

func (b *Buffer) lineGroups(orig lineIndex) []lineGroup {
	type span struct {
		oa, ob int
		edit   Edit
	}
	var spans []span
	for _, e := range b.EditMap() {
		oa := orig.lineOf(e.OrigStart)
		ob := oa
		switch {
		case e.OrigEnd > e.OrigStart:
			ob = orig.lineOf(e.OrigEnd-1) + 1
		case !orig.lineStart(e.OrigStart):
			ob = oa + 1
		}
		spans = append(spans, span{oa: oa, ob: ob, edit: e})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].oa != spans[j].oa {
			return spans[i].oa < spans[j].oa
		}
		return spans[i].ob < spans[j].ob
	})

	var groups []lineGroup
	delta := 0
	for i := 0; i < len(spans); {
		g := lineGroup{oa: spans[i].oa, ob: spans[i].ob}
		growth := 0
		j := i
		for ; j < len(spans) && (j == i || spans[j].oa < g.ob); j++ {
			if spans[j].ob > g.ob {
				g.ob = spans[j].ob
			}
			e := spans[j].edit
			growth += len(e.Text) - (e.OrigEnd - e.OrigStart)
		}
		start, end := orig.offset(g.oa), orig.offset(g.ob)
		g.newStart = start + delta
		g.newEnd = end + delta + growth
		delta += growth
		groups = append(groups, g)
		i = j
	}
	return groups
}

func (b *Buffer) hunk(orig lineIndex, rendered string, groups []lineGroup, context int) *diff.Hunk {
	first, last := groups[0], groups[len(groups)-1]
	before := min(context, first.oa)
	after := min(context, orig.count()-last.ob)

	var body strings.Builder
	origLines, newLines := 0, 0

	writeContext := func(from, to int) {
		for _, line := range orig.lines(from, to) {
			writeLine(&body, ' ', line)
			origLines++
			newLines++
		}
	}

	writeContext(first.oa-before, first.oa)
	for i, g := range groups {
		if i > 0 {
			writeContext(groups[i-1].ob, g.oa)
		}
		for _, line := range orig.lines(g.oa, g.ob) {
			writeLine(&body, '-', line)
			origLines++
		}
		for _, line := range splitLines(rendered[g.newStart:g.newEnd]) {
			writeLine(&body, '+', line)
			newLines++
		}
	}
	writeContext(last.ob, last.ob+after)

	// Context before the first group is untouched, so its rendered offset
	// is the first group's rendered start minus its length.
	ctxStart := orig.offset(first.oa - before)
	newCtxStart := first.newStart - (orig.offset(first.oa) - ctxStart)
	newFirst := strings.Count(rendered[:newCtxStart], "\n")

	return &diff.Hunk{
		OrigStartLine: hunkStart(first.oa-before, origLines),
		OrigLines:     int32(origLines),
		NewStartLine:  hunkStart(newFirst, newLines),
		NewLines:      int32(newLines),
		Body:          []byte(body.String()),
	}
}

// hunkStart converts a zero-based line index to the unified diff start line,
// which names the preceding line when the range is empty.
func hunkStart(index, count int) int32 {
	if count == 0 {
		return int32(index)
	}
	return int32(index + 1)
}

func writeLine(sb *strings.Builder, prefix byte, line string) {
	sb.WriteByte(prefix)
	sb.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		sb.WriteString("\n")
		sb.WriteString(noNewline)
	}
}

// =============================================================================
// Line index
// =============================================================================

// lineIndex maps byte offsets of a text to line numbers. Lines keep their
// trailing "\n"; a final line without one still counts.
type lineIndex struct {
	text   string
	starts []int
}

func newLineIndex(text string) lineIndex {
	li := lineIndex{text: text}
	for pos := 0; pos < len(text); {
		li.starts = append(li.starts, pos)
		nl := strings.IndexByte(text[pos:], '\n')
		if nl < 0 {
			break
		}
		pos += nl + 1
	}
	return li
}

func (li lineIndex) count() int {
	return len(li.starts)
}

// lineOf returns the line containing off; offsets at the very end of a text
// that ends in "\n" (or is empty) belong to the virtual line count().
func (li lineIndex) lineOf(off int) int {
	if off >= len(li.text) && (len(li.text) == 0 || li.text[len(li.text)-1] == '\n') {
		return li.count()
	}
	return sort.Search(li.count(), func(i int) bool { return li.starts[i] > off }) - 1
}

func (li lineIndex) lineStart(off int) bool {
	return off == 0 || (off <= len(li.text) && li.text[off-1] == '\n')
}

func (li lineIndex) offset(line int) int {
	if line >= li.count() {
		return len(li.text)
	}
	return li.starts[line]
}

func (li lineIndex) lines(from, to int) []string {
	out := make([]string, 0, max(to-from, 0))
	for i := from; i < to && i < li.count(); i++ {
		out = append(out, li.text[li.offset(i):li.offset(i+1)])
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
