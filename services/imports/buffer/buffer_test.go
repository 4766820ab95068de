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
	"fmt"
	"strings"
	"testing"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_EditsUseOriginalOffsets(t *testing.T) {
	b := New("0123456789")
	require.NoError(t, b.Overwrite(2, 4, "AB"))
	require.NoError(t, b.Insert(6, "x"))
	require.NoError(t, b.Remove(8, 10))

	assert.Equal(t, "01AB45x67", b.String())
	assert.Equal(t, "0123456789", b.Original())
	assert.Equal(t, []Edit{
		{OrigStart: 2, OrigEnd: 4, Text: "AB", NewStart: 2, NewEnd: 4},
		{OrigStart: 6, OrigEnd: 6, Text: "x", NewStart: 6, NewEnd: 7},
		{OrigStart: 8, OrigEnd: 10, Text: "", NewStart: 9, NewEnd: 9},
	}, b.EditMap())
}

func TestBuffer_Supersede(t *testing.T) {
	b := New("0123456789")
	require.NoError(t, b.Overwrite(2, 4, "AB"))
	require.NoError(t, b.Overwrite(2, 4, "CD"))
	assert.Equal(t, "01CD456789", b.String())
	assert.Len(t, b.EditMap(), 1)

	require.NoError(t, b.Overwrite(0, 6, "Z"))
	assert.Equal(t, "Z6789", b.String())
	assert.Len(t, b.EditMap(), 1)

	b = New("0123456789")
	require.NoError(t, b.Insert(3, "in"))
	require.NoError(t, b.Insert(5, "edge"))
	require.NoError(t, b.Remove(2, 5))
	assert.Equal(t, "01edge56789", b.String())
}

func TestBuffer_Overlap(t *testing.T) {
	b := New("0123456789")
	require.NoError(t, b.Overwrite(2, 5, "x"))

	assert.ErrorIs(t, b.Overwrite(4, 7, "y"), ErrOverlap)
	assert.ErrorIs(t, b.Overwrite(3, 4, "q"), ErrOverlap)
	assert.ErrorIs(t, b.Insert(3, "z"), ErrOverlap)

	require.NoError(t, b.Insert(2, "z"))
	require.NoError(t, b.Insert(5, "w"))
	assert.Equal(t, "01zxw56789", b.String())
}

func TestBuffer_InsertOrder(t *testing.T) {
	b := New("0123456789")
	require.NoError(t, b.Insert(5, "a"))
	require.NoError(t, b.Insert(5, "b"))
	assert.Equal(t, "01234ab56789", b.String())
}

func TestBuffer_Untouched(t *testing.T) {
	b := New("0123456789")
	assert.True(t, b.Untouched(0, 10))

	require.NoError(t, b.Remove(4, 6))
	require.NoError(t, b.Insert(8, "x"))

	assert.True(t, b.Untouched(0, 4))
	assert.True(t, b.Untouched(6, 7))
	assert.False(t, b.Untouched(5, 7))
	assert.False(t, b.Untouched(3, 5))
	assert.False(t, b.Untouched(7, 8))
	assert.False(t, b.Untouched(8, 9))
	assert.True(t, b.Untouched(9, 10))
}

func TestBuffer_OutOfRange(t *testing.T) {
	b := New("abc")
	assert.ErrorIs(t, b.Overwrite(1, 20, ""), ErrOutOfRange)
	assert.ErrorIs(t, b.Overwrite(2, 1, ""), ErrOutOfRange)
	assert.ErrorIs(t, b.Insert(-1, "x"), ErrOutOfRange)
	assert.False(t, b.Modified())
}

func parseDiff(t *testing.T, text string) *diff.FileDiff {
	t.Helper()
	fd, err := diff.ParseFileDiff([]byte(text))
	require.NoError(t, err)
	return fd
}

func TestBuffer_UnifiedDiff(t *testing.T) {
	b := New("import a from \"a\";\nconst x = 1;\n")
	require.NoError(t, b.Overwrite(0, 18, `import a, { b } from "a";`))

	text, err := b.UnifiedDiff("app.js")
	require.NoError(t, err)
	assert.Contains(t, text, "-import a from \"a\";\n+import a, { b } from \"a\";\n const x = 1;\n")

	fd := parseDiff(t, text)
	require.Len(t, fd.Hunks, 1)
	h := fd.Hunks[0]
	assert.Equal(t, int32(1), h.OrigStartLine)
	assert.Equal(t, int32(2), h.OrigLines)
	assert.Equal(t, int32(1), h.NewStartLine)
	assert.Equal(t, int32(2), h.NewLines)
}

func TestBuffer_UnifiedDiffSeparateHunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "l%d\n", i)
	}
	b := New(sb.String())
	require.NoError(t, b.Overwrite(0, 2, "L0"))
	require.NoError(t, b.Overwrite(27, 29, "L9"))

	fd := b.FileDiff("f.js", DefaultContext)
	require.Len(t, fd.Hunks, 2)

	first, second := fd.Hunks[0], fd.Hunks[1]
	assert.Equal(t, int32(1), first.OrigStartLine)
	assert.Equal(t, int32(4), first.OrigLines)
	assert.Equal(t, "-l0\n+L0\n l1\n l2\n l3\n", string(first.Body))

	assert.Equal(t, int32(7), second.OrigStartLine)
	assert.Equal(t, int32(4), second.OrigLines)
	assert.Equal(t, int32(7), second.NewStartLine)
	assert.Equal(t, " l6\n l7\n l8\n-l9\n+L9\n", string(second.Body))

	// Wide context merges them.
	assert.Len(t, b.FileDiff("f.js", 4).Hunks, 1)
}

func TestBuffer_UnifiedDiffPureInsert(t *testing.T) {
	b := New("a\nb\n")
	require.NoError(t, b.Insert(0, "x\n"))

	fd := b.FileDiff("f.js", DefaultContext)
	require.Len(t, fd.Hunks, 1)
	h := fd.Hunks[0]
	assert.Equal(t, "+x\n a\n b\n", string(h.Body))
	assert.Equal(t, int32(1), h.OrigStartLine)
	assert.Equal(t, int32(2), h.OrigLines)
	assert.Equal(t, int32(3), h.NewLines)
}

func TestBuffer_UnifiedDiffNoTrailingNewline(t *testing.T) {
	b := New("a")
	require.NoError(t, b.Insert(1, "\nb"))

	fd := b.FileDiff("f.js", DefaultContext)
	require.Len(t, fd.Hunks, 1)
	assert.Equal(t, "-a\n"+noNewline+"+a\n+b\n"+noNewline, string(fd.Hunks[0].Body))
	assert.Equal(t, "a\nb", b.String())
}

func TestBuffer_NoEdits(t *testing.T) {
	b := New("a\n")
	assert.Nil(t, b.FileDiff("f.js", DefaultContext))
	text, err := b.UnifiedDiff("f.js")
	require.NoError(t, err)
	assert.Empty(t, text)
}
