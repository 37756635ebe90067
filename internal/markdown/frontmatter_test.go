package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantOK    bool
		wantLines LineRange
		wantRaw   string
	}{
		{
			name:      "dashes",
			src:       "---\ntitle: x\n---\nbody",
			wantOK:    true,
			wantLines: LineRange{Start: 0, End: 3},
			wantRaw:   "title: x",
		},
		{
			name:      "dots close",
			src:       "---\na: 1\nb: 2\n...\n",
			wantOK:    true,
			wantLines: LineRange{Start: 0, End: 4},
			wantRaw:   "a: 1\nb: 2",
		},
		{
			name:      "crlf",
			src:       "---\r\nx: y\r\n---\r\n",
			wantOK:    true,
			wantLines: LineRange{Start: 0, End: 3},
			wantRaw:   "x: y\r",
		},
		{
			name:   "not at top",
			src:    "\n---\nx: y\n---\n",
			wantOK: false,
		},
		{
			name:   "unterminated",
			src:    "---\nx: y\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, ok := SplitFrontMatter(tt.src)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, fm)
				return
			}
			assert.Equal(t, tt.wantLines, fm.Lines)
			assert.Equal(t, tt.wantRaw, fm.Raw)
		})
	}
}

func TestFrontMatter_References(t *testing.T) {
	src := `---
title: Paper
references:
  - id: knuth84
    title: Literate Programming
    type: article-journal
  - title: missing id is skipped
  - id: lamport94
---
`
	fm, ok := SplitFrontMatter(src)
	require.True(t, ok)

	refs, err := fm.References()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "knuth84", refs[0].ID)
	assert.Equal(t, "Literate Programming", refs[0].Title)
	assert.Equal(t, "lamport94", refs[1].ID)
}

func TestFrontMatter_ReferencesInvalidYAML(t *testing.T) {
	fm := &FrontMatter{Raw: "references: [unclosed"}
	_, err := fm.References()
	assert.Error(t, err)
}

func TestFrontMatter_ReferencesNil(t *testing.T) {
	var fm *FrontMatter
	refs, err := fm.References()
	assert.NoError(t, err)
	assert.Nil(t, refs)
}
