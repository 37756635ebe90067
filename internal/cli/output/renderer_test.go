package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"text", ModeText},
		{"table", ModeText},
		{"MD", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Mode(tt.in), "Mode(%q)", tt.in)
	}
}

func TestEffectiveMode(t *testing.T) {
	var out, errOut bytes.Buffer

	assert.Equal(t, ModeText, NewRendererWithTTY(&out, &errOut, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &errOut, true, ModeJSON).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, "").EffectiveMode())

	// A buffer is never a terminal.
	assert.False(t, NewRenderer(&out, &errOut, ModeAuto).IsTTY())
}

func TestTable(t *testing.T) {
	headers := []string{"Language", "Lines"}
	rows := [][]string{{"python", "3-5"}, {"r", "8-9"}}

	t.Run("markdown", func(t *testing.T) {
		var out bytes.Buffer
		r := NewRendererWithTTY(&out, &out, false, ModeMarkdown)
		require.NoError(t, r.Table(headers, rows))
		assert.Contains(t, out.String(), "| Language | Lines |")
		assert.Contains(t, out.String(), "| python | 3-5 |")
	})

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		r := NewRendererWithTTY(&out, &out, true, ModeText)
		require.NoError(t, r.Table(headers, rows))
		assert.Contains(t, out.String(), "LANGUAGE")
		assert.Contains(t, out.String(), "python")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		r := NewRendererWithTTY(&out, &out, false, ModeJSON)
		require.NoError(t, r.Table(headers, rows))

		var got []map[string]string
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "r", got[1]["Language"])
	})
}

func TestStatusLine(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeMarkdown)

	r.StatusLine("quarto", "success", "1.5.57")
	r.StatusLine("julia", "failed", "")

	assert.Equal(t, "- ✓ quarto: 1.5.57\n- ✗ julia\n", out.String())
}

func TestMessages(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeMarkdown)

	r.Success("wrote walkthrough.qmd")
	r.Warning("quarto not found")
	r.Header(2, "Servers")

	assert.Equal(t, "✓ wrote walkthrough.qmd\n## Servers\n\n", out.String())
	assert.Equal(t, "! quarto not found\n", errOut.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Deep", FormatHeader(3, "Deep"))
	assert.Equal(t, "- **Path:** /usr/bin/quarto", FormatKeyValue("Path", "/usr/bin/quarto"))
}
