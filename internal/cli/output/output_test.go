package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		mode Mode
		want Mode
	}{
		{ModeText, ModeText},
		{ModeMarkdown, ModeMarkdown},
		{ModeJSON, ModeJSON},
		// A plain buffer is not a terminal, so auto degrades to markdown.
		{ModeAuto, ModeMarkdown},
		{"", ModeMarkdown},
	}
	for _, tt := range tests {
		r := NewRenderer(&buf, &buf, tt.mode)
		assert.Equal(t, tt.want, r.EffectiveMode(), string(tt.mode))
	}
}

func TestPrintfAndErrorf(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, ModeText)

	r.Printf("loaded %d rows\n", 3)
	r.Errorf("warning: %s\n", "slow query")

	assert.Equal(t, "loaded 3 rows\n", out.String())
	assert.Equal(t, "warning: slow query\n", errOut.String())
}

func TestCount(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeText)

	assert.Equal(t, "1,234,567", r.Count(1234567))
	assert.Equal(t, "42", r.Count(42))
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, &buf, ModeMarkdown).Header("Stages")
	assert.Equal(t, "## Stages\n\n", buf.String())

	buf.Reset()
	NewRenderer(&buf, &buf, ModeText).Header("Stages")
	assert.Equal(t, "Stages\n", buf.String())
}

func TestTable_Markdown(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeMarkdown)

	r.Table([]string{"Stage", "Status"}, [][]string{
		{"ingest", "success"},
		{"train", "failed"},
	})

	got := buf.String()
	assert.Contains(t, got, "| Stage | Status |")
	assert.Contains(t, got, "| ingest | success |")
	assert.Contains(t, got, "| train | failed |")
}

func TestTable_Text(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeText)

	r.Table([]string{"Stage"}, [][]string{{"ingest"}})

	got := buf.String()
	assert.Contains(t, got, "STAGE")
	assert.Contains(t, got, "ingest")
	assert.NotContains(t, got, "| Stage |", "text mode does not render markdown")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeJSON)

	require.NoError(t, r.JSON(map[string]any{"stage": "ingest", "rows": 3}))

	got := buf.String()
	assert.True(t, strings.HasPrefix(got, "{"))
	assert.JSONEq(t, `{"stage": "ingest", "rows": 3}`, got)
}
