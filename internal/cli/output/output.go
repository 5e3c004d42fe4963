// Package output renders CLI results as text tables, markdown, or JSON.
// Text output is chosen automatically when stdout is a terminal;
// markdown otherwise, so piped output stays script-friendly.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Mode is the output rendering mode.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Renderer writes formatted output for CLI commands.
type Renderer struct {
	out     io.Writer
	errOut  io.Writer
	mode    Mode
	printer *message.Printer
}

// NewRenderer creates a renderer writing to the given streams.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:     out,
		errOut:  errOut,
		mode:    mode,
		printer: message.NewPrinter(language.English),
	}
}

// EffectiveMode resolves ModeAuto based on whether stdout is a
// terminal.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if f, ok := r.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ModeText
	}
	return ModeMarkdown
}

// Out returns the output stream.
func (r *Renderer) Out() io.Writer {
	return r.out
}

// Println writes a line to the output stream.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to the output stream.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Errorf writes formatted text to the error stream.
func (r *Renderer) Errorf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.errOut, format, a...)
}

// Count formats an integer with thousands separators.
func (r *Renderer) Count(n int64) string {
	return r.printer.Sprintf("%d", n)
}

// Header writes a section header in the effective mode.
func (r *Renderer) Header(text string) {
	switch r.EffectiveMode() {
	case ModeMarkdown:
		r.Printf("## %s\n\n", text)
	default:
		r.Printf("%s\n", text)
	}
}

// Table renders headers and rows as a light-styled table in text mode
// or a markdown table otherwise.
func (r *Renderer) Table(headers []string, rows [][]string) {
	t := prettytable.NewWriter()
	t.SetOutputMirror(r.out)

	headerRow := make(prettytable.Row, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(prettytable.Row, len(row))
		for i, cell := range row {
			tr[i] = cell
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.SetStyle(prettytable.StyleLight)
	t.Render()
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
