package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Format selects one of the two mutually exclusive output modes a
// controller run is fixed to at startup (spec §4.5).
type Format int

const (
	FormatPlain Format = iota
	FormatJSON
)

var (
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Printer renders ResponseEvents to w in the configured Format.
type Printer struct {
	w      io.Writer
	format Format
	color  bool
}

// NewPrinter builds a Printer. color is ignored in FormatJSON.
func NewPrinter(w io.Writer, format Format, color bool) *Printer {
	return &Printer{w: w, format: format, color: color}
}

// OnResponse is an Options.OnResponse implementation: wire it directly
// into a Correlator's Options to print as responses arrive.
func (p *Printer) OnResponse(ev ResponseEvent) {
	if p.format == FormatJSON {
		p.printJSON(ev)
		return
	}
	p.printPlain(ev)
}

type jsonLine struct {
	Seq     int    `json:"seq"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Verb    string `json:"verb"`
	Ok      any    `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
	Time    string `json:"time"`
}

func (p *Printer) printJSON(ev ResponseEvent) {
	line := jsonLine{
		Seq:     ev.Seq,
		ID:      ev.ID,
		Name:    ev.Name,
		Verb:    string(ev.Verb.Kind),
		Ok:      ev.Resp.Ok,
		Error:   ev.Resp.Error,
		Success: ev.Success,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(line)
	if err != nil {
		fmt.Fprintf(p.w, `{"id":%q,"error":"marshal failed"}`+"\n", ev.ID)
		return
	}
	fmt.Fprintln(p.w, string(raw))
}

func (p *Printer) printPlain(ev ResponseEvent) {
	status := "ok"
	value := fmt.Sprint(ev.Resp.Ok)
	if ev.Resp.IsError() {
		status = "error"
		value = ev.Resp.Error
	} else if !ev.Success {
		status = "failed"
	}

	if p.color {
		style := okStyle
		if status != "ok" {
			style = errStyle
		}
		status = style.Render(status)
	}

	fmt.Fprintf(p.w, "%s\t%s\t%s\t%s\n", ev.ID, ev.Name, status, value)
}

// PrintSummary prints the final plain-mode pipeline verdict; JSON mode
// emits no separate summary line, matching the per-response structured
// stream being the complete machine-readable record.
func (p *Printer) PrintSummary(success bool, expected, replied int) {
	if p.format == FormatJSON {
		return
	}
	verdict := "OK"
	style := okStyle
	if !success {
		verdict = "FAILED"
		style = errStyle
	}
	if p.color {
		verdict = style.Render(verdict)
	}
	fmt.Fprintf(p.w, "%s (%d/%d responded)\n", verdict, replied, expected)
}
