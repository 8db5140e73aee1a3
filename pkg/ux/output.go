// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders clockctl's terminal output.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles holds the lipgloss styles of one renderer.
type Styles struct {
	Title     lipgloss.Style
	Header    lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Cell      lipgloss.Style
	Border    lipgloss.Style
	On        lipgloss.Style
	Off       lipgloss.Style
	Rate      lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	StatusErr lipgloss.Style
}

// NewStyles builds the palette's styles on r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:     r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Header:    r.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
		Bold:      r.NewStyle().Bold(true),
		Muted:     r.NewStyle().Foreground(ColorMuted),
		Cell:      r.NewStyle().Padding(0, 1),
		Border:    r.NewStyle().Foreground(ColorTealDeep),
		On:        r.NewStyle().Foreground(ColorSuccess),
		Off:       r.NewStyle().Foreground(ColorMuted),
		Rate:      r.NewStyle().Foreground(ColorTealBright).Bold(true),
		Warning:   r.NewStyle().Foreground(ColorWarning),
		Error:     r.NewStyle().Foreground(ColorError),
		StatusErr: r.NewStyle().SetString("✗").Foreground(ColorError),
	}
}

// Printer writes clockctl output to one writer at one level.
//
// Thread Safety: not safe for concurrent use.
type Printer struct {
	w      io.Writer
	level  Level
	styles Styles
}

// NewPrinter returns a Printer for w. LevelAuto is resolved against w.
func NewPrinter(w io.Writer, level Level) *Printer {
	return &Printer{
		w:      w,
		level:  Resolve(level, w),
		styles: NewStyles(lipgloss.NewRenderer(w)),
	}
}

// Level returns the resolved output level.
func (p *Printer) Level() Level {
	return p.level
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) plain() bool {
	return p.level == LevelMachine
}

// Title renders text as a heading.
func (p *Printer) Title(text string) string {
	if p.plain() {
		return text
	}
	return p.styles.Title.Render(text)
}

// Muted renders secondary text.
func (p *Printer) Muted(text string) string {
	if p.plain() {
		return text
	}
	return p.styles.Muted.Render(text)
}

// Rate renders a formatted frequency.
func (p *Printer) Rate(text string) string {
	if p.plain() {
		return text
	}
	return p.styles.Rate.Render(text)
}

// State renders a clock state name: on is highlighted, off is muted and
// anything else is a warning.
func (p *Printer) State(state string) string {
	if p.plain() {
		return state
	}
	switch state {
	case "on":
		return p.styles.On.Render(state)
	case "off":
		return p.styles.Off.Render(state)
	default:
		return p.styles.Warning.Render(state)
	}
}

// Result prints "subject: detail" on its own line.
func (p *Printer) Result(subject, format string, args ...any) {
	detail := fmt.Sprintf(format, args...)
	if p.plain() {
		fmt.Fprintf(p.w, "%s: %s\n", subject, detail)
		return
	}
	fmt.Fprintf(p.w, "%s: %s\n", p.styles.Bold.Render(subject), detail)
}

// Field prints an indented "label: value" line under a Result.
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.Muted(label+":"), value)
}

// Line prints text followed by a newline.
func (p *Printer) Line(text string) {
	fmt.Fprintln(p.w, text)
}

// Error prints err as a failure line.
func (p *Printer) Error(err error) {
	if p.plain() {
		fmt.Fprintf(p.w, "Error: %s\n", err)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.styles.StatusErr.String(), p.styles.Error.Render(err.Error()))
}

// Table prints headers and rows. Machine output is tab-separated with a
// header line; the other levels draw a lipgloss table.
func (p *Printer) Table(headers []string, rows [][]string) error {
	if p.plain() {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteByte('\n')
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		_, err := io.WriteString(p.w, b.String())
		return err
	}

	t := table.New().
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.styles.Header
			}
			return p.styles.Cell
		})
	if p.level == LevelMinimal {
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).
			BorderBottom(false).
			BorderLeft(false).
			BorderRight(false).
			BorderHeader(false).
			BorderColumn(false)
	} else {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(p.styles.Border)
	}
	_, err := fmt.Fprintln(p.w, t.String())
	return err
}
