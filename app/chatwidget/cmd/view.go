package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/cchalm/chatwidget/internal/attachment"
	"github.com/cchalm/chatwidget/internal/persist"
)

var (
	// Styles.
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	canceledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")).
			Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// terminalView prints transcript changes to a terminal. Streamed text is written as it arrives; replies that arrive
// whole are rendered as markdown.
type terminalView struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *glamour.TermRenderer
	theme    persist.Theme
	streamed map[int]int // Bytes of streamed text already printed, per record index

	quietReset bool
}

func newTerminalView(out io.Writer) *terminalView {
	v := &terminalView{out: out, theme: persist.ThemeLight, streamed: map[int]int{}}
	v.renderer = newRenderer(v.theme)
	return v
}

func newRenderer(theme persist.Theme) *glamour.TermRenderer {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(80)}
	switch {
	case os.Getenv("NO_COLOR") != "":
		opts = append(opts, glamour.WithStylePath("notty"))
	case theme == persist.ThemeDark:
		opts = append(opts, glamour.WithStandardStyle("dark"))
	default:
		opts = append(opts, glamour.WithStandardStyle("light"))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil // Fall back to plain text
	}
	return r
}

func (v *terminalView) Reset(records []persist.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.streamed = map[int]int{}
	if v.quietReset {
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(v.out, hintStyle.Render("(no messages)"))
		return
	}
	for i, r := range records {
		v.printRecord(i, r)
	}
}

func (v *terminalView) Appended(index int, r persist.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r.HasClass(persist.ClassThinking) {
		fmt.Fprintf(v.out, "%s %s ", header(index, r), hintStyle.Render("..."))
		return
	}
	v.printRecord(index, r)
}

func (v *terminalView) Updated(index int, r persist.Record, final bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	printed := v.streamed[index]
	if !final {
		if len(r.Text) > printed {
			if printed == 0 {
				fmt.Fprintln(v.out)
			}
			fmt.Fprint(v.out, r.Text[printed:])
			v.streamed[index] = len(r.Text)
		}
		return
	}

	delete(v.streamed, index)
	switch {
	case r.HasClass(persist.ClassError):
		fmt.Fprintln(v.out, errorStyle.Render(r.Text))
	case r.HasClass(persist.ClassCanceled):
		if printed > 0 {
			fmt.Fprintln(v.out)
		}
		fmt.Fprintln(v.out, canceledStyle.Render(r.Text))
	case printed > 0:
		fmt.Fprintln(v.out)
	default:
		fmt.Fprintln(v.out)
		fmt.Fprint(v.out, v.render(r.Text))
	}
}

func (v *terminalView) Removed(index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, hintStyle.Render(fmt.Sprintf("Removed message %d", index+1)))
}

func (v *terminalView) AttachmentChanged(a *attachment.Attachment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a == nil {
		return
	}
	fmt.Fprintln(v.out, hintStyle.Render(fmt.Sprintf("Attached %s (%s, %d KB)", a.Name, a.MIMEType, (a.Size+512)/1024)))
}

func (v *terminalView) ThemeChanged(theme persist.Theme) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if theme == v.theme {
		return
	}
	v.theme = theme
	v.renderer = newRenderer(theme)
	fmt.Fprintln(v.out, hintStyle.Render(fmt.Sprintf("Theme: %s", theme)))
}

func (v *terminalView) printRecord(index int, r persist.Record) {
	text := r.Text
	if text == "" {
		text = persist.PlainText(r.HTML)
	}
	switch {
	case r.HasClass(persist.ClassError):
		text = errorStyle.Render(text)
	case r.HasClass(persist.ClassCanceled):
		text = canceledStyle.Render(text)
	}
	fmt.Fprintf(v.out, "%s %s\n", header(index, r), text)
}

func (v *terminalView) render(markdown string) string {
	if v.renderer == nil {
		return markdown + "\n"
	}
	out, err := v.renderer.Render(markdown)
	if err != nil {
		return markdown + "\n"
	}
	return strings.TrimLeft(out, "\n")
}

func header(index int, r persist.Record) string {
	style, who := botStyle, "Bot"
	if r.IsUser() {
		style, who = userStyle, "You"
	}
	return fmt.Sprintf("%s %s", hintStyle.Render(fmt.Sprintf("%d [%s]", index+1, r.TS)), style.Render(who+":"))
}
