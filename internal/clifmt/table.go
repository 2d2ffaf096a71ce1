package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultTableWidth = 100
	minDetailWidth    = 36
)

// SessionRow is one registered session as shown by the sessions command.
type SessionRow struct {
	ID     string
	Live   bool
	Detail string
}

// PrintSessionTable renders sessions as a two-column table, wrapping the
// detail column to the terminal width.
func PrintSessionTable(out io.Writer, rows []SessionRow) {
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintln(out, Headerf("sessions (%d)", len(rows)))
	if len(rows) == 0 {
		fmt.Fprintln(out, Warn("No sessions registered."))
		return
	}

	nameWidth := utf8.RuneCountInString("SESSION")
	for _, row := range rows {
		if w := utf8.RuneCountInString(row.ID); w > nameWidth {
			nameWidth = w
		}
	}
	detailWidth := detailColumnWidth(out, nameWidth)

	fmt.Fprintf(out, "%s  %s\n", Key(padRight("SESSION", nameWidth)), Key("DETAILS"))
	fmt.Fprintf(out, "%s  %s\n", Dim(strings.Repeat("-", nameWidth)), Dim(strings.Repeat("-", detailWidth)))

	for _, row := range rows {
		name := padRight(row.ID, nameWidth)
		if row.Live {
			name = Success(name)
		} else {
			name = Warn(name)
		}
		lines := wrapRunes(row.Detail, detailWidth)
		fmt.Fprintf(out, "%s  %s\n", name, lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(out, "%s  %s\n", strings.Repeat(" ", nameWidth), line)
		}
	}
}

func detailColumnWidth(out io.Writer, nameWidth int) int {
	width := defaultTableWidth
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if termWidth, _, err := term.GetSize(int(file.Fd())); err == nil && termWidth > 0 {
			width = termWidth
		}
	}
	if detailWidth := width - nameWidth - 2; detailWidth >= minDetailWidth {
		return detailWidth
	}
	return minDetailWidth
}

func padRight(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

func wrapRunes(text string, width int) []string {
	text = strings.TrimSpace(text)
	if text == "" || width <= 0 {
		return []string{text}
	}

	words := strings.Fields(text)
	lines := make([]string, 0, len(words))
	current := ""

	flush := func() {
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
	}

	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			flush()
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
		}
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			flush()
			current = word
		}
	}
	flush()

	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
