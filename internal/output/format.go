// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"taskdeck/internal/service"
	"taskdeck/internal/state"
)

const (
	// Separator is the line printed between the task list and its summary.
	Separator = "------------"

	// descriptionIndent aligns descriptions under task titles.
	descriptionIndent = "          "
)

// FormatTask formats a task line.
// Format: "{N:>4}  [x] {TITLE}\n" (4-wide right-aligned number, two spaces,
// completion box, title). A description follows on its own indented line.
func FormatTask(w io.Writer, num int, task service.Task) {
	box := "[ ]"
	if task.Completed {
		box = "[x]"
	}
	fmt.Fprintf(w, "%4d  %s %s\n", num, box, normalizeTitle(task.Title))
	if desc := normalizeText(task.Description); desc != "" {
		fmt.Fprintf(w, "%s%s\n", descriptionIndent, desc)
	}
}

// FormatSummary formats the total/completed/pending line.
func FormatSummary(w io.Writer, s state.Stats) {
	noun := "tasks"
	if s.Total == 1 {
		noun = "task"
	}
	fmt.Fprintf(w, "%d %s, %d completed, %d pending\n", s.Total, noun, s.Completed, s.Pending)
}

// FormatUser formats the signed-in user.
// Format: "{NAME} <{EMAIL}>\n", or "{EMAIL}\n" when the user has no name.
func FormatUser(w io.Writer, u service.User) {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		fmt.Fprintln(w, u.Email)
		return
	}
	fmt.Fprintf(w, "%s <%s>\n", name, u.Email)
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = normalizeText(title)
	if title == "" {
		return "(untitled)"
	}
	return title
}

// normalizeText flattens newlines and trims surrounding space.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
