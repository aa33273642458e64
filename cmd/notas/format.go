package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ernanint/notas-de-vidro/client"
)

var (
	headerColor  = color.New(color.Bold)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

func errorLabel() string {
	return errorColor.Sprint("Error:")
}

func formatJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode json: %v\n", err)
		os.Exit(1)
	}
}

// formatTable pads before colouring so escape codes do not skew widths.
func formatTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	pad := func(cells []string) []string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = fmt.Sprintf("%-*s", w, cell)
		}
		return parts
	}

	fmt.Println(headerColor.Sprint(strings.Join(pad(headers), "  ")))
	seps := make([]string, len(headers))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	fmt.Println(strings.Join(pad(seps), "  "))
	for _, row := range rows {
		fmt.Println(strings.Join(pad(row), "  "))
	}
}

func formatQuiet(id string) {
	fmt.Println(id)
}

func output(v any, quietVal string) {
	switch flagFmt {
	case "quiet":
		formatQuiet(quietVal)
	default:
		formatJSON(v)
	}
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func entityRows(items []client.Entity, completable bool) ([]string, [][]string) {
	headers := []string{"ID", "TITLE", "OWNER", "SHARED WITH", "UPDATED"}
	if completable {
		headers = append([]string{"DONE"}, headers...)
	}

	rows := make([][]string, 0, len(items))
	for _, e := range items {
		row := []string{e.ID, e.Title, e.Owner, strings.Join(e.SharedWith, ","), shortTime(e.UpdatedAt)}
		if completable {
			row = append([]string{checkbox(e.Completed)}, row...)
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// describeChange renders one history entry as a short sentence.
func describeChange(c client.ChangeRecord) string {
	who := c.ActorDisplayName
	if who == "" {
		who = c.ActorID
	}

	switch c.Kind {
	case "shared":
		return fmt.Sprintf("%s shared with %s", who, c.Target)
	case "unshared":
		return fmt.Sprintf("%s stopped sharing with %s", who, c.Target)
	case "modified":
		s := fmt.Sprintf("%s changed %s", who, strings.Join(c.Fields, ", "))
		if c.Reason != "" {
			s += fmt.Sprintf(" (%s)", c.Reason)
		}
		return s
	case "legacy":
		return fmt.Sprintf("%s: %s", who, c.Reason)
	default:
		return fmt.Sprintf("%s %s", who, c.Kind)
	}
}

func historyRows(changes []client.ChangeRecord) ([]string, [][]string) {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{shortTime(c.OccurredAt), describeChange(c)})
	}
	return []string{"WHEN", "CHANGE"}, rows
}

func noticeLine(n *client.Notice) string {
	label := successColor.Sprint("✓")
	if n.Level == "error" {
		label = errorColor.Sprint("✗")
	}

	line := label + " " + n.Title
	if n.Message != "" {
		line += dimColor.Sprint(": " + n.Message)
	}
	return line
}
