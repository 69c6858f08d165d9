package diff

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/samber/oops"
)

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return oops.Code("io_error").Wrapf(err, "report encode error")
	}
	return nil
}

// WriteText writes a human-readable report. When diffOnly is set the
// unchanged section is suppressed.
func (r *Report) WriteText(w io.Writer, diffOnly bool) error {
	green := color.New(color.FgGreen).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	yellow := color.New(color.FgYellow).SprintfFunc()
	bold := color.New(color.Bold).SprintfFunc()

	fmt.Fprintf(w, "%s\n", bold("Comparing %s against %s", r.LeftFormat, r.RightFormat))
	fmt.Fprintf(w, "%d added, %d removed, %d modified, %d unchanged\n\n",
		len(r.Added), len(r.Removed), len(r.Modified), len(r.Unchanged))

	for _, e := range r.Added {
		fmt.Fprintf(w, "%s\n", green("+ %s", label(e)))
	}
	for _, e := range r.Removed {
		fmt.Fprintf(w, "%s\n", red("- %s", label(e)))
	}
	for _, m := range r.Modified {
		fmt.Fprintf(w, "%s\n", yellow("~ %s", label(m.Entry)))
		for _, c := range m.Changes {
			fmt.Fprintf(w, "    %s: %q -> %q\n", c.Field, c.Left, c.Right)
		}
	}
	if !diffOnly {
		for _, e := range r.Unchanged {
			fmt.Fprintf(w, "  %s\n", label(e))
		}
	}

	if len(r.EdgesAdded)+len(r.EdgesRemoved) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Dependencies"))
		for _, e := range r.EdgesAdded {
			fmt.Fprintf(w, "%s\n", green("+ %s -> %s", e.Source, e.Target))
		}
		for _, e := range r.EdgesRemoved {
			fmt.Fprintf(w, "%s\n", red("- %s -> %s", e.Source, e.Target))
		}
	}

	if len(r.VulnsAdded)+len(r.VulnsRemoved) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Vulnerabilities"))
		for _, v := range r.VulnsAdded {
			fmt.Fprintf(w, "%s\n", green("+ %s", vulnLabel(v)))
		}
		for _, v := range r.VulnsRemoved {
			fmt.Fprintf(w, "%s\n", red("- %s", vulnLabel(v)))
		}
	}
	return nil
}

// HasChanges reports whether anything differs between the two documents.
func (r *Report) HasChanges() bool {
	return len(r.Added)+len(r.Removed)+len(r.Modified)+
		len(r.EdgesAdded)+len(r.EdgesRemoved)+
		len(r.VulnsAdded)+len(r.VulnsRemoved) > 0
}

func label(e Entry) string {
	if e.Version != "" {
		return fmt.Sprintf("%s@%s", e.Name, e.Version)
	}
	if e.Name != "" {
		return e.Name
	}
	return e.Key
}

func vulnLabel(v VulnEntry) string {
	if v.State != "" {
		return fmt.Sprintf("%s (%s)", v.ID, v.State)
	}
	return v.ID
}
