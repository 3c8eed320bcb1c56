package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"tasksched/domain/task"
)

// Formatter renders command results.
type Formatter interface {
	Format(data any) (string, error)
}

// JSONFormatter renders any value as JSON.
type JSONFormatter struct {
	Indent bool
}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(data any) (string, error) {
	var (
		bytes []byte
		err   error
	)
	if f.Indent {
		bytes, err = json.MarshalIndent(data, "", "  ")
	} else {
		bytes, err = json.Marshal(data)
	}
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// TableFormatter renders tasks and run records as aligned columns and
// falls back to JSON for anything else.
type TableFormatter struct{}

func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

func (f *TableFormatter) Format(data any) (string, error) {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	switch v := data.(type) {
	case []task.Task:
		fmt.Fprintln(w, "NAME\tDUE DATE\tSTATE\tCOMMAND")
		for _, t := range v {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.DueDate.UTC().Format(time.RFC3339), t.State, t.Command)
		}
	case []task.TaskLog:
		fmt.Fprintln(w, "RUN ID\tTASK\tRUN DATE\tCOMPLETED\tRETURN CODE")
		for _, l := range v {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.RunID, l.TaskName,
				l.RunDate.UTC().Format(time.RFC3339), formatTime(l.CompleteDate), deref(l.ReturnCode))
		}
	case *task.TaskLog:
		writeLog(&sb, v)
		return sb.String(), nil
	default:
		return NewJSONFormatter().Format(data)
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func writeLog(w io.Writer, l *task.TaskLog) {
	fmt.Fprintf(w, "run id:      %s\n", l.RunID)
	fmt.Fprintf(w, "task:        %s\n", l.TaskName)
	fmt.Fprintf(w, "run date:    %s\n", l.RunDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "completed:   %s\n", formatTime(l.CompleteDate))
	fmt.Fprintf(w, "return code: %s\n", deref(l.ReturnCode))
	fmt.Fprintf(w, "--- output ---\n%s", l.Output)
	if l.Error != "" {
		fmt.Fprintf(w, "\n--- error ---\n%s", l.Error)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// New picks a formatter by name: "json" or "table".
func New(format string) (Formatter, error) {
	switch format {
	case "", "table":
		return NewTableFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
