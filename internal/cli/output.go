package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/castlight/rolodex/internal/record"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // operation failed (record not found, rejected write, ...)
	ExitCommandError = 2 // command error (bad flags, unreadable config, ...)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not
// ExitErrors map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response envelope.
type CLIResponse struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success outputs a successful result in the configured format. For text
// output the caller usually renders its own lines and passes a short
// summary here.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// SuccessJSON outputs data as JSON, and nothing in text mode. For commands
// whose text rendering is done line by line before the final status.
func (f *OutputFormatter) SuccessJSON(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: message})
	}
	fmt.Fprintf(f.Writer, "Error: %s\n", message)
	return nil
}

// recordSummary is the wire shape of one record in command output.
type recordSummary struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Verified     bool   `json:"verified"`
	Pinned       bool   `json:"pinned"`
	Interactions int    `json:"interactions"`
	LastOpened   string `json:"last_opened,omitempty"`
}

func summarize(r *record.Record) recordSummary {
	s := recordSummary{
		ID:           r.ID,
		Type:         string(r.Type),
		Name:         r.Name,
		Verified:     r.IsVerified,
		Pinned:       r.IsPinned,
		Interactions: r.InteractionCount,
	}
	if !r.LastOpenedTime.IsZero() {
		s.LastOpened = r.LastOpenedTime.UTC().Format(time.RFC3339)
	}
	return s
}

func summarizeAll(recs []*record.Record) []recordSummary {
	out := make([]recordSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, summarize(r))
	}
	return out
}

// renderRecordLine writes one record as a fixed-width text row.
func renderRecordLine(w io.Writer, r *record.Record) {
	flags := ""
	if r.IsPinned {
		flags += "P"
	}
	if r.IsVerified {
		flags += "V"
	}
	if r.IsNoNameGroup {
		flags += "?"
	}
	name := r.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "%-28s  %-7s  %-3s  %s\n", r.ID, r.Type, flags, name)
}
