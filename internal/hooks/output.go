package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// Result is what a hook writes to stdout.
type Result struct {
	Event  string          `json:"event"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// WriteResult writes a hook result as one JSON line.
func WriteResult(w io.Writer, r Result) error {
	return json.NewEncoder(w).Encode(r)
}

// ReportError writes a hook failure to stderr. Hooks never fail the bot
// that invoked them, so callers still exit 0.
func ReportError(w io.Writer, err error) {
	fmt.Fprintf(w, "rapport hook: %v\n", err)
}
