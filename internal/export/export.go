// Package export writes relationship reports as JSON documents, either to
// the local filesystem or to an S3 bucket.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lazypower/rapport/internal/engine"
)

// Report kinds.
const (
	KindRelationship = "relationship"
	KindTop          = "top"
)

// Report is one exported document.
type Report struct {
	Kind         string                 `json:"kind"`
	Guild        string                 `json:"guild"`
	User         string                 `json:"user"`
	GeneratedAt  time.Time              `json:"generated_at"`
	Relationship *engine.Analysis       `json:"relationship,omitempty"`
	Top          []engine.AffinityScore `json:"top,omitempty"`
}

// RelationshipReport wraps a pair analysis.
func RelationshipReport(a engine.Analysis) Report {
	return Report{
		Kind:         KindRelationship,
		Guild:        a.Guild,
		User:         a.UserA,
		GeneratedAt:  a.EvaluatedAt,
		Relationship: &a,
	}
}

// TopReport wraps a user's strongest relationships.
func TopReport(guild, user string, top []engine.AffinityScore, at time.Time) Report {
	return Report{
		Kind:        KindTop,
		Guild:       guild,
		User:        user,
		GeneratedAt: at,
		Top:         top,
	}
}

// Validate checks the fields every destination relies on.
func (r Report) Validate() error {
	if r.Kind != KindRelationship && r.Kind != KindTop {
		return fmt.Errorf("unknown report kind %q", r.Kind)
	}
	if r.Guild == "" || r.User == "" {
		return fmt.Errorf("report guild and user required")
	}
	return nil
}

// Writer stores a report and returns where it went.
type Writer interface {
	Write(ctx context.Context, r Report) (string, error)
}

func encode(r Report) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// FileWriter writes reports to a single path.
type FileWriter struct {
	Path string
}

func (w FileWriter) Write(_ context.Context, r Report) (string, error) {
	data, err := encode(r)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(w.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(w.Path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return w.Path, nil
}
