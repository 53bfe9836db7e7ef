// Package artifacts persists the engine's generated documents: patch files,
// patched policies, reverse patches, validation reports and team patch
// instructions. Artifacts are named JSON documents; the name is chosen by the
// producer and is stable across backends.
package artifacts

import (
	"context"
	"time"
)

// RetentionClass controls artifact TTL semantics on backends that expire.
type RetentionClass string

const (
	RetentionShort    RetentionClass = "short"
	RetentionStandard RetentionClass = "standard"
	RetentionAudit    RetentionClass = "audit"
)

// Metadata describes a stored artifact.
type Metadata struct {
	Kind      string         `json:"kind,omitempty"`
	SizeBytes int64          `json:"size_bytes,omitempty"`
	Retention RetentionClass `json:"retention,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Store provides named artifact storage.
type Store interface {
	// Put marshals doc as JSON and stores it under name, replacing any
	// previous artifact with the same name.
	Put(ctx context.Context, name string, doc any, meta Metadata) error
	// Get unmarshals the artifact stored under name into out.
	Get(ctx context.Context, name string, out any) (Metadata, error)
	// List returns the names of stored artifacts starting with prefix,
	// sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}
