package interfaces

import "context"

// User is the identity record supplied by the external sign-in provider.
// The core only stores and loads it; absence means "logged out".
type User struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	PictureURL string `json:"picture"`
}

// Enrichment carries optional descriptive metadata for a model. Any field
// may be empty; callers must tolerate total absence.
type Enrichment struct {
	ThumbnailURL  string
	Description   string
	TriggerWords  []string
	Tags          []string
	CanonicalName string
	BaseFamily    string

	// SourceType is the registry's own type tag, mapped onto the internal
	// enumeration at the import boundary.
	SourceType string
}

// Enricher resolves descriptive metadata for a model by name. Failures are
// reported as errors but never abort the surrounding operation.
type Enricher interface {
	// GenerateDescription writes a short description for a model.
	GenerateDescription(ctx context.Context, name, modelType, knownTriggers string) (string, error)

	// FindThumbnail looks up a preview-image URL for a model name.
	FindThumbnail(ctx context.Context, name string) (string, error)

	// GenerateThumbnail produces a thumbnail as a data URI.
	GenerateThumbnail(ctx context.Context, name, modelType string) (string, error)

	// EnhancePrompt rewrites a prompt for better quality. On failure the
	// original prompt is returned unchanged.
	EnhancePrompt(ctx context.Context, prompt string) (string, error)
}

// ModelRegistry looks up model metadata in a public registry by content hash.
type ModelRegistry interface {
	LookupByHash(ctx context.Context, digest string) (*Enrichment, error)
}

// RawModelRow is one row of a third-party export: an opaque source id plus
// the source's config JSON.
type RawModelRow struct {
	ID     string
	Config []byte
}

// ModelSource scans a third-party export blob and yields its raw model rows.
// Malformed individual rows are skipped; only a blob that cannot be opened
// at all is an error.
type ModelSource interface {
	Scan(ctx context.Context, path string) ([]RawModelRow, error)
}

// Hasher computes a deterministic hex-encoded content digest.
type Hasher interface {
	Digest(data []byte) string
}

// Confirmer asks the user a yes/no question. Injected so destructive
// operations are testable without a real prompt.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmerFunc adapts a plain function to the Confirmer interface.
type ConfirmerFunc func(prompt string) bool

func (f ConfirmerFunc) Confirm(prompt string) bool { return f(prompt) }
