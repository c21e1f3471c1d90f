// Package host defines the boundary between the sync engine and
// whatever stores the documents. The engine edits metadata and observes
// change notifications exclusively through these interfaces, so any
// document store with front-matter semantics can sit behind them.
package host

import (
	"context"
	"fmt"
)

var (
	// ErrNotFound reports that no document exists at the given path.
	ErrNotFound = fmt.Errorf("document not found")
	// ErrNotDirectory reports that a configured directory does not exist
	// or is not a directory.
	ErrNotDirectory = fmt.Errorf("not a directory")
)

// Host is a store of markdown documents addressed by store-relative
// slash-separated paths.
type Host interface {
	// ReadMetadata returns the document's decoded front-matter. A
	// document without front-matter yields nil with no error; a missing
	// document yields ErrNotFound.
	ReadMetadata(ctx context.Context, path string) (map[string]any, error)

	// UpdateMetadata merges patch into the document's front-matter. A
	// nil patch value deletes that key. The document body is preserved.
	UpdateMetadata(ctx context.Context, path string, patch map[string]any) error

	// ListDirectory returns the markdown documents under dir, direct
	// children only unless recursive. Returns ErrNotDirectory when dir
	// does not exist.
	ListDirectory(ctx context.Context, dir string, recursive bool) ([]string, error)

	// CreateDocument writes a new document with the given front-matter
	// under dir and returns its path. When name is taken, a numeric
	// suffix is appended rather than overwriting.
	CreateDocument(ctx context.Context, dir, name string, meta map[string]any) (string, error)

	// Subscribe registers a handler for document change notifications.
	// After Cancel returns, no further notification is delivered.
	Subscribe(h Handler) Subscription
}

// Handler receives document change notifications, one at a time, in
// arrival order.
type Handler interface {
	MetadataChanged(ctx context.Context, path string)
	Deleted(ctx context.Context, path string)
	Renamed(ctx context.Context, oldPath, newPath string)
}

// Subscription is a registered handler's lease.
type Subscription interface {
	Cancel()
}

// Opener is implemented by hosts that can open a document in an editor.
type Opener interface {
	OpenDocument(ctx context.Context, path string) error
}

// HandlerFuncs adapts plain functions to Handler. Nil functions ignore
// their notification.
type HandlerFuncs struct {
	OnMetadataChanged func(ctx context.Context, path string)
	OnDeleted         func(ctx context.Context, path string)
	OnRenamed         func(ctx context.Context, oldPath, newPath string)
}

func (h HandlerFuncs) MetadataChanged(ctx context.Context, path string) {
	if h.OnMetadataChanged != nil {
		h.OnMetadataChanged(ctx, path)
	}
}

func (h HandlerFuncs) Deleted(ctx context.Context, path string) {
	if h.OnDeleted != nil {
		h.OnDeleted(ctx, path)
	}
}

func (h HandlerFuncs) Renamed(ctx context.Context, oldPath, newPath string) {
	if h.OnRenamed != nil {
		h.OnRenamed(ctx, oldPath, newPath)
	}
}
