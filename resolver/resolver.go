// Package resolver locates the backing document for an event identity.
// Resolution is conservative: when a lookup cannot name exactly one
// document it fails, it never guesses.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenisola/obsidian-full-calendar/frontmatter"
	"github.com/lumenisola/obsidian-full-calendar/host"
	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

// ErrAmbiguous reports that more than one document answered a lookup.
var ErrAmbiguous = fmt.Errorf("ambiguous event identity")

// Document is a resolved event document.
type Document struct {
	Path   string
	Record types.EventRecord
}

// Resolver resolves event identities against a host.
type Resolver struct {
	host host.Host
}

// New returns a resolver reading through h.
func New(h host.Host) *Resolver {
	return &Resolver{host: h}
}

// ByPath resolves the document at an exact path. Returns
// host.ErrNotFound when no document decodes as an event there.
func (r *Resolver) ByPath(ctx context.Context, p string) (Document, error) {
	meta, err := r.host.ReadMetadata(ctx, p)
	if err != nil {
		return Document{}, err
	}
	rec, ok := frontmatter.DecodeEvent(meta)
	if !ok {
		return Document{}, fmt.Errorf("%w: %s is not an event", host.ErrNotFound, p)
	}
	return Document{Path: p, Record: rec}, nil
}

// ByDirectoryAndTitle resolves an event by where it lives and what it
// is called. A document is a candidate when its decoded day and title
// derive the same canonical file name; with a zero day only the titles
// are compared. Zero candidates yield host.ErrNotFound, two or more
// yield ErrAmbiguous.
func (r *Resolver) ByDirectoryAndTitle(ctx context.Context, dir string, recursive bool, title string, day time.Time) (Document, error) {
	docs, err := r.host.ListDirectory(ctx, dir, recursive)
	if err != nil {
		return Document{}, err
	}

	var matches []Document
	for _, p := range docs {
		meta, err := r.host.ReadMetadata(ctx, p)
		if err != nil {
			continue
		}
		rec, ok := frontmatter.DecodeEvent(meta)
		if !ok {
			continue
		}
		effective := rec.Title
		if effective == "" {
			effective = frontmatter.TitleFromPath(p)
		}
		if day.IsZero() {
			if parser.SanitizeTitle(effective) != parser.SanitizeTitle(title) {
				continue
			}
		} else if frontmatter.Filename(rec.Start, effective) != frontmatter.Filename(day, title) {
			continue
		}
		matches = append(matches, Document{Path: p, Record: rec})
	}

	switch len(matches) {
	case 0:
		return Document{}, fmt.Errorf("%w: no event %q in %q", host.ErrNotFound, title, dir)
	case 1:
		return matches[0], nil
	default:
		return Document{}, fmt.Errorf("%w: %d events named %q in %q", ErrAmbiguous, len(matches), title, dir)
	}
}
