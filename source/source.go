// Package source builds the per-source event collections the calendar
// view is fed with, one SourceInput per configured source.
package source

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/lumenisola/obsidian-full-calendar/frontmatter"
	"github.com/lumenisola/obsidian-full-calendar/host"
	"github.com/lumenisola/obsidian-full-calendar/settings"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

// LocalID returns the view id of a local source, its cleaned directory.
// The vault root is ".".
func LocalID(dir string) string {
	d := path.Clean(dir)
	if d == "" || d == "/" {
		d = "."
	}
	return d
}

// Owns reports whether a local source rooted at dir claims the document
// at p. The empty dir is the vault root; without recursion only direct
// children count.
func Owns(dir string, recursive bool, p string) bool {
	d := LocalID(dir)
	if !recursive {
		return path.Dir(p) == d
	}
	return d == "." || strings.HasPrefix(p, d+"/")
}

// EventFor assembles the widget event for one decoded record. The title
// falls back to the document's base name, and events read from a local
// source are always editable.
func EventFor(rec types.EventRecord, p, sourceColor string) types.Event {
	title := rec.Title
	if title == "" {
		title = frontmatter.TitleFromPath(p)
	}
	color := ResolveColor(rec.Color, sourceColor)
	return types.Event{
		ID:        p,
		Title:     title,
		Start:     rec.Start,
		End:       rec.End,
		AllDay:    rec.AllDay,
		Color:     color,
		TextColor: TextColor(color),
		Editable:  true,
	}
}

// BuildLocal reads every document owned by a local source and returns
// the source's contribution to the view. Documents that do not decode
// as events are skipped.
func BuildLocal(ctx context.Context, h host.Host, cfg settings.Local, recursive bool) (*types.SourceInput, error) {
	docs, err := h.ListDirectory(ctx, cfg.Dir, recursive)
	if err != nil {
		return nil, err
	}
	color := ResolveColor("", cfg.Color)
	si := &types.SourceInput{
		ID:        LocalID(cfg.Dir),
		Kind:      settings.Kind(cfg),
		Editable:  true,
		Color:     color,
		TextColor: TextColor(color),
	}
	for _, p := range docs {
		meta, err := h.ReadMetadata(ctx, p)
		if err != nil {
			continue
		}
		rec, ok := frontmatter.DecodeEvent(meta)
		if !ok {
			continue
		}
		si.Events = append(si.Events, EventFor(rec, p, cfg.Color))
	}
	return si, nil
}

// BuildRemote wraps a remote feed for the view. The feed is never
// fetched here; the widget consumes the URL directly and renders the
// feed's events read-only.
func BuildRemote(cfg settings.Remote) *types.SourceInput {
	color := ResolveColor("", cfg.Color)
	return &types.SourceInput{
		ID:        cfg.URL,
		Kind:      settings.Kind(cfg),
		URL:       cfg.URL,
		Editable:  false,
		Color:     color,
		TextColor: TextColor(color),
	}
}

// Build dispatches on the source kind. ICS sources are recognized but
// disabled, so they build nothing.
func Build(ctx context.Context, h host.Host, s settings.Source, recursive bool) (*types.SourceInput, error) {
	switch cfg := s.(type) {
	case settings.Local:
		return BuildLocal(ctx, h, cfg, recursive)
	case settings.Remote:
		return BuildRemote(cfg), nil
	case settings.ICS:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown source kind %T", s)
	}
}
