// Package engine implements the calendar sync session. The engine is
// the single writer of the calendar model: document change
// notifications flow in on one side, UI edits on the other, and every
// model mutation happens here. Write-back never touches the model
// directly; the rewritten document comes back around through the
// watcher like any other change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lumenisola/obsidian-full-calendar/calendar"
	"github.com/lumenisola/obsidian-full-calendar/frontmatter"
	"github.com/lumenisola/obsidian-full-calendar/host"
	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/resolver"
	"github.com/lumenisola/obsidian-full-calendar/settings"
	"github.com/lumenisola/obsidian-full-calendar/source"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

var (
	// ErrClosed reports an operation on a closed session.
	ErrClosed = fmt.Errorf("calendar session is closed")
	// ErrEditInFlight reports an edit that overlapped an unfinished one
	// for the same event.
	ErrEditInFlight = fmt.Errorf("an edit for this event is already in flight")
	// ErrNoEditor reports that the host cannot open documents.
	ErrNoEditor = fmt.Errorf("host cannot open documents in an editor")
)

// Listener observes model mutations and user-facing notices. Callbacks
// run with the engine's internal lock held; implementations must be
// quick and must not call back into the engine.
type Listener interface {
	EventRemoved(id string)
	EventUpserted(ev types.Event)
	Notice(message string)
}

// Engine owns the calendar model for one session. The configuration is
// a snapshot taken when the session was assembled; changing the file
// takes effect on the next session.
type Engine struct {
	host  host.Host
	cfg   *settings.Config
	res   *resolver.Resolver
	model *calendar.Model
	log   zerolog.Logger

	mu        sync.Mutex
	closed    bool
	inflight  map[string]struct{}
	listeners []Listener
	sub       host.Subscription
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithListener attaches a listener for model mutations.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// New assembles a session over h with a configuration snapshot.
func New(h host.Host, cfg *settings.Config, opts ...Option) *Engine {
	e := &Engine{
		host:     h,
		cfg:      cfg,
		res:      resolver.New(h),
		model:    calendar.NewModel(),
		log:      zerolog.Nop(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the live calendar model.
func (e *Engine) Model() *calendar.Model { return e.model }

// Open populates the model from every configured source and subscribes
// to change notifications. The session then runs until Close.
func (e *Engine) Open(ctx context.Context) error {
	if err := e.Rebuild(ctx); err != nil {
		return err
	}
	sub := e.host.Subscribe(e)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sub.Cancel()
		return ErrClosed
	}
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Close tears the session down. The notification subscription is
// canceled before listeners are dropped, so once Close returns no
// listener callback is running or will run again.
func (e *Engine) Close() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()
	if sub != nil {
		// Outside the lock: an in-flight delivery may be waiting on it.
		sub.Cancel()
	}
	e.mu.Lock()
	e.closed = true
	e.listeners = nil
	e.mu.Unlock()
	e.log.Debug().Msg("session closed")
}

// --- host.Handler implementation ---

// MetadataChanged admits or updates the event at p. Documents outside
// every configured source are ignored. A document that stops decoding
// as an event leaves its present model entry alone: only deletion
// removes, a null decode never does.
func (e *Engine) MetadataChanged(ctx context.Context, p string) {
	src, ok := e.owner(p)
	if !ok {
		return
	}
	meta, err := e.host.ReadMetadata(ctx, p)
	if err != nil {
		e.log.Debug().Err(err).Str("path", p).Msg("change for unreadable document")
		return
	}
	rec, ok := frontmatter.DecodeEvent(meta)
	if !ok {
		return
	}
	ev := source.EventFor(rec, p, src.Color)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.model.Upsert(ev)
	e.emitRemoved(p)
	e.emitUpserted(ev)
	e.log.Debug().Str("path", p).Msg("event upserted")
}

// Deleted removes the identity at p from the model. Removing an absent
// identity is a no-op.
func (e *Engine) Deleted(_ context.Context, p string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.model.Remove(p) {
		e.emitRemoved(p)
		e.log.Debug().Str("path", p).Msg("event removed")
	}
}

// Renamed carries an identity to a new path as destroy and recreate:
// the old identity is removed, then the new path is admitted as if it
// had just changed.
func (e *Engine) Renamed(ctx context.Context, oldPath, newPath string) {
	e.Deleted(ctx, oldPath)
	e.MetadataChanged(ctx, newPath)
}

// --- UI edits ---

// ModifyEvent persists a UI edit to the backing document. The model is
// not touched here: the rewrite reaches the watcher like any other
// document change and reconciliation happens there. On any failure the
// document is left untouched, so the caller can revert the view.
func (e *Engine) ModifyEvent(ctx context.Context, in types.EventInput) error {
	log := e.log.With().Str("op", uuid.NewString()).Str("id", in.ID).Logger()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if _, busy := e.inflight[in.ID]; busy {
		e.mu.Unlock()
		log.Warn().Msg("overlapping edit rejected")
		return ErrEditInFlight
	}
	e.inflight[in.ID] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, in.ID)
		e.mu.Unlock()
	}()

	doc, err := e.resolve(ctx, in)
	if err != nil {
		if errors.Is(err, resolver.ErrAmbiguous) {
			log.Warn().Err(err).Msg("edit aborted, identity ambiguous")
			e.notice(fmt.Sprintf("Multiple documents match the event %q. Rename one and try again.", displayTitle(in)))
			return err
		}
		log.Warn().Err(err).Msg("edit aborted, document not resolved")
		return err
	}
	if _, ok := e.owner(doc.Path); !ok {
		return fmt.Errorf("%w: %s is outside every configured source", host.ErrNotFound, doc.Path)
	}
	if err := e.host.UpdateMetadata(ctx, doc.Path, frontmatter.EncodeEvent(in)); err != nil {
		log.Error().Err(err).Str("path", doc.Path).Msg("edit write failed")
		return fmt.Errorf("write event: %w", err)
	}
	log.Info().Str("path", doc.Path).Msg("event rescheduled")
	return nil
}

// CreateEvent persists a new event as a document in a local source and
// returns the document's path. The model is not touched: admission
// happens when the creation notification arrives.
func (e *Engine) CreateEvent(ctx context.Context, sourceDir, title string, start, end time.Time, allDay bool) (string, error) {
	dir, err := e.createDir(sourceDir)
	if err != nil {
		return "", err
	}
	name := frontmatter.Filename(start, title)
	p, err := e.host.CreateDocument(ctx, dir, name, frontmatter.EncodeNew(title, start, end, allDay))
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	e.log.Info().Str("path", p).Msg("event created")
	return p, nil
}

// OpenEvent returns the event for an edit dialog, or sends its backing
// document to the host's editor when inEditor is set.
func (e *Engine) OpenEvent(ctx context.Context, id string, inEditor bool) (types.Event, error) {
	ev, ok := e.model.Get(id)
	if !ok {
		return types.Event{}, fmt.Errorf("%w: %s", host.ErrNotFound, id)
	}
	if !inEditor {
		return ev, nil
	}
	opener, ok := e.host.(host.Opener)
	if !ok {
		return types.Event{}, ErrNoEditor
	}
	if err := opener.OpenDocument(ctx, id); err != nil {
		return types.Event{}, fmt.Errorf("open %s: %w", id, err)
	}
	return ev, nil
}

// --- view assembly ---

// Sources builds the full view payload, one entry per configured
// source in configuration order. A local source whose directory is
// missing contributes an inline error entry instead of failing the
// whole view; disabled kinds contribute nothing.
func (e *Engine) Sources(ctx context.Context) []types.SourceInput {
	var out []types.SourceInput
	for _, s := range e.cfg.Sources {
		si, err := source.Build(ctx, e.host, s, e.cfg.RecursiveLocal)
		if err != nil {
			out = append(out, e.sourceError(s, err))
			continue
		}
		if si == nil {
			continue
		}
		out = append(out, *si)
	}
	return out
}

// Rebuild rescans every local source and reconciles the model with
// what the documents say: events whose documents vanished are removed,
// everything still present is re-admitted.
func (e *Engine) Rebuild(ctx context.Context) error {
	fresh := make(map[string]types.Event)
	for _, cfg := range e.cfg.Locals() {
		si, err := source.BuildLocal(ctx, e.host, cfg, e.cfg.RecursiveLocal)
		if err != nil {
			e.log.Warn().Err(err).Str("dir", cfg.Dir).Msg("source skipped during rebuild")
			continue
		}
		for _, ev := range si.Events {
			fresh[ev.ID] = ev
		}
	}
	ids := make([]string, 0, len(fresh))
	for id := range fresh {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	removed := 0
	for _, ev := range e.model.Events() {
		if _, ok := fresh[ev.ID]; !ok {
			e.model.Remove(ev.ID)
			e.emitRemoved(ev.ID)
			removed++
		}
	}
	for _, id := range ids {
		ev := fresh[id]
		e.model.Upsert(ev)
		e.emitRemoved(id)
		e.emitUpserted(ev)
	}
	e.log.Info().Int("events", len(fresh)).Int("removed", removed).Msg("model rebuilt")
	return nil
}

// --- internals ---

// owner returns the local source whose directory claims p.
func (e *Engine) owner(p string) (settings.Local, bool) {
	for _, l := range e.cfg.Locals() {
		if source.Owns(l.Dir, e.cfg.RecursiveLocal, p) {
			return l, true
		}
	}
	return settings.Local{}, false
}

// resolve finds the document behind an edit: the exact path first,
// then a directory scan keyed by the name the identity derives from.
func (e *Engine) resolve(ctx context.Context, in types.EventInput) (resolver.Document, error) {
	doc, err := e.res.ByPath(ctx, in.ID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, host.ErrNotFound) {
		return resolver.Document{}, err
	}
	dir := path.Dir(in.ID)
	if dir == "." {
		dir = ""
	}
	day, title, ok := parser.SplitEventName(path.Base(in.ID))
	if !ok {
		if in.Title == "" {
			return resolver.Document{}, err
		}
		day, title = time.Time{}, in.Title
	}
	return e.res.ByDirectoryAndTitle(ctx, dir, e.cfg.RecursiveLocal, title, day)
}

// createDir picks the local source directory a new event lands in.
func (e *Engine) createDir(requested string) (string, error) {
	locals := e.cfg.Locals()
	if len(locals) == 0 {
		return "", fmt.Errorf("%w: no local source configured", host.ErrNotFound)
	}
	if requested == "" {
		return locals[0].Dir, nil
	}
	for _, l := range locals {
		if path.Clean(l.Dir) == path.Clean(requested) {
			return l.Dir, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a configured local source", host.ErrNotFound, requested)
}

func (e *Engine) sourceError(s settings.Source, err error) types.SourceInput {
	msg := err.Error()
	id := ""
	if l, ok := s.(settings.Local); ok {
		id = source.LocalID(l.Dir)
		if errors.Is(err, host.ErrNotDirectory) {
			msg = fmt.Sprintf("Directory %q does not exist in the vault.", l.Dir)
		}
	}
	c := source.ResolveColor("", settings.Color(s))
	return types.SourceInput{
		ID:        id,
		Kind:      settings.Kind(s),
		Color:     c,
		TextColor: source.TextColor(c),
		Error:     msg,
	}
}

func (e *Engine) notice(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, l := range e.listeners {
		l.Notice(msg)
	}
}

// emitRemoved and emitUpserted run with e.mu held.
func (e *Engine) emitRemoved(id string) {
	for _, l := range e.listeners {
		l.EventRemoved(id)
	}
}

func (e *Engine) emitUpserted(ev types.Event) {
	for _, l := range e.listeners {
		l.EventUpserted(ev)
	}
}

func displayTitle(in types.EventInput) string {
	if in.Title != "" {
		return in.Title
	}
	return frontmatter.TitleFromPath(in.ID)
}
