package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenisola/obsidian-full-calendar/frontmatter"
	"github.com/lumenisola/obsidian-full-calendar/host"
	"github.com/lumenisola/obsidian-full-calendar/resolver"
	"github.com/lumenisola/obsidian-full-calendar/settings"
	"github.com/lumenisola/obsidian-full-calendar/types"
	"github.com/lumenisola/obsidian-full-calendar/vault"
)

// frames records listener callbacks in delivery order.
type frames struct {
	mu  sync.Mutex
	log []string
}

func (f *frames) EventRemoved(id string) { f.add("removed:" + id) }

func (f *frames) EventUpserted(ev types.Event) { f.add("upserted:" + ev.ID) }

func (f *frames) Notice(msg string) { f.add("notice:" + msg) }

func (f *frames) add(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, s)
}

func (f *frames) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *frames) contains(s string) bool {
	for _, entry := range f.snapshot() {
		if entry == s {
			return true
		}
	}
	return false
}

func (f *frames) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = nil
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.Local)
}

func at(d, hh, mm int) time.Time {
	return time.Date(2024, time.January, d, hh, mm, 0, 0, time.Local)
}

func cfgWith(sources ...settings.Source) *settings.Config {
	c := &settings.Config{Sources: settings.SourceList(sources)}
	c.Normalize()
	return c
}

// newSession builds a vault in a temp dir and an engine over it with a
// frame recorder attached.
func newSession(t *testing.T, files map[string]string, cfg *settings.Config) (*Engine, *vault.Vault, string, *frames) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	v, err := vault.Open(root)
	require.NoError(t, err)
	fr := &frames{}
	return New(v, cfg, WithListener(fr)), v, root, fr
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestOpenPopulatesModel(t *testing.T) {
	e, _, _, _ := newSession(t, map[string]string{
		"work/2024-01-05 Standup.md": "---\ntitle: Standup\ndate: \"2024-01-05\"\nstartTime: \"09:30\"\n---\n",
		"work/2024-01-06 Trip.md":    "---\ntitle: Trip\ndate: \"2024-01-06\"\nallDay: true\nendDate: \"2024-01-08\"\n---\n",
		"work/note.md":               "No metadata.\n",
		"home/2024-01-07 Dinner.md":  "---\ntitle: Dinner\ndate: \"2024-01-07\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work", Color: "#336699"}, settings.Local{Dir: "home"}))
	defer e.Close()

	require.NoError(t, e.Open(context.Background()))

	m := e.Model()
	assert.Equal(t, 3, m.Len())

	standup, ok := m.Get("work/2024-01-05 Standup.md")
	require.True(t, ok)
	assert.Equal(t, "Standup", standup.Title)
	assert.False(t, standup.AllDay)
	assert.True(t, standup.Start.Equal(at(5, 9, 30)))
	assert.Equal(t, "#336699", standup.Color)
	assert.True(t, standup.Editable)

	trip, ok := m.Get("work/2024-01-06 Trip.md")
	require.True(t, ok)
	assert.True(t, trip.AllDay)
	assert.True(t, trip.End.Equal(day(9)), "exclusive end, one past endDate")

	_, ok = m.Get("work/note.md")
	assert.False(t, ok, "non-event admitted")
}

func TestMetadataChangedKeepsOneEventPerIdentity(t *testing.T) {
	e, _, root, fr := newSession(t, map[string]string{
		"work/2024-01-05 Standup.md": "---\ntitle: Standup\ndate: \"2024-01-05\"\nstartTime: \"09:30\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	id := "work/2024-01-05 Standup.md"
	writeFile(t, root, id, "---\ntitle: Standup\ndate: \"2024-01-05\"\nstartTime: \"11:00\"\n---\n")
	e.MetadataChanged(ctx, id)

	assert.Equal(t, 1, e.Model().Len(), "identity must hold exactly one event")
	ev, ok := e.Model().Get(id)
	require.True(t, ok)
	assert.True(t, ev.Start.Equal(at(5, 11, 0)))
	assert.Equal(t, []string{"removed:" + id, "upserted:" + id}, fr.snapshot(),
		"update must remove before adding")
}

func TestMetadataChangedIgnoresOutsideDocuments(t *testing.T) {
	e, _, root, fr := newSession(t, map[string]string{
		"work/seed.md": "",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	writeFile(t, root, "elsewhere/2024-01-05 Party.md", "---\ndate: \"2024-01-05\"\n---\n")
	e.MetadataChanged(ctx, "elsewhere/2024-01-05 Party.md")

	assert.Equal(t, 0, e.Model().Len())
	assert.Empty(t, fr.snapshot())
}

func TestNullDecodeLeavesPresentEvent(t *testing.T) {
	e, _, root, fr := newSession(t, map[string]string{
		"work/2024-01-05 Standup.md": "---\ntitle: Standup\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	// The date key goes away; the document is no longer an event.
	id := "work/2024-01-05 Standup.md"
	writeFile(t, root, id, "---\ntitle: Standup\n---\n")
	e.MetadataChanged(ctx, id)

	ev, ok := e.Model().Get(id)
	require.True(t, ok, "present event must survive a null decode")
	assert.True(t, ev.Start.Equal(day(5)))
	assert.Empty(t, fr.snapshot())
}

func TestDeletedIsIdempotent(t *testing.T) {
	e, _, _, fr := newSession(t, map[string]string{
		"work/2024-01-05 Standup.md": "---\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	id := "work/2024-01-05 Standup.md"
	e.Deleted(ctx, id)
	assert.Equal(t, 0, e.Model().Len())
	assert.Equal(t, []string{"removed:" + id}, fr.snapshot())

	e.Deleted(ctx, id)
	e.Deleted(ctx, "never-seen.md")
	assert.Equal(t, []string{"removed:" + id}, fr.snapshot(), "repeat removals must stay silent")
}

func TestRenamedDestroysAndRecreates(t *testing.T) {
	e, _, root, fr := newSession(t, map[string]string{
		"work/2024-01-05 Standup.md": "---\ntitle: Standup\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	oldID := "work/2024-01-05 Standup.md"
	newID := "work/2024-01-05 Daily sync.md"
	require.NoError(t, os.Rename(
		filepath.Join(root, filepath.FromSlash(oldID)),
		filepath.Join(root, filepath.FromSlash(newID)),
	))
	e.Renamed(ctx, oldID, newID)

	_, ok := e.Model().Get(oldID)
	assert.False(t, ok, "old identity must be gone")
	ev, ok := e.Model().Get(newID)
	require.True(t, ok, "new identity must exist")
	assert.Equal(t, "Standup", ev.Title)
	assert.Equal(t, []string{
		"removed:" + oldID,
		"removed:" + newID,
		"upserted:" + newID,
	}, fr.snapshot())
}

func TestModifyEventRewritesDocumentOnly(t *testing.T) {
	id := "work/2024-01-05 Standup.md"
	e, _, root, _ := newSession(t, map[string]string{
		id: "---\ntitle: Standup\ndate: \"2024-01-05\"\nstartTime: \"09:30\"\nendTime: \"10:00\"\npriority: high\n---\n# Agenda\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	err := e.ModifyEvent(ctx, types.EventInput{
		ID:    id,
		Title: "Standup",
		Start: at(6, 10, 0),
		End:   at(6, 10, 30),
	})
	require.NoError(t, err)

	content := readFile(t, root, id)
	props, body := frontmatter.Parse(content)
	rec, ok := frontmatter.DecodeEvent(props)
	require.True(t, ok)
	assert.True(t, rec.Start.Equal(at(6, 10, 0)))
	assert.True(t, rec.End.Equal(at(6, 10, 30)))
	assert.Equal(t, "high", props["priority"], "unrelated keys must survive")
	assert.Equal(t, "# Agenda\n", body, "body must survive")

	// The model is reconciled by the change notification, not the edit.
	ev, ok := e.Model().Get(id)
	require.True(t, ok)
	assert.True(t, ev.Start.Equal(at(5, 9, 30)), "model must not move before the notification")

	e.MetadataChanged(ctx, id)
	ev, _ = e.Model().Get(id)
	assert.True(t, ev.Start.Equal(at(6, 10, 0)), "notification must reconcile the model")
}

func TestModifyEventResolvesByDirectoryAndTitle(t *testing.T) {
	// The model still carries the derived path, but the document was
	// renamed on disk. The fallback finds it by day and title.
	e, _, root, _ := newSession(t, map[string]string{
		"work/daily.md": "---\ntitle: Standup\ndate: \"2024-01-05\"\nstartTime: \"09:30\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	err := e.ModifyEvent(ctx, types.EventInput{
		ID:    "work/2024-01-05 Standup.md",
		Title: "Standup",
		Start: at(5, 14, 0),
	})
	require.NoError(t, err)

	props, _ := frontmatter.Parse(readFile(t, root, "work/daily.md"))
	rec, ok := frontmatter.DecodeEvent(props)
	require.True(t, ok)
	assert.True(t, rec.Start.Equal(at(5, 14, 0)), "fallback target must receive the edit")
}

func TestModifyEventAmbiguityIsAHardStop(t *testing.T) {
	a := "work/a.md"
	b := "work/b.md"
	content := "---\ntitle: Standup\ndate: \"2024-01-05\"\n---\n"
	e, _, root, fr := newSession(t, map[string]string{a: content, b: content},
		cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	err := e.ModifyEvent(ctx, types.EventInput{
		ID:     "work/2024-01-05 Standup.md",
		Title:  "Standup",
		Start:  day(6),
		AllDay: true,
	})
	require.ErrorIs(t, err, resolver.ErrAmbiguous)

	assert.Equal(t, content, readFile(t, root, a), "ambiguous edit must not write")
	assert.Equal(t, content, readFile(t, root, b), "ambiguous edit must not write")

	log := fr.snapshot()
	require.Len(t, log, 1)
	assert.True(t, strings.HasPrefix(log[0], "notice:"), "ambiguity must surface a notice")
}

func TestModifyEventNotFound(t *testing.T) {
	e, _, _, _ := newSession(t, map[string]string{
		"work/seed.md": "",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	err := e.ModifyEvent(ctx, types.EventInput{
		ID:     "work/2024-01-05 Standup.md",
		Title:  "Standup",
		Start:  day(6),
		AllDay: true,
	})
	require.ErrorIs(t, err, host.ErrNotFound)
}

func TestModifyEventRejectsOverlappingEdits(t *testing.T) {
	id := "work/2024-01-05 Standup.md"
	e, _, _, _ := newSession(t, map[string]string{
		id: "---\ntitle: Standup\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	e.mu.Lock()
	e.inflight[id] = struct{}{}
	e.mu.Unlock()

	err := e.ModifyEvent(ctx, types.EventInput{ID: id, Start: day(6), AllDay: true})
	require.ErrorIs(t, err, ErrEditInFlight)

	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()

	require.NoError(t, e.ModifyEvent(ctx, types.EventInput{ID: id, Start: day(6), AllDay: true}))
}

func TestCreateEvent(t *testing.T) {
	e, _, root, _ := newSession(t, map[string]string{
		"work/seed.md": "",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	p, err := e.CreateEvent(ctx, "", "Planning: Q1?", at(12, 9, 0), at(12, 10, 0), false)
	require.NoError(t, err)
	assert.Equal(t, "work/2024-01-12 Planning Q1.md", p)

	props, _ := frontmatter.Parse(readFile(t, root, p))
	rec, ok := frontmatter.DecodeEvent(props)
	require.True(t, ok)
	assert.Equal(t, "Planning: Q1?", rec.Title, "title key keeps the unsanitized form")
	assert.True(t, rec.Start.Equal(at(12, 9, 0)))

	assert.Equal(t, 0, e.Model().Len(), "creation must wait for the notification")

	p2, err := e.CreateEvent(ctx, "", "Planning: Q1?", at(12, 9, 0), at(12, 10, 0), false)
	require.NoError(t, err)
	assert.Equal(t, "work/2024-01-12 Planning Q1 2.md", p2, "name collision must suffix, not overwrite")
}

func TestCreateEventRejectsUnknownSource(t *testing.T) {
	e, _, _, _ := newSession(t, map[string]string{"work/seed.md": ""},
		cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	_, err := e.CreateEvent(ctx, "elsewhere", "X", day(12), time.Time{}, true)
	require.Error(t, err)
}

func TestOpenEvent(t *testing.T) {
	id := "work/2024-01-05 Standup.md"
	e, _, _, _ := newSession(t, map[string]string{
		id: "---\ntitle: Standup\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	ev, err := e.OpenEvent(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, "Standup", ev.Title)

	_, err = e.OpenEvent(ctx, "gone.md", false)
	require.ErrorIs(t, err, host.ErrNotFound)

	// The vault has no open command configured.
	_, err = e.OpenEvent(ctx, id, true)
	require.Error(t, err)
}

func TestSourcesReportMissingDirectoryInline(t *testing.T) {
	e, _, _, _ := newSession(t, map[string]string{
		"work/2024-01-05 Standup.md": "---\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(
		settings.Local{Dir: "work"},
		settings.Local{Dir: "missing"},
		settings.Remote{URL: "https://calendar.example.com/feed"},
		settings.ICS{URL: "https://example.com/cal.ics"},
	))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))

	sources := e.Sources(ctx)
	require.Len(t, sources, 3, "ICS contributes nothing")

	assert.Equal(t, "local", sources[0].Kind)
	assert.Equal(t, "work", sources[0].ID)
	assert.Len(t, sources[0].Events, 1)
	assert.Empty(t, sources[0].Error)

	assert.Equal(t, "local", sources[1].Kind)
	assert.Equal(t, "missing", sources[1].ID)
	assert.Contains(t, sources[1].Error, "missing")
	assert.Empty(t, sources[1].Events, "failed source renders inline, view survives")

	assert.Equal(t, "remote", sources[2].Kind)
	assert.False(t, sources[2].Editable)
}

func TestRebuildReconciles(t *testing.T) {
	gone := "work/2024-01-05 Gone.md"
	e, _, root, fr := newSession(t, map[string]string{
		gone: "---\ndate: \"2024-01-05\"\n---\n",
	}, cfgWith(settings.Local{Dir: "work"}))
	defer e.Close()
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	fr.reset()

	// Change the world behind the engine's back, then rescan.
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(gone))))
	added := "work/2024-01-06 New.md"
	writeFile(t, root, added, "---\ndate: \"2024-01-06\"\n---\n")

	require.NoError(t, e.Rebuild(ctx))

	_, ok := e.Model().Get(gone)
	assert.False(t, ok)
	_, ok = e.Model().Get(added)
	assert.True(t, ok)
	assert.True(t, fr.contains("removed:"+gone))
	assert.True(t, fr.contains("upserted:"+added))
}

func TestWatcherDrivesReconciliation(t *testing.T) {
	e, v, root, fr := newSession(t, map[string]string{
		"work/seed.md": "",
	}, cfgWith(settings.Local{Dir: "work"}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, v.Watch(ctx))
	defer v.Close()
	require.NoError(t, e.Open(ctx))

	id := "work/2024-01-05 Standup.md"
	writeFile(t, root, id, "---\ntitle: Standup\ndate: \"2024-01-05\"\n---\n")
	require.Eventually(t, func() bool {
		_, ok := e.Model().Get(id)
		return ok
	}, 5*time.Second, 10*time.Millisecond, "watcher must admit the new document")

	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(id))))
	require.Eventually(t, func() bool {
		_, ok := e.Model().Get(id)
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "watcher must remove the deleted document")

	// After Close, nothing may reach the listeners or the model.
	e.Close()
	fr.reset()
	late := "work/2024-01-06 Late.md"
	writeFile(t, root, late, "---\ndate: \"2024-01-06\"\n---\n")
	assert.Never(t, func() bool {
		_, ok := e.Model().Get(late)
		return ok || len(fr.snapshot()) > 0
	}, 400*time.Millisecond, 20*time.Millisecond, "closed session must stay silent")
}

func TestCloseStopsDirectNotifications(t *testing.T) {
	e, _, root, fr := newSession(t, map[string]string{
		"work/seed.md": "",
	}, cfgWith(settings.Local{Dir: "work"}))
	ctx := context.Background()
	require.NoError(t, e.Open(ctx))
	e.Close()
	fr.reset()

	id := "work/2024-01-05 Standup.md"
	writeFile(t, root, id, "---\ndate: \"2024-01-05\"\n---\n")
	e.MetadataChanged(ctx, id)
	e.Deleted(ctx, id)

	assert.Equal(t, 0, e.Model().Len())
	assert.Empty(t, fr.snapshot())

	err := e.ModifyEvent(ctx, types.EventInput{ID: id, Start: day(6), AllDay: true})
	require.ErrorIs(t, err, ErrClosed)
}
