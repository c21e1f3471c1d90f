package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/lumenisola/obsidian-full-calendar/host"
)

type subEntry struct {
	id int
	h  host.Handler
}

// subscription is one registered handler's lease on notifications.
type subscription struct {
	v  *Vault
	id int
}

// Cancel removes the handler. Delivery holds the same lock, so once
// Cancel returns no notification is in flight or will arrive.
func (s *subscription) Cancel() {
	s.v.subMu.Lock()
	defer s.v.subMu.Unlock()
	for i, e := range s.v.subs {
		if e.id == s.id {
			s.v.subs = append(s.v.subs[:i], s.v.subs[i+1:]...)
			return
		}
	}
}

// Subscribe registers h for document change notifications.
func (v *Vault) Subscribe(h host.Handler) host.Subscription {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	v.nextSub++
	v.subs = append(v.subs, subEntry{id: v.nextSub, h: h})
	return &subscription{v: v, id: v.nextSub}
}

// deliver invokes fn for each subscriber while holding the delivery
// lock. Handlers run one at a time, in subscription order.
func (v *Vault) deliver(fn func(h host.Handler)) {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	for _, e := range v.subs {
		fn(e.h)
	}
}

// Watch starts the filesystem watcher. Notifications are dispatched
// from a single goroutine in arrival order until ctx ends or Close is
// called.
func (v *Vault) Watch(ctx context.Context) error {
	if v.watcher != nil {
		return fmt.Errorf("vault is already watching")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := v.watchTree(w, v.root); err != nil {
		w.Close()
		return err
	}
	v.watcher = w
	v.done = make(chan struct{})
	go v.dispatch(ctx, w)
	v.log.Debug().Str("root", v.root).Msg("watching vault")
	return nil
}

// Close stops the watcher, waits for the dispatch goroutine to drain,
// and drops all subscriptions.
func (v *Vault) Close() error {
	if v.watcher != nil {
		v.watcher.Close()
		<-v.done
		v.watcher = nil
	}
	v.subMu.Lock()
	v.subs = nil
	v.subMu.Unlock()
	return nil
}

// watchTree adds dir and every visible subdirectory to the watcher.
func (v *Vault) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !info.IsDir() {
			return nil
		}
		if hidden(info.Name()) && p != dir {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (v *Vault) dispatch(ctx context.Context, w *fsnotify.Watcher) {
	defer close(v.done)
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			v.handleFSEvent(ctx, w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			v.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// handleFSEvent maps one filesystem event to document notifications. A
// rename arrives as Rename on the old path then Create on the new one,
// so subscribers see Deleted followed by MetadataChanged.
func (v *Vault) handleFSEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	rel, ok := v.relPath(ev.Name)
	if !ok {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := v.watchTree(w, ev.Name); err != nil {
				v.log.Warn().Err(err).Str("dir", rel).Msg("watch new directory")
			}
			v.notifyTree(ctx, ev.Name)
			return
		}
		if isMarkdown(ev.Name) {
			v.deliver(func(h host.Handler) { h.MetadataChanged(ctx, rel) })
		}
	case ev.Op.Has(fsnotify.Write):
		if isMarkdown(ev.Name) {
			v.deliver(func(h host.Handler) { h.MetadataChanged(ctx, rel) })
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if isMarkdown(ev.Name) {
			v.deliver(func(h host.Handler) { h.Deleted(ctx, rel) })
		}
	}
}

// notifyTree announces every document under a directory that appeared
// at once, for example after a move into the vault.
func (v *Vault) notifyTree(ctx context.Context, absDir string) {
	filepath.Walk(absDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if hidden(info.Name()) && p != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(p) {
			return nil
		}
		if rel, ok := v.relPath(p); ok {
			v.deliver(func(h host.Handler) { h.MetadataChanged(ctx, rel) })
		}
		return nil
	})
}

// relPath maps an absolute filesystem path back to a vault-relative
// one. ok is false outside the root and under dotted directories.
func (v *Vault) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return "", false
	}
	slash := filepath.ToSlash(rel)
	if slash == ".." || strings.HasPrefix(slash, "../") {
		return "", false
	}
	for _, part := range strings.Split(slash, "/") {
		if hidden(part) {
			return "", false
		}
	}
	return slash, true
}
