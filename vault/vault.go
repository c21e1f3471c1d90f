// Package vault implements the document host on a directory of
// markdown files. Change notifications come from a filesystem watcher,
// so edits made by any program surface the same way as the daemon's
// own writes.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lumenisola/obsidian-full-calendar/frontmatter"
	"github.com/lumenisola/obsidian-full-calendar/host"
)

// Vault serves a directory tree of markdown documents. Paths in the
// API are vault-relative and slash-separated. Dotted files and
// directories (.obsidian, .git, etc) are invisible.
type Vault struct {
	root    string
	openCmd string
	log     zerolog.Logger

	subMu   sync.Mutex
	subs    []subEntry
	nextSub int

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(v *Vault) { v.log = log }
}

// WithOpenCommand sets the editor command OpenDocument runs, invoked
// as "command <absolute path>".
func WithOpenCommand(cmd string) Option {
	return func(v *Vault) { v.openCmd = cmd }
}

// Open opens the vault rooted at root.
func Open(root string, opts ...Option) (*Vault, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("vault path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", root)
	}
	v := &Vault{root: root, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// --- host.Host implementation ---

// ReadMetadata returns the document's decoded front-matter, nil when
// the document has none.
func (v *Vault) ReadMetadata(_ context.Context, p string) (map[string]any, error) {
	abs, ok := v.abs(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrNotFound, p)
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", host.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	props, _ := frontmatter.Parse(string(data))
	return props, nil
}

// UpdateMetadata merges patch into the document's front-matter and
// rewrites the file. The body is carried over byte for byte.
func (v *Vault) UpdateMetadata(_ context.Context, p string, patch map[string]any) error {
	abs, ok := v.abs(p)
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrNotFound, p)
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", host.ErrNotFound, p)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", p, err)
	}
	updated := frontmatter.Update(string(data), patch)
	if updated == string(data) {
		return nil
	}
	if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	v.log.Debug().Str("path", p).Msg("front-matter updated")
	return nil
}

// ListDirectory returns the markdown documents under dir, direct
// children only unless recursive.
func (v *Vault) ListDirectory(_ context.Context, dir string, recursive bool) ([]string, error) {
	absDir, ok := v.abs(dir)
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrNotDirectory, dir)
	}
	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", host.ErrNotDirectory, dir)
	}

	var docs []string
	if !recursive {
		entries, err := os.ReadDir(absDir)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || hidden(e.Name()) || !isMarkdown(e.Name()) {
				continue
			}
			docs = append(docs, path.Join(cleanRel(dir), e.Name()))
		}
		return docs, nil
	}

	err = filepath.Walk(absDir, func(fp string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() {
			if hidden(info.Name()) && fp != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden(info.Name()) || !isMarkdown(fp) {
			return nil
		}
		rel, err := filepath.Rel(v.root, fp)
		if err != nil {
			return nil
		}
		docs = append(docs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return docs, nil
}

// CreateDocument writes a new document with the given front-matter
// under dir. A taken name gets a numeric suffix: "name 2.md",
// "name 3.md", and so on.
func (v *Vault) CreateDocument(_ context.Context, dir, name string, meta map[string]any) (string, error) {
	if name == "" {
		name = "Untitled.md"
	}
	if filepath.Ext(name) != ".md" {
		name += ".md"
	}
	absDir, ok := v.abs(dir)
	if !ok {
		return "", fmt.Errorf("%w: %s", host.ErrNotDirectory, dir)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	base := strings.TrimSuffix(name, ".md")
	content := []byte(frontmatter.Render(meta))
	for n := 1; n <= 100; n++ {
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s %d.md", base, n)
		}
		f, err := os.OpenFile(filepath.Join(absDir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}
		_, werr := f.Write(content)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("write %s: %w", candidate, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("close %s: %w", candidate, cerr)
		}
		rel := path.Join(cleanRel(dir), candidate)
		v.log.Debug().Str("path", rel).Msg("document created")
		return rel, nil
	}
	return "", fmt.Errorf("create %s: too many name collisions", name)
}

// OpenDocument runs the configured editor command on the document.
// Implements host.Opener.
func (v *Vault) OpenDocument(ctx context.Context, p string) error {
	if v.openCmd == "" {
		return fmt.Errorf("no open command configured")
	}
	abs, ok := v.abs(p)
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrNotFound, p)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("%w: %s", host.ErrNotFound, p)
	}
	cmd := exec.CommandContext(ctx, v.openCmd, abs)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", p, err)
	}
	go cmd.Wait() // the editor may outlive the request
	return nil
}

// --- path helpers ---

// abs maps a vault-relative path to the filesystem. ok is false for
// paths that escape the root.
func (v *Vault) abs(p string) (string, bool) {
	clean := path.Clean(p)
	if clean == "." || clean == "" {
		return v.root, true
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return filepath.Join(v.root, filepath.FromSlash(clean)), true
}

// cleanRel normalizes a vault-relative directory, with "" for the root.
func cleanRel(dir string) string {
	d := path.Clean(dir)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isMarkdown(p string) bool {
	return filepath.Ext(p) == ".md"
}
