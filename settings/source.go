package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Source is one configured calendar source. The concrete types are
// Local, Remote, and ICS; nothing else implements it, so a type switch
// over those three is exhaustive.
type Source interface {
	sourceKind() string
}

// Local is a directory of event documents inside the vault. The empty
// Dir means the vault root.
type Local struct {
	Dir   string
	Color string
}

// Remote is a feed from a remote calendar, identified by URL. Remote
// feeds are never fetched by the daemon; the view consumes them
// directly and renders their events read-only.
type Remote struct {
	URL   string
	Color string
}

// ICS is a remote ICS subscription. The kind is recognized in
// configuration but currently disabled, so it contributes no events.
type ICS struct {
	URL   string
	Color string
}

func (Local) sourceKind() string  { return "local" }
func (Remote) sourceKind() string { return "remote" }
func (ICS) sourceKind() string    { return "ics" }

// Kind returns the configuration name of a source's kind.
func Kind(s Source) string { return s.sourceKind() }

// Color returns the configured color of a source of any kind.
func Color(s Source) string {
	switch src := s.(type) {
	case Local:
		return src.Color
	case Remote:
		return src.Color
	case ICS:
		return src.Color
	}
	return ""
}

// SourceList carries the source sum type through YAML. Each entry is a
// mapping whose type key selects the concrete source; a missing type
// means local.
type SourceList []Source

type sourceYAML struct {
	Type  string `yaml:"type"`
	Dir   string `yaml:"dir,omitempty"`
	URL   string `yaml:"url,omitempty"`
	Color string `yaml:"color,omitempty"`
}

func (l *SourceList) UnmarshalYAML(value *yaml.Node) error {
	var raw []sourceYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	out := make(SourceList, 0, len(raw))
	for _, r := range raw {
		switch r.Type {
		case "local", "":
			out = append(out, Local{Dir: r.Dir, Color: r.Color})
		case "remote":
			out = append(out, Remote{URL: r.URL, Color: r.Color})
		case "ics":
			out = append(out, ICS{URL: r.URL, Color: r.Color})
		default:
			return fmt.Errorf("unknown source type %q", r.Type)
		}
	}
	*l = out
	return nil
}

func (l SourceList) MarshalYAML() (any, error) {
	raw := make([]sourceYAML, 0, len(l))
	for _, s := range l {
		entry := sourceYAML{Type: Kind(s)}
		switch src := s.(type) {
		case Local:
			entry.Dir = src.Dir
			entry.Color = src.Color
		case Remote:
			entry.URL = src.URL
			entry.Color = src.Color
		case ICS:
			entry.URL = src.URL
			entry.Color = src.Color
		default:
			return nil, fmt.Errorf("unknown source %T", s)
		}
		raw = append(raw, entry)
	}
	return raw, nil
}
