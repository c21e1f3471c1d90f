// Package frontmatter reads and writes the YAML front-matter block of
// markdown documents, and maps calendar events to and from the event
// schema stored there.
package frontmatter

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse splits a markdown document into front-matter properties and body
// content. Returns nil properties if no front-matter block is present or
// the block is not valid YAML.
func Parse(content string) (map[string]any, string) {
	block, body, ok := splitBlock(content)
	if !ok {
		return nil, content
	}
	props := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &props); err != nil {
		return nil, content
	}
	if len(props) == 0 {
		return nil, body
	}
	return props, body
}

// Render renders properties as a front-matter block, delimiters included.
// Returns the empty string for empty properties.
func Render(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	out, err := yaml.Marshal(props)
	if err != nil {
		return ""
	}
	return "---\n" + strings.TrimSpace(string(out)) + "\n---\n"
}

// Update merges patch into the document's front-matter and returns the
// rewritten document. A nil patch value deletes that key. The body is
// carried over byte for byte; only the front-matter block is rewritten.
func Update(content string, patch map[string]any) string {
	props, body := Parse(content)
	if props == nil {
		props = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(props, k)
			continue
		}
		props[k] = v
	}
	if len(props) == 0 {
		return body
	}
	return Render(props) + body
}

// splitBlock separates the front-matter block from the body. The opening
// and closing delimiters must each sit alone on their line.
func splitBlock(content string) (block, body string, ok bool) {
	nl := strings.IndexByte(content, '\n')
	if nl < 0 || strings.TrimRight(content[:nl], "\r") != "---" {
		return "", "", false
	}
	rest := content[nl+1:]
	for i := 0; i <= len(rest); {
		j := strings.IndexByte(rest[i:], '\n')
		var line string
		next := len(rest)
		if j >= 0 {
			line = rest[i : i+j]
			next = i + j + 1
		} else {
			line = rest[i:]
		}
		if strings.TrimRight(line, "\r") == "---" {
			return rest[:i], rest[next:], true
		}
		if j < 0 {
			break
		}
		i = next
	}
	return "", "", false
}
