package source

import (
	"strconv"
	"strings"
)

// ThemeAccent is the fallback event color used when neither the event
// nor its source sets one. It tracks the view theme's accent color.
const ThemeAccent = "#7c3aed"

// ResolveColor picks the display color for an event. The event's own
// color wins, then the source color, then the theme accent.
func ResolveColor(event, source string) string {
	if event != "" {
		return event
	}
	if source != "" {
		return source
	}
	return ThemeAccent
}

// TextColor returns black or white, whichever reads better on the given
// background color. Unparseable backgrounds get white text.
func TextColor(background string) string {
	r, g, b, ok := parseHex(background)
	if !ok {
		return "#ffffff"
	}
	// YIQ brightness on the 0..255 scale.
	if (299*r+587*g+114*b)/1000 >= 128 {
		return "#000000"
	}
	return "#ffffff"
}

func parseHex(s string) (r, g, b int, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16), int(v >> 8 & 0xff), int(v & 0xff), true
}
