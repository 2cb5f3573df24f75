package extraction

import (
	"fmt"
	"regexp"
	"strings"
)

var selectorPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?(?:([#.])([A-Za-z_][\w-]*))?$`)

// Selector is an item-container locator limited to tag, #id, .class,
// tag#id and tag.class.
type Selector struct {
	Tag   string
	ID    string
	Class string
	raw   string
}

// ParseSelector validates a selector against the supported grammar
func ParseSelector(raw string) (Selector, error) {
	trimmed := strings.TrimSpace(raw)
	m := selectorPattern.FindStringSubmatch(trimmed)
	if trimmed == "" || m == nil || (m[1] == "" && m[3] == "") {
		return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, raw)
	}
	s := Selector{Tag: strings.ToLower(m[1]), raw: trimmed}
	switch m[2] {
	case "#":
		s.ID = m[3]
	case ".":
		s.Class = m[3]
	}
	return s, nil
}

// String returns the selector in CSS form
func (s Selector) String() string {
	if s.raw != "" {
		return s.raw
	}
	switch {
	case s.ID != "":
		return s.Tag + "#" + s.ID
	case s.Class != "":
		return s.Tag + "." + s.Class
	}
	return s.Tag
}

// Children returns the CSS selector for the container's direct children
func (s Selector) Children() string {
	return s.String() + " > *"
}
