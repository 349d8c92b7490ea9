package model

import (
	"fmt"
	"regexp"
	"strings"
)

// slugRe matches characters that are not lowercase alphanumeric or hyphens.
var slugRe = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify converts a label to a URL-safe slug: lowercase, hyphens for spaces/special chars.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if len(s) > 40 {
		s = s[:40]
		s = strings.TrimRight(s, "-")
	}
	return s
}

// bestLabel returns the most stable human name for an element. Value is
// excluded because it changes as the user types.
func bestLabel(el ElementDescriptor) string {
	if el.Label != "" {
		return el.Label
	}
	if el.Placeholder != "" {
		return el.Placeholder
	}
	return el.Name
}

// refSegment returns the final path segment for an element.
func refSegment(el ElementDescriptor) string {
	if slug := Slugify(bestLabel(el)); slug != "" {
		return slug
	}
	return el.Type
}

// GenerateRefs populates Ref on each descriptor. Refs are short path-based
// names like "login/email" built from the enclosing landmark path and the
// element's label, stable across reads while the page's semantics hold.
func GenerateRefs(elements []ElementDescriptor) {
	for i := range elements {
		seg := refSegment(elements[i])
		if elements[i].Landmark != "" {
			elements[i].Ref = elements[i].Landmark + "/" + seg
		} else {
			elements[i].Ref = seg
		}
	}
	deduplicateRefs(elements)
}

// deduplicateRefs finds elements with identical refs and appends .1, .2 suffixes.
func deduplicateRefs(elements []ElementDescriptor) {
	refIdx := make(map[string][]int)
	for i := range elements {
		refIdx[elements[i].Ref] = append(refIdx[elements[i].Ref], i)
	}
	for ref, idxs := range refIdx {
		if len(idxs) <= 1 {
			continue
		}
		for n, i := range idxs {
			elements[i].Ref = fmt.Sprintf("%s.%d", ref, n+1)
		}
	}
}

// FindElementByRef returns the descriptor matching ref exactly, or by a
// unique "/suffix" match.
func FindElementByRef(elements []ElementDescriptor, ref string) (*ElementDescriptor, error) {
	for i := range elements {
		if elements[i].Ref == ref {
			return &elements[i], nil
		}
	}
	var matches []int
	for i := range elements {
		if strings.HasSuffix(elements[i].Ref, "/"+ref) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 1:
		return &elements[matches[0]], nil
	case 0:
		return nil, fmt.Errorf("no element matches ref %q", ref)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "multiple elements match ref %q:\n", ref)
	for _, i := range matches {
		m := elements[i]
		fmt.Fprintf(&b, "  ref=%q selector=%s %s", m.Ref, m.Selector, m.Type)
		if m.Label != "" {
			fmt.Fprintf(&b, " label=%q", m.Label)
		}
		fmt.Fprintln(&b)
	}
	return nil, fmt.Errorf("%s", b.String())
}

// UniqueKeys assigns each base name a unique key, suffixing repeats with
// -2, -3 and so on. Empty names become fallback-N.
func UniqueKeys(names []string, fallback string) []string {
	seen := make(map[string]int)
	out := make([]string, len(names))
	for i, name := range names {
		key := Slugify(name)
		if key == "" {
			key = fmt.Sprintf("%s-%d", fallback, i+1)
		}
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s-%d", key, n)
		}
		out[i] = key
	}
	return out
}
