package model

import "strings"

// FilterElements returns descriptors whose type is in types (after meta-type
// expansion) and whose document bounds intersect bbox. Empty filters match
// everything.
func FilterElements(elements []ElementDescriptor, types []string, bbox *Box) []ElementDescriptor {
	if len(types) == 0 && bbox == nil {
		return elements
	}
	typeSet := make(map[string]bool, len(types))
	for _, t := range ExpandTypes(types) {
		typeSet[t] = true
	}
	var result []ElementDescriptor
	for _, el := range elements {
		typeMatch := len(typeSet) == 0 || typeSet[el.Type]
		bboxMatch := bbox == nil || boundsIntersect(el.Bounds, *bbox)
		if typeMatch && bboxMatch {
			result = append(result, el)
		}
	}
	return result
}

// FilterByText keeps descriptors whose label, value, placeholder or name
// contains text (case-insensitive).
func FilterByText(elements []ElementDescriptor, text string) []ElementDescriptor {
	if text == "" {
		return elements
	}
	textLower := strings.ToLower(text)
	var result []ElementDescriptor
	for _, el := range elements {
		if textMatchesElement(el, textLower) {
			result = append(result, el)
		}
	}
	return result
}

func textMatchesElement(el ElementDescriptor, textLower string) bool {
	return strings.Contains(strings.ToLower(el.Label), textLower) ||
		strings.Contains(strings.ToLower(el.Value), textLower) ||
		strings.Contains(strings.ToLower(el.Placeholder), textLower) ||
		strings.Contains(strings.ToLower(el.Name), textLower)
}

// FilterInViewport keeps descriptors that intersect the viewport.
func FilterInViewport(elements []ElementDescriptor) []ElementDescriptor {
	var result []ElementDescriptor
	for _, el := range elements {
		if el.InViewport {
			result = append(result, el)
		}
	}
	return result
}

// Limit truncates to at most n descriptors. n <= 0 means no limit.
func Limit(elements []ElementDescriptor, n int) []ElementDescriptor {
	if n <= 0 || len(elements) <= n {
		return elements
	}
	return elements[:n]
}

// boundsIntersect checks if two rectangles overlap.
func boundsIntersect(a, b Box) bool {
	return a.X < b.X+b.Width && a.X+a.Width > b.X && a.Y < b.Y+b.Height && a.Y+a.Height > b.Y
}
