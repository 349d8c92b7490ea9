package model

import "fmt"

// ChangeType represents the kind of element change detected.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
	ChangeChanged ChangeType = "changed"
)

// ElementChange is one difference between two indexes of the same page.
type ElementChange struct {
	Type     ChangeType           `json:"type"              yaml:"type"`
	Selector string               `json:"selector"          yaml:"selector"`
	ElType   string               `json:"elementType,omitempty" yaml:"elementType,omitempty"`
	Label    string               `json:"label,omitempty"   yaml:"label,omitempty"`
	Changes  map[string][2]string `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// DiffElements compares two descriptor lists. Elements are matched by their
// primary selector, which is unique within each index.
func DiffElements(prev, curr []ElementDescriptor) []ElementChange {
	prevMap := make(map[string]ElementDescriptor, len(prev))
	for _, el := range prev {
		prevMap[el.Selector] = el
	}
	currMap := make(map[string]ElementDescriptor, len(curr))
	for _, el := range curr {
		currMap[el.Selector] = el
	}

	var changes []ElementChange
	for _, el := range curr {
		prevEl, existed := prevMap[el.Selector]
		if !existed {
			changes = append(changes, ElementChange{Type: ChangeAdded, Selector: el.Selector, ElType: el.Type, Label: el.Label})
			continue
		}
		if diffs := diffProperties(prevEl, el); len(diffs) > 0 {
			changes = append(changes, ElementChange{Type: ChangeChanged, Selector: el.Selector, ElType: el.Type, Label: el.Label, Changes: diffs})
		}
	}
	for _, el := range prev {
		if _, exists := currMap[el.Selector]; !exists {
			changes = append(changes, ElementChange{Type: ChangeRemoved, Selector: el.Selector, ElType: el.Type, Label: el.Label})
		}
	}
	return changes
}

// diffProperties compares two descriptors and returns changed fields.
// Geometry is ignored since scrolling moves everything.
func diffProperties(prev, curr ElementDescriptor) map[string][2]string {
	diffs := make(map[string][2]string)
	if prev.Label != curr.Label {
		diffs["label"] = [2]string{prev.Label, curr.Label}
	}
	if prev.Value != curr.Value {
		diffs["value"] = [2]string{prev.Value, curr.Value}
	}
	if prev.Type != curr.Type {
		diffs["type"] = [2]string{prev.Type, curr.Type}
	}
	if prev.Disabled != curr.Disabled {
		diffs["disabled"] = [2]string{fmt.Sprint(prev.Disabled), fmt.Sprint(curr.Disabled)}
	}
	if boolPtr(prev.Checked) != boolPtr(curr.Checked) {
		diffs["checked"] = [2]string{fmt.Sprint(boolPtr(prev.Checked)), fmt.Sprint(boolPtr(curr.Checked))}
	}
	if len(diffs) == 0 {
		return nil
	}
	return diffs
}

func boolPtr(b *bool) bool {
	return b != nil && *b
}
