package model

import "testing"

func TestDiffElements_NoChanges(t *testing.T) {
	elements := []ElementDescriptor{{Selector: "#ok", Type: TypeButton, Label: "OK"}}
	if changes := DiffElements(elements, elements); len(changes) != 0 {
		t.Errorf("expected no changes, got %d", len(changes))
	}
}

func TestDiffElements_Added(t *testing.T) {
	prev := []ElementDescriptor{{Selector: "#ok", Label: "OK"}}
	curr := []ElementDescriptor{{Selector: "#ok", Label: "OK"}, {Selector: "#cancel", Label: "Cancel"}}
	changes := DiffElements(prev, curr)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Type != ChangeAdded || changes[0].Label != "Cancel" {
		t.Errorf("unexpected change %+v", changes[0])
	}
}

func TestDiffElements_Removed(t *testing.T) {
	prev := []ElementDescriptor{{Selector: "#ok"}, {Selector: "#spinner", Label: "Loading..."}}
	curr := []ElementDescriptor{{Selector: "#ok"}}
	changes := DiffElements(prev, curr)
	if len(changes) != 1 || changes[0].Type != ChangeRemoved || changes[0].Selector != "#spinner" {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestDiffElements_Changed(t *testing.T) {
	checked := true
	prev := []ElementDescriptor{{Selector: "#q", Type: TypeTextInput, Value: ""}, {Selector: "#c", Type: TypeCheckbox}}
	curr := []ElementDescriptor{
		{Selector: "#q", Type: TypeTextInput, Value: "hello", Bounds: Box{X: 50}},
		{Selector: "#c", Type: TypeCheckbox, Checked: &checked},
	}
	changes := DiffElements(prev, curr)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if d := changes[0].Changes["value"]; d != [2]string{"", "hello"} {
		t.Errorf("unexpected value diff %v", d)
	}
	if _, ok := changes[0].Changes["bounds"]; ok {
		t.Error("geometry must not be diffed")
	}
	if d := changes[1].Changes["checked"]; d != [2]string{"false", "true"} {
		t.Errorf("unexpected checked diff %v", d)
	}
}
