package model

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Search", "search"},
		{"Full Name", "full-name"},
		{"OK", "ok"},
		{"hello---world", "hello-world"},
		{"  spaces  ", "spaces"},
		{"Special!@#$%Chars", "special-chars"},
		{"Inbox (23288 unread)", "inbox-23288-unread"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestBestLabel(t *testing.T) {
	tests := []struct {
		name string
		el   ElementDescriptor
		want string
	}{
		{"label", ElementDescriptor{Label: "Email"}, "Email"},
		{"placeholder", ElementDescriptor{Placeholder: "you@example.com"}, "you@example.com"},
		{"name", ElementDescriptor{Name: "zip"}, "zip"},
		{"label over placeholder", ElementDescriptor{Label: "Email", Placeholder: "x"}, "Email"},
		{"value ignored", ElementDescriptor{Value: "typed"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bestLabel(tt.el); got != tt.want {
				t.Errorf("bestLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateRefs_LandmarksAndDedup(t *testing.T) {
	elements := []ElementDescriptor{
		{Type: TypeTextInput, Label: "Email", Landmark: "login"},
		{Type: TypeButton, Label: "Sign in", Landmark: "login"},
		{Type: TypeLink, Label: "More"},
		{Type: TypeLink, Label: "More"},
		{Type: TypeButton},
	}
	GenerateRefs(elements)
	want := []string{"login/email", "login/sign-in", "more.1", "more.2", "button"}
	for i, w := range want {
		if elements[i].Ref != w {
			t.Errorf("element %d: ref = %q, want %q", i, elements[i].Ref, w)
		}
	}
}

func TestFindElementByRef(t *testing.T) {
	elements := []ElementDescriptor{
		{Ref: "login/email", Selector: "#email"},
		{Ref: "signup/email", Selector: "#email2"},
		{Ref: "login/submit", Selector: "#go"},
	}
	el, err := FindElementByRef(elements, "login/email")
	if err != nil || el.Selector != "#email" {
		t.Fatalf("exact match failed: %v", err)
	}
	el, err = FindElementByRef(elements, "submit")
	if err != nil || el.Selector != "#go" {
		t.Fatalf("suffix match failed: %v", err)
	}
	if _, err := FindElementByRef(elements, "email"); err == nil || !strings.Contains(err.Error(), "multiple") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
	if _, err := FindElementByRef(elements, "nope"); err == nil {
		t.Error("expected not-found error")
	}
}

func TestUniqueKeys(t *testing.T) {
	got := UniqueKeys([]string{"First name", "First name", ""}, "field")
	want := []string{"first-name", "first-name-2", "field-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, got[i], want[i])
		}
	}
}
