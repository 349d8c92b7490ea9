package page

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
)

func TestFindElementWithDebug_Ambiguous(t *testing.T) {
	d := dom.MustParse(`<body>
		<button class="btn" style="display:none">Hidden</button>
		<button class="btn">First visible</button>
		<button class="btn">Second</button>
	</body>`)
	res, err := FindElementWithDebug(d, ".btn", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusAmbiguous || res.MatchCount != 3 {
		t.Fatalf("expected ambiguous with 3 matches, got %s/%d", res.Status, res.MatchCount)
	}
	if len(res.Candidates) != 3 || res.Warning == "" {
		t.Errorf("expected candidates and a warning, got %+v", res)
	}
	if res.Element == nil || res.Element.Label != "First visible" {
		t.Errorf("expected the first visible button to be picked, got %+v", res.Element)
	}
	if err := res.Err(false); err != nil {
		t.Errorf("best-effort should accept the pick, got %v", err)
	}
	err = res.Err(true)
	if !errors.Is(err, bridgeerr.ErrElementAmbiguous) {
		t.Fatalf("strict should reject, got %v", err)
	}
	var be *bridgeerr.Error
	if !errors.As(err, &be) || be.Details["matchCount"] != 3 {
		t.Errorf("expected matchCount detail, got %+v", be)
	}
}

func TestFindElementWithDebug_NotFoundSuggests(t *testing.T) {
	d := dom.MustParse(`<body><button id="submit-button" class="btn-primary">Send</button></body>`)
	res, err := FindElementWithDebug(d, "#submit", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
	if len(res.Suggestions) == 0 || res.Suggestions[0] != "#submit-button" {
		t.Errorf("expected #submit-button suggestion, got %v", res.Suggestions)
	}
	got := Suggest(d, "button.btn-primry")
	want := []string{".btn-primary", "button (1 on page)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !errors.Is(res.Err(false), bridgeerr.ErrElementNotFound) {
		t.Error("expected ErrElementNotFound")
	}
}

func TestFindElementWithDebug_NotInteractable(t *testing.T) {
	d := dom.MustParse(`<body><input id="x" style="visibility: hidden"></body>`)
	res, err := FindElementWithDebug(d, "#x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusNotInteractable {
		t.Fatalf("expected not_interactable, got %s", res.Status)
	}
	if res.Style["visibility"] != "hidden" {
		t.Errorf("expected computed style in report, got %v", res.Style)
	}
	if !errors.Is(res.Err(false), bridgeerr.ErrElementNotInteractable) {
		t.Error("expected ErrElementNotInteractable")
	}
}

func TestFindElementWithDebug_InvalidSelector(t *testing.T) {
	d := dom.MustParse(`<body></body>`)
	if _, err := FindElementWithDebug(d, "div[", 0); !errors.Is(err, bridgeerr.ErrInvalidSelector) {
		t.Errorf("expected ErrInvalidSelector, got %v", err)
	}
}

func TestRing(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if got := r.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("expected oldest evicted, got %v", got)
	}
	if r.Len() != 3 {
		t.Errorf("expected len 3, got %d", r.Len())
	}
	r.Clear()
	if r.Len() != 0 || len(r.Items()) != 0 {
		t.Error("expected empty ring after Clear")
	}
	r.Push(9)
	if got := r.Items(); !reflect.DeepEqual(got, []int{9}) {
		t.Errorf("expected [9], got %v", got)
	}
}
