package dom

import (
	"strings"
	"testing"
)

func TestDispatch_BubblesToDocument(t *testing.T) {
	d := MustParse(`<div id="outer"><span id="inner">x</span></div>`)
	inner, _ := d.Query("#inner")
	outer, _ := d.Query("#outer")
	var seen []string
	d.AddEventListener(outer, "click", func(ev *Event) { seen = append(seen, "outer") })
	d.AddEventListener(nil, "click", func(ev *Event) { seen = append(seen, "document") })
	d.AddEventListener(inner, "click", func(ev *Event) { seen = append(seen, "inner") })
	d.Fire(inner, "click")
	if strings.Join(seen, ",") != "inner,outer,document" {
		t.Errorf("unexpected order %v", seen)
	}
}

func TestDispatch_StopPropagation(t *testing.T) {
	d := MustParse(`<div id="outer"><span id="inner">x</span></div>`)
	inner, _ := d.Query("#inner")
	outer, _ := d.Query("#outer")
	reached := false
	d.AddEventListener(inner, "click", func(ev *Event) { ev.StopPropagation() })
	d.AddEventListener(outer, "click", func(ev *Event) { reached = true })
	d.Fire(inner, "click")
	if reached {
		t.Error("expected propagation to stop at inner")
	}
}

func TestDispatch_RemoveListener(t *testing.T) {
	d := MustParse(`<button id="b">x</button>`)
	b, _ := d.Query("#b")
	calls := 0
	remove := d.AddEventListener(b, "click", func(ev *Event) { calls++ })
	d.Fire(b, "click")
	remove()
	d.Fire(b, "click")
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestClick_CheckboxDefaultAction(t *testing.T) {
	d := MustParse(`<input type="checkbox" id="c">`)
	c, _ := d.Query("#c")
	changes := 0
	d.AddEventListener(c, "change", func(ev *Event) { changes++ })
	d.Fire(c, "click")
	if !c.Checked() || changes != 1 {
		t.Errorf("expected checked with one change event, got checked=%v changes=%d", c.Checked(), changes)
	}
}

func TestClick_PreventDefault(t *testing.T) {
	d := MustParse(`<input type="checkbox" id="c">`)
	c, _ := d.Query("#c")
	d.AddEventListener(c, "click", func(ev *Event) { ev.PreventDefault() })
	if d.Fire(c, "click") {
		t.Error("expected default action to be canceled")
	}
	if c.Checked() {
		t.Error("expected checkbox to stay unchecked")
	}
}

func TestClick_LabelForwardsToControl(t *testing.T) {
	d := MustParse(`<label id="l"><input type="radio" name="r" id="r"> Yes</label><label for="c" id="l2">Agree</label><input type="checkbox" id="c">`)
	l, _ := d.Query("#l")
	r, _ := d.Query("#r")
	d.Fire(l, "click")
	if !r.Checked() {
		t.Error("expected wrapping label to check its radio")
	}
	l2, _ := d.Query("#l2")
	c, _ := d.Query("#c")
	d.Fire(l2, "click")
	if !c.Checked() {
		t.Error("expected label[for] to toggle its checkbox")
	}
}

func TestFocus_Sequence(t *testing.T) {
	d := MustParse(`<input id="a"><input id="b">`)
	a, _ := d.Query("#a")
	b, _ := d.Query("#b")
	var log []string
	d.AddEventListener(a, "blur", func(ev *Event) { log = append(log, "a:blur") })
	d.AddEventListener(b, "focus", func(ev *Event) { log = append(log, "b:focus") })
	d.Fire(a, "mousedown")
	if d.ActiveElement() != a {
		t.Fatal("expected mousedown to focus a")
	}
	d.Focus(b)
	if strings.Join(log, ",") != "a:blur,b:focus" {
		t.Errorf("unexpected focus log %v", log)
	}
}

func TestObserve_Mutations(t *testing.T) {
	d := MustParse(`<div id="root"></div>`)
	root, _ := d.Query("#root")
	var recs []MutationRecord
	cancel := d.Observe(func(batch []MutationRecord) { recs = append(recs, batch...) })
	if _, err := root.AppendHTML(`<form id="f"></form>`); err != nil {
		t.Fatal(err)
	}
	root.SetAttr("class", "x")
	cancel()
	root.SetAttr("class", "y")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Type != MutationChildList || len(recs[0].Added) != 1 || recs[0].Added[0].Tag() != "form" {
		t.Errorf("unexpected childList record %+v", recs[0])
	}
	if recs[1].Type != MutationAttributes || recs[1].AttributeName != "class" {
		t.Errorf("unexpected attribute record %+v", recs[1])
	}
}
