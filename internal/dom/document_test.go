package dom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
)

func TestQueryAll_DocumentOrder(t *testing.T) {
	d := MustParse(`<ul><li id="a">A</li><li id="b">B</li><li id="c">C</li></ul>`)
	nodes, err := d.QueryAll("li")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	for i, want := range []string{"a", "b", "c"} {
		if nodes[i].ID() != want {
			t.Errorf("node %d: expected id %q, got %q", i, want, nodes[i].ID())
		}
	}
}

func TestQuery_InvalidSelector(t *testing.T) {
	d := MustParse(`<div></div>`)
	_, err := d.Query("div[")
	if !errors.Is(err, bridgeerr.ErrInvalidSelector) {
		t.Fatalf("expected ErrInvalidSelector, got %v", err)
	}
	if bridgeerr.CodeOf(err) != bridgeerr.CodeInvalidSelector {
		t.Errorf("unexpected code %q", bridgeerr.CodeOf(err))
	}
}

func TestNodeQuery_ExcludesSelf(t *testing.T) {
	d := MustParse(`<div class="x" id="outer"><div class="x" id="inner"></div></div>`)
	outer, _ := d.Query("#outer")
	got, err := outer.QueryAll(".x")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID() != "inner" {
		t.Errorf("expected only #inner, got %d nodes", len(got))
	}
	first, _ := outer.Query(".x")
	if first == nil || first.ID() != "inner" {
		t.Errorf("expected first match #inner")
	}
}

func TestWrap_Identity(t *testing.T) {
	d := MustParse(`<p id="p">x</p>`)
	a, _ := d.Query("#p")
	b, _ := d.Query("p")
	if a != b {
		t.Error("expected the same *Node for the same element")
	}
}

func TestTitle(t *testing.T) {
	d := MustParse(`<html><head><title>  Sign in </title></head><body></body></html>`)
	if d.Title() != "Sign in" {
		t.Errorf("unexpected title %q", d.Title())
	}
}

func TestValue_Controls(t *testing.T) {
	d := MustParse(`
		<input id="t" value="hello">
		<input id="c" type="checkbox">
		<textarea id="ta">body</textarea>
		<select id="s"><option value="1">One</option><option value="2" selected>Two</option></select>
		<select id="s2"><option>First</option><option>Second</option></select>`)
	tests := []struct {
		sel  string
		want string
	}{
		{"#t", "hello"},
		{"#c", "on"},
		{"#ta", "body"},
		{"#s", "2"},
		{"#s2", "First"},
	}
	for _, tt := range tests {
		n, _ := d.Query(tt.sel)
		if got := n.Value(); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.sel, tt.want, got)
		}
	}
}

func TestSetValue_Select(t *testing.T) {
	d := MustParse(`<select id="s"><option value="a">A</option><option value="b">B</option></select>`)
	s, _ := d.Query("#s")
	s.SetValue("b")
	if s.Value() != "b" {
		t.Errorf("expected b, got %q", s.Value())
	}
}

func TestSetChecked_RadioGroup(t *testing.T) {
	d := MustParse(`<form>
		<input type="radio" name="r" id="r1" checked>
		<input type="radio" name="r" id="r2">
	</form>`)
	r1, _ := d.Query("#r1")
	r2, _ := d.Query("#r2")
	r2.SetChecked(true)
	if r1.Checked() {
		t.Error("expected r1 to be unchecked")
	}
	if !r2.Checked() {
		t.Error("expected r2 to be checked")
	}
}

func TestDisabled_Fieldset(t *testing.T) {
	d := MustParse(`<fieldset disabled><input id="i"></fieldset><button id="b" aria-disabled="true">x</button>`)
	for _, sel := range []string{"#i", "#b"} {
		n, _ := d.Query(sel)
		if !n.Disabled() {
			t.Errorf("%s: expected disabled", sel)
		}
	}
}

func TestShadowHost(t *testing.T) {
	d := MustParse(`<my-widget id="host"><template shadowrootmode="open"><button id="inner">Go</button></template></my-widget>`)
	inner, _ := d.Query("#inner")
	if inner == nil {
		t.Fatal("expected declarative shadow content to be queryable")
	}
	host := inner.ShadowHost()
	if host == nil || host.ID() != "host" {
		t.Fatalf("expected host element, got %v", host)
	}
	if !inner.Visible() {
		t.Error("expected shadow content to be rendered")
	}
}

func TestStorage(t *testing.T) {
	s := NewStorage()
	s.Set("b", "2")
	s.Set("a", "1")
	if keys := s.Keys(); len(keys) != 2 || keys[0] != "a" {
		t.Errorf("unexpected keys %v", keys)
	}
	s.Remove("a")
	if _, ok := s.Get("a"); ok {
		t.Error("expected a to be removed")
	}
}

func TestLoop_DoRunsInOrder(t *testing.T) {
	l := NewLoop()
	defer l.Stop()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", got)
		}
	}
}

func TestLoop_Stopped(t *testing.T) {
	l := NewLoop()
	l.Stop()
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("expected ErrLoopStopped, got %v", err)
	}
}

func TestLoop_AfterFunc(t *testing.T) {
	l := NewLoop()
	defer l.Stop()
	done := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer task never ran")
	}
}
