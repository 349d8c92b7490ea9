package page

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want KeyPress
	}{
		{"Enter", KeyPress{Key: "Enter"}},
		{"esc", KeyPress{Key: "Escape"}},
		{"a", KeyPress{Key: "a", Code: "KeyA"}},
		{"ctrl+shift+a", KeyPress{Key: "A", Code: "KeyA", Ctrl: true, Shift: true}},
		{"cmd+k", KeyPress{Key: "k", Code: "KeyK", Meta: true}},
		{"F5", KeyPress{Key: "F5", Code: "F5"}},
		{"+", KeyPress{Key: "+"}},
		{"ctrl++", KeyPress{Key: "+", Ctrl: true}},
		{"space", KeyPress{Key: " ", Code: "Space"}},
		{"7", KeyPress{Key: "7", Code: "Digit7"}},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.in, err)
			continue
		}
		if tt.want.Code == "" {
			tt.want.Code = keyCode(tt.want.Key)
		}
		if got != tt.want {
			t.Errorf("%q: expected %+v, got %+v", tt.in, tt.want, got)
		}
	}
	for _, bad := range []string{"", "hyper+a", "notakey"} {
		if _, err := ParseKey(bad); !errors.Is(err, bridgeerr.ErrInvalidRequest) {
			t.Errorf("%q: expected ErrInvalidRequest, got %v", bad, err)
		}
	}
}

// recordEvents logs the given event types fired at n.
func recordEvents(doc *dom.Document, n *dom.Node, types ...string) *[]string {
	var log []string
	for _, typ := range types {
		typ := typ
		doc.AddEventListener(n, typ, func(*dom.Event) { log = append(log, typ) })
	}
	return &log
}

func TestFill_EventOrder(t *testing.T) {
	e := newTestEngine(t, `<body><input id="name" value="old"></body>`, Options{})
	var log *[]string
	var value string
	onLoop(t, e, func(doc *dom.Document) {
		n := mustQuery(t, doc, "#name")
		log = recordEvents(doc, n, "focus", "keydown", "keypress", "beforeinput", "input", "keyup", "change", "blur")
		if err := e.fill(n, "ab", FillOptions{}); err != nil {
			t.Errorf("fill: %v", err)
		}
		value = n.Value()
	})
	if value != "ab" {
		t.Errorf("expected value ab, got %q", value)
	}
	want := []string{
		"focus",
		"beforeinput", "input",
		"keydown", "keypress", "beforeinput", "input", "keyup",
		"keydown", "keypress", "beforeinput", "input", "keyup",
		"change", "blur",
	}
	if !reflect.DeepEqual(*log, want) {
		t.Errorf("unexpected event order\n got: %v\nwant: %v", *log, want)
	}
}

func TestFill_RespectsPreventDefaultAndMaxLength(t *testing.T) {
	e := newTestEngine(t, `<body><input id="pin" maxlength="4"><input id="digits"></body>`, Options{})
	var pin, digits string
	onLoop(t, e, func(doc *dom.Document) {
		p := mustQuery(t, doc, "#pin")
		if err := e.fill(p, "123456", FillOptions{}); err != nil {
			t.Fatal(err)
		}
		pin = p.Value()

		d := mustQuery(t, doc, "#digits")
		doc.AddEventListener(d, "keydown", func(ev *dom.Event) {
			if ev.Key < "0" || ev.Key > "9" {
				ev.PreventDefault()
			}
		})
		if err := e.fill(d, "a1b2", FillOptions{}); err != nil {
			t.Fatal(err)
		}
		digits = d.Value()
	})
	if pin != "1234" {
		t.Errorf("expected maxlength to cap the value, got %q", pin)
	}
	if digits != "12" {
		t.Errorf("expected prevented keys to be dropped, got %q", digits)
	}
}

func TestFill_NotEditable(t *testing.T) {
	e := newTestEngine(t, `<body><input id="ro" readonly><div id="d">x</div></body>`, Options{})
	onLoop(t, e, func(doc *dom.Document) {
		for _, sel := range []string{"#ro", "#d"} {
			err := e.fill(mustQuery(t, doc, sel), "v", FillOptions{})
			if !errors.Is(err, bridgeerr.ErrElementNotInteractable) {
				t.Errorf("%s: expected ErrElementNotInteractable, got %v", sel, err)
			}
		}
	})
}

func TestFill_CheckboxAndSelect(t *testing.T) {
	e := newTestEngine(t, `<body>
		<input id="c" type="checkbox">
		<select id="s"><option value="au">Australia</option><option value="nz">New Zealand</option></select>
	</body>`, Options{})
	onLoop(t, e, func(doc *dom.Document) {
		c := mustQuery(t, doc, "#c")
		if err := e.fill(c, "yes", FillOptions{}); err != nil || !c.Checked() {
			t.Errorf("expected checkbox checked, err=%v", err)
		}
		s := mustQuery(t, doc, "#s")
		if err := e.fill(s, "new zealand", FillOptions{}); err != nil || s.Value() != "nz" {
			t.Errorf("expected nz selected, got %q err=%v", s.Value(), err)
		}
	})
}

func TestPressKey_TabMovesFocus(t *testing.T) {
	e := newTestEngine(t, `<body><input id="a"><input id="b"></body>`, Options{})
	if _, err := handle(t, e, "press_key", map[string]string{"key": "Tab", "selector": "#a"}); err != nil {
		t.Fatal(err)
	}
	onLoop(t, e, func(doc *dom.Document) {
		if got := doc.ActiveElement(); got == nil || got.ID() != "b" {
			t.Errorf("expected focus on #b, got %v", got)
		}
	})
}

func TestClickByText(t *testing.T) {
	e := newTestEngine(t, `<body>
		<button id="s1">Save</button>
		<div><button id="s2"><span>Save draft</span></button></div>
		<p>Nothing to save here</p>
	</body>`, Options{})
	var clicked []string
	onLoop(t, e, func(doc *dom.Document) {
		doc.AddEventListener(nil, "click", func(ev *dom.Event) {
			if b := ev.Target.Closest("button"); b != nil {
				clicked = append(clicked, b.ID())
			} else if ev.Target.Tag() == "button" {
				clicked = append(clicked, ev.Target.ID())
			}
		})
	})

	raw, err := handle(t, e, "click_by_text", map[string]any{"text": "save", "index": 1})
	if err != nil {
		t.Fatal(err)
	}
	onLoop(t, e, func(*dom.Document) {})
	if len(clicked) != 1 || clicked[0] != "s2" {
		t.Errorf("expected #s2 clicked, got %v (%s)", clicked, raw)
	}

	_, err = handle(t, e, "click_by_text", map[string]any{"text": "save", "index": 5})
	var be *bridgeerr.Error
	if !errors.As(err, &be) || be.Code != bridgeerr.CodeElementNotFound {
		t.Fatalf("expected element_not_found, got %v", err)
	}
	if be.Details["matchCount"] != 2 {
		t.Errorf("expected matchCount 2, got %v", be.Details["matchCount"])
	}
	if alts, ok := be.Details["alternatives"].([]map[string]any); !ok || len(alts) != 2 {
		t.Errorf("expected 2 alternatives, got %v", be.Details["alternatives"])
	}
}
