package page

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

func TestFindComboContainer(t *testing.T) {
	div := func(class string) dom.QueryableNode { return fakeNode{"div", map[string]string{"class": class}} }
	tests := []struct {
		name  string
		chain []dom.QueryableNode
		want  int
	}{
		{"direct parent", []dom.QueryableNode{div("react-select__value-container"), div("page")}, 0},
		{"grandparent", []dom.QueryableNode{div("wrap"), div("MuiAutocomplete-root")}, 1},
		{"role", []dom.QueryableNode{div("x"), fakeNode{"div", map[string]string{"role": "combobox"}}}, 1},
		{"none", []dom.QueryableNode{div("field"), div("form-row")}, -1},
		{"beyond depth", []dom.QueryableNode{div("a"), div("b"), div("c"), div("d"), div("e"), div("f"), div("dropdown")}, -1},
	}
	for _, tt := range tests {
		if got := FindComboContainer(tt.chain); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}

func TestDetectComboBox(t *testing.T) {
	d := dom.MustParse(`<body>
		<input id="plain">
		<div class="ant-select"><div class="ant-select-selector"><input id="ant"></div>
			<span class="ant-select-arrow">v</span></div>
	</body>`)
	info, err := DetectComboBox(d, "#plain")
	if err != nil || info != nil {
		t.Fatalf("expected no combo-box for a plain input, got %+v, %v", info, err)
	}
	info, err = DetectComboBox(d, "#ant")
	if err != nil || info == nil {
		t.Fatalf("expected a combo-box, got %v", err)
	}
	if info.Family != model.FamilyAntDesign || info.Open {
		t.Errorf("unexpected info %+v", info)
	}
}

const reactSelect = `<body>
	<label for="country-input">Country</label>
	<div class="react-select__container" id="country">
		<div class="react-select__control">
			<div class="react-select__value-container"><input id="country-input" type="text"></div>
			<div class="react-select__indicators"><span class="react-select__indicator">v</span></div>
		</div>
	</div>
</body>`

// openOnMouseDown renders the menu shortly after the first mousedown, the
// way portal-based widgets do.
func openOnMouseDown(e *Engine, delay time.Duration) {
	doc := e.Document()
	doc.AddEventListener(nil, "mousedown", func(*dom.Event) {
		e.Loop().AfterFunc(delay, func() {
			if n, _ := doc.Query(".react-select__menu"); n != nil {
				return
			}
			root, _ := doc.Query("#country")
			_, _ = root.AppendHTML(`<div class="react-select__menu">
				<div class="react-select__option">Australia</div>
				<div class="react-select__option">Austria</div>
				<div class="react-select__option">Belgium</div>
			</div>`)
		})
	})
}

func TestGetDropdownOptions_HarvestsAfterOpening(t *testing.T) {
	e := newTestEngine(t, reactSelect, Options{})
	onLoop(t, e, func(*dom.Document) { openOnMouseDown(e, 100*time.Millisecond) })

	res, err := e.GetDropdownOptions(context.Background(), "#country-input", DropdownOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Opened || res.Family != model.FamilyReactSelect {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Options) != 3 || res.Options[1].Text != "Austria" {
		t.Fatalf("expected 3 harvested options, got %+v", res.Options)
	}
	if res.Hint != "" {
		t.Errorf("unexpected hint %q", res.Hint)
	}
}

func TestGetDropdownOptions_HintWhenNothingAppears(t *testing.T) {
	e := newTestEngine(t, reactSelect, Options{SettleDelay: 50 * time.Millisecond})
	res, err := e.GetDropdownOptions(context.Background(), "#country-input", DropdownOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Options) != 0 || res.Options == nil {
		t.Errorf("expected an empty option list, got %+v", res.Options)
	}
	if res.Hint == "" {
		t.Error("expected a hint")
	}
}

func TestGetDropdownOptions_Native(t *testing.T) {
	e := newTestEngine(t, `<body><select id="s"><option value="1">One</option><option value="2" selected>Two</option></select></body>`, Options{})
	res, err := e.GetDropdownOptions(context.Background(), "#s", DropdownOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Native || res.Opened || len(res.Options) != 2 || !res.Options[1].Selected {
		t.Errorf("unexpected native result %+v", res)
	}
}

func TestGetDropdownOptions_NotACombo(t *testing.T) {
	e := newTestEngine(t, `<body><input id="name"></body>`, Options{})
	_, err := e.GetDropdownOptions(context.Background(), "#name", DropdownOptions{})
	if !errors.Is(err, bridgeerr.ErrComboBoxNotDetected) {
		t.Fatalf("expected ErrComboBoxNotDetected, got %v", err)
	}
}

func TestSelectOption_CustomDropdown(t *testing.T) {
	e := newTestEngine(t, reactSelect, Options{})
	var picked string
	onLoop(t, e, func(doc *dom.Document) {
		openOnMouseDown(e, 20*time.Millisecond)
		doc.AddEventListener(nil, "click", func(ev *dom.Event) {
			if ev.Target.HasClass("react-select__option") {
				picked = ev.Target.Text()
			}
		})
	})
	if _, err := handle(t, e, "select_option", map[string]string{"selector": "#country-input", "value": "belgium"}); err != nil {
		t.Fatal(err)
	}
	onLoop(t, e, func(*dom.Document) {})
	if picked != "Belgium" {
		t.Errorf("expected Belgium to be clicked, got %q", picked)
	}
}
