package page

import (
	"reflect"
	"testing"

	"github.com/mj1618/web-bridge/internal/dom"
)

func mustQuery(t *testing.T, d *dom.Document, sel string) *dom.Node {
	t.Helper()
	n, err := d.Query(sel)
	if err != nil || n == nil {
		t.Fatalf("query %s: %v", sel, err)
	}
	return n
}

func TestSynthesize_Cascade(t *testing.T) {
	d := dom.MustParse(`<body>
		<button data-testid="save" id="save-btn">Save</button>
		<button id="cancel">Cancel</button>
		<input name="email">
		<a aria-label="Help" href="/help">?</a>
		<div class="card featured"><span class="title">A</span></div>
		<div class="card"><span class="title">B</span></div>
	</body>`)
	tests := []struct {
		sel      string
		strategy string
	}{
		{"[data-testid=save]", StrategyTestAttribute},
		{"#cancel", StrategyID},
		{"input", StrategyName},
		{"a", StrategyAriaLabel},
		{".featured", StrategyClass},
	}
	for _, tt := range tests {
		el := mustQuery(t, d, tt.sel)
		got := Synthesize(d, el)
		if got.Strategy != tt.strategy {
			t.Errorf("%s: expected strategy %s, got %s (%s)", tt.sel, tt.strategy, got.Strategy, got.Primary)
		}
		if !resolvesTo(d, got.Primary, el) {
			t.Errorf("%s: primary %q does not resolve to the element", tt.sel, got.Primary)
		}
		for _, alt := range got.Alternatives {
			if !resolvesTo(d, alt.Selector, el) {
				t.Errorf("%s: alternative %q does not resolve to the element", tt.sel, alt.Selector)
			}
		}
	}
}

func TestSynthesize_IDsNeedingEscapes(t *testing.T) {
	for _, id := range []string{"a:b", "1st", "with space", "x.y", "-dash"} {
		d := dom.MustParse(`<div></div>`)
		div := mustQuery(t, d, "div")
		div.SetAttr("id", id)
		got := Synthesize(d, div)
		if got.Strategy != StrategyID || !resolvesTo(d, got.Primary, div) {
			t.Errorf("id %q: expected a resolving id selector, got %+v", id, got)
		}
	}
}

func TestSynthesize_SkipsStateClasses(t *testing.T) {
	d := dom.MustParse(`<ul><li class="item active">A</li><li class="item">B</li></ul>`)
	li := mustQuery(t, d, "li.active")
	got := Synthesize(d, li)
	if got.Strategy != StrategyPath {
		t.Errorf("expected path fallback, got %s (%s)", got.Strategy, got.Primary)
	}
	if !resolvesTo(d, got.Primary, li) {
		t.Errorf("path %q does not resolve to the element", got.Primary)
	}
}

func TestPathSelector_UniqueForEverySibling(t *testing.T) {
	d := dom.MustParse(`<body><section id="list"><ul><li>a</li><li>b</li><li>c</li></ul></section><ul><li>d</li></ul></body>`)
	lis, _ := d.QueryAll("li")
	seen := map[string]bool{}
	for _, li := range lis {
		p := PathSelector(d, li)
		if !resolvesTo(d, p, li) {
			t.Errorf("path %q does not resolve to %q", p, li.Text())
		}
		if seen[p] {
			t.Errorf("duplicate path %q", p)
		}
		seen[p] = true
	}
	first := PathSelector(d, lis[0])
	if want := "#list > ul > li:nth-of-type(1)"; first != want {
		t.Errorf("expected anchored path %q, got %q", want, first)
	}
}

func TestStableClasses(t *testing.T) {
	got := StableClasses([]string{"btn", "active", "is-open", "css-1x2y3", "primary", "ng-dirty", "Selected"})
	want := []string{"btn", "primary"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCombinations(t *testing.T) {
	var got [][]int
	combinations(4, 2, func(idx []int) bool {
		got = append(got, append([]int(nil), idx...))
		return true
	})
	want := [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
