package page

import (
	"sync"
	"testing"
	"time"

	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

type reportSink struct {
	mu      sync.Mutex
	reports []model.MutationReport
}

func (s *reportSink) add(r model.MutationReport) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
}

func (s *reportSink) changes() []model.MutationReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MutationReport
	for _, r := range s.reports {
		if !r.Initial {
			out = append(out, r)
		}
	}
	return out
}

func (s *reportSink) initial() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reports {
		if r.Initial {
			n++
		}
	}
	return n
}

func watchedEngine(t *testing.T, markup string) (*Engine, *reportSink) {
	t.Helper()
	e := newTestEngine(t, markup, Options{WatchDebounce: 20 * time.Millisecond})
	sink := &reportSink{}
	e.OnMutation(sink.add)
	if _, err := handle(t, e, "set_watch_mode", map[string]bool{"enabled": true}); err != nil {
		t.Fatal(err)
	}
	return e, sink
}

func TestWatcher_IgnoresAttributeChurn(t *testing.T) {
	e, sink := watchedEngine(t, `<body><div id="spinner" class="a"></div><button>Go</button></body>`)
	if sink.initial() != 1 {
		t.Fatalf("expected one initial report, got %d", sink.initial())
	}
	onLoop(t, e, func(doc *dom.Document) {
		s := mustQuery(t, doc, "#spinner")
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				s.SetAttr("class", "b")
			} else {
				s.SetAttr("class", "a")
			}
		}
	})
	time.Sleep(150 * time.Millisecond)
	onLoop(t, e, func(*dom.Document) {})
	if got := sink.changes(); len(got) != 0 {
		t.Errorf("expected no reports for class churn, got %d", len(got))
	}
}

func TestWatcher_ReportsNewForm(t *testing.T) {
	e, sink := watchedEngine(t, `<body><div id="root"></div></body>`)
	onLoop(t, e, func(doc *dom.Document) {
		root := mustQuery(t, doc, "#root")
		if _, err := root.AppendHTML(`<form id="signup"><input name="email"><button>Join</button></form>`); err != nil {
			t.Fatal(err)
		}
	})
	time.Sleep(150 * time.Millisecond)
	onLoop(t, e, func(*dom.Document) {})
	got := sink.changes()
	if len(got) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(got))
	}
	r := got[0]
	if !r.HasNewForms || !r.HasNewInputs || !r.HasNewButtons {
		t.Errorf("expected form, input and button flags, got %+v", r)
	}
	if r.ElementCount != 2 || len(r.ElementChanges) != 2 {
		t.Errorf("expected 2 new elements in the diff, got count=%d changes=%d", r.ElementCount, len(r.ElementChanges))
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	e, sink := watchedEngine(t, `<body><ul id="list"></ul></body>`)
	for i := 0; i < 5; i++ {
		onLoop(t, e, func(doc *dom.Document) {
			list := mustQuery(t, doc, "#list")
			_, _ = list.AppendHTML(`<li><button>Item</button></li>`)
		})
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)
	onLoop(t, e, func(*dom.Document) {})
	if got := sink.changes(); len(got) != 1 {
		t.Errorf("expected one report for the burst, got %d", len(got))
	}
}

func TestWatcher_Disable(t *testing.T) {
	e, sink := watchedEngine(t, `<body><div id="root"></div></body>`)
	raw, err := handle(t, e, "set_watch_mode", map[string]bool{"enabled": false})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"watching":false}` {
		t.Errorf("unexpected reply %s", raw)
	}
	onLoop(t, e, func(doc *dom.Document) {
		_, _ = mustQuery(t, doc, "#root").AppendHTML(`<form><input></form>`)
	})
	time.Sleep(100 * time.Millisecond)
	if got := sink.changes(); len(got) != 0 {
		t.Errorf("expected no reports while disabled, got %d", len(got))
	}
}
