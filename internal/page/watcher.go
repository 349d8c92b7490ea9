package page

import (
	"log/slog"
	"time"

	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

const (
	maxReportedAttrs   = 50
	maxReportedChanges = 20
)

// batch accumulates mutation records between debounce ticks.
type batch struct {
	added, removed int
	attrs          []model.AttrChange
	attrCount      int
	forms          bool
	inputs         bool
	buttons        bool
	modals         bool
}

func (b *batch) empty() bool {
	return b.added == 0 && b.removed == 0 && b.attrCount == 0
}

// Watcher is the debounced mutation classifier. It is either disabled or
// watching. All methods must run on the page loop.
type Watcher struct {
	doc       *dom.Document
	loop      *dom.Loop
	log       *slog.Logger
	debounce  time.Duration
	threshold int
	frameID   int
	emit      func(model.MutationReport)

	watching bool
	cancel   func()
	timer    *time.Timer
	gen      uint64
	pending  batch
	last     []model.ElementDescriptor
}

// NewWatcher creates a disabled watcher. emit runs on the loop.
func NewWatcher(doc *dom.Document, loop *dom.Loop, debounce time.Duration, threshold, frameID int, log *slog.Logger, emit func(model.MutationReport)) *Watcher {
	return &Watcher{
		doc:       doc,
		loop:      loop,
		log:       log,
		debounce:  debounce,
		threshold: threshold,
		frameID:   frameID,
		emit:      emit,
	}
}

// Watching reports the current state.
func (w *Watcher) Watching() bool { return w.watching }

// Enable starts watching and emits the baseline report. Enabling an already
// watching watcher does nothing.
func (w *Watcher) Enable() {
	if w.watching {
		return
	}
	w.watching = true
	w.pending = batch{}
	w.cancel = w.doc.Observe(w.record)
	w.last = w.snapshot()
	w.log.Debug("watch mode enabled", "elements", len(w.last))
	w.emit(w.report(batch{}, nil, true))
}

// Disable stops watching and drops anything buffered.
func (w *Watcher) Disable() {
	if !w.watching {
		return
	}
	w.watching = false
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	w.pending = batch{}
	w.last = nil
	w.log.Debug("watch mode disabled")
}

func (w *Watcher) record(recs []dom.MutationRecord) {
	if !w.watching {
		return
	}
	for _, r := range recs {
		switch r.Type {
		case dom.MutationChildList:
			w.pending.added += len(r.Added)
			w.pending.removed += len(r.Removed)
			for _, n := range r.Added {
				w.classify(n)
			}
		case dom.MutationAttributes:
			w.pending.attrCount++
			if len(w.pending.attrs) < maxReportedAttrs {
				w.pending.attrs = append(w.pending.attrs, model.AttrChange{
					Selector:  PathSelector(w.doc, r.Target),
					Attribute: r.AttributeName,
					OldValue:  r.OldValue,
				})
			}
		}
	}
	w.arm()
}

// classify flags significant nodes in an added subtree.
func (w *Watcher) classify(n *dom.Node) {
	if !n.IsElement() {
		return
	}
	for _, el := range append([]*dom.Node{n}, n.Descendants()...) {
		switch el.Tag() {
		case "form":
			w.pending.forms = true
		case "input", "select", "textarea":
			if el.InputType() == "submit" || el.InputType() == "button" {
				w.pending.buttons = true
			} else if el.InputType() != "hidden" {
				w.pending.inputs = true
			}
		case "button":
			w.pending.buttons = true
		}
		if primaryRole(el.AttrOr("role", "")) == "button" {
			w.pending.buttons = true
		}
		if !w.pending.modals && w.looksModal(el) {
			w.pending.modals = true
		}
	}
}

func (w *Watcher) looksModal(el *dom.Node) bool {
	r := el.BoundingBox()
	vp := w.doc.Viewport
	box := model.Box{X: r.X - vp.ScrollX, Y: r.Y - vp.ScrollY, Width: r.Width, Height: r.Height}
	view := model.Box{Width: vp.Width, Height: vp.Height}
	return model.LooksModal(el.Tag(), el.Attributes(), el.Style().Position, box, view)
}

// arm restarts the debounce window. The generation check discards a tick
// that was already queued when the window restarted.
func (w *Watcher) arm() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.loop.AfterFunc(w.debounce, func() {
		if gen == w.gen {
			w.flush()
		}
	})
}

// Significant reports whether a batch is worth telling the caller about.
func (b *batch) Significant(threshold int) bool {
	if b.forms || b.inputs || b.buttons || b.modals {
		return true
	}
	delta := b.added - b.removed
	if delta < 0 {
		delta = -delta
	}
	return delta > threshold
}

func (w *Watcher) flush() {
	w.timer = nil
	if !w.watching {
		return
	}
	b := w.pending
	w.pending = batch{}
	if b.empty() || !b.Significant(w.threshold) {
		return
	}
	curr := w.snapshot()
	changes := model.DiffElements(w.last, curr)
	w.last = curr
	if len(changes) > maxReportedChanges {
		changes = changes[:maxReportedChanges]
	}
	w.emit(w.report(b, changes, false))
}

func (w *Watcher) snapshot() []model.ElementDescriptor {
	els, err := Index(w.doc, IndexOptions{}, w.frameID)
	if err != nil {
		w.log.Warn("index for mutation report failed", "error", err)
	}
	return els
}

func (w *Watcher) report(b batch, changes []model.ElementChange, initial bool) model.MutationReport {
	count := len(w.last)
	return model.MutationReport{
		Initial:        initial,
		AddedNodes:     b.added,
		RemovedNodes:   b.removed,
		Attributes:     b.attrs,
		HasNewForms:    b.forms,
		HasNewInputs:   b.inputs,
		HasNewButtons:  b.buttons,
		HasNewModals:   b.modals,
		ElementCount:   count,
		ElementChanges: changes,
		URL:            w.doc.URL.String(),
		Title:          w.doc.Title(),
		FrameID:        w.frameID,
		Timestamp:      time.Now().UnixMilli(),
	}
}
