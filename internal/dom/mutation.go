package dom

import "time"

// MutationType classifies a MutationRecord.
type MutationType string

const (
	MutationChildList  MutationType = "childList"
	MutationAttributes MutationType = "attributes"
)

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type          MutationType
	Target        *Node
	Added         []*Node
	Removed       []*Node
	AttributeName string
	OldValue      string
}

type observer struct {
	id int
	fn func([]MutationRecord)
}

// Observe registers fn to receive mutation records as they happen and
// returns a cancel function.
func (d *Document) Observe(fn func([]MutationRecord)) func() {
	d.nextObserverID++
	id := d.nextObserverID
	d.observers = append(d.observers, &observer{id: id, fn: fn})
	return func() {
		for i, o := range d.observers {
			if o.id == id {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) notify(rec MutationRecord) {
	if len(d.observers) == 0 {
		return
	}
	batch := []MutationRecord{rec}
	for _, o := range append([]*observer(nil), d.observers...) {
		o.fn(batch)
	}
}

// ConsoleEntry is one captured console message.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NetworkEntry summarizes one request/response pair.
type NetworkEntry struct {
	Method    string        `json:"method"`
	URL       string        `json:"url"`
	Status    int           `json:"status"`
	Type      string        `json:"type,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// OnConsole subscribes to console output.
func (d *Document) OnConsole(fn func(ConsoleEntry)) func() {
	d.consoleSubs = append(d.consoleSubs, fn)
	idx := len(d.consoleSubs) - 1
	return func() { d.consoleSubs[idx] = nil }
}

// OnNetwork subscribes to network activity.
func (d *Document) OnNetwork(fn func(NetworkEntry)) func() {
	d.networkSubs = append(d.networkSubs, fn)
	idx := len(d.networkSubs) - 1
	return func() { d.networkSubs[idx] = nil }
}

// Log emits a console message from the page.
func (d *Document) Log(level, msg string) {
	e := ConsoleEntry{Level: level, Message: msg, Source: d.URL.String(), Timestamp: time.Now()}
	for _, fn := range d.consoleSubs {
		if fn != nil {
			fn(e)
		}
	}
}

// RecordNetwork reports a completed request made by the page.
func (d *Document) RecordNetwork(e NetworkEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, fn := range d.networkSubs {
		if fn != nil {
			fn(e)
		}
	}
}
