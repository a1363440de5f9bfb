package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultMaxEntries is the retained event bound; oldest entries are
// evicted first. Sequence numbers keep increasing across evictions.
const DefaultMaxEntries = 500

// Sink receives every appended event for live streaming. The log itself
// always retains events in memory regardless of sinks.
type Sink interface {
	WriteEvent(e *Event)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) WriteEvent(e *Event) {
	for _, s := range m {
		s.WriteEvent(e)
	}
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries overrides the retained event bound.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithSink attaches a live streaming sink.
func WithSink(s Sink) Option {
	return func(l *Log) {
		l.sink = s
	}
}

// Log is an append-only, bounded deterministic event stream. It is owned
// by a single writer; external collaborators only read and export.
type Log struct {
	maxEntries int
	seq        uint32
	entries    []Event
	sink       Sink
}

// NewLog creates an empty log.
func NewLog(options ...Option) *Log {
	l := Log{maxEntries: DefaultMaxEntries}
	for _, option := range options {
		option(&l)
	}
	return &l
}

// Append records an event, assigning the next sequence number and
// truncating the string fields to their bounds. It returns the stored
// entry.
func (l *Log) Append(t EventType, ms, us uint32, state, prevState, event, reason, data string) *Event {
	if len(l.entries) >= l.maxEntries {
		n := len(l.entries) - l.maxEntries + 1
		l.entries = append(l.entries[:0], l.entries[n:]...)
	}

	e := Event{
		Seq:         l.seq,
		TimestampMs: ms,
		TimestampUs: us,
		Type:        t,
		State:       state,
		PrevState:   prevState,
		Event:       truncate(event, MaxEventLen),
		Reason:      truncate(reason, MaxReasonLen),
		Data:        truncate(data, MaxDataLen),
	}
	l.seq++

	l.entries = append(l.entries, e)
	if l.sink != nil {
		l.sink.WriteEvent(&e)
	}
	return &l.entries[len(l.entries)-1]
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	return len(l.entries)
}

// At returns a copy of the i-th retained event (oldest first).
func (l *Log) At(i int) (Event, bool) {
	if i < 0 || i >= len(l.entries) {
		return Event{}, false
	}
	return l.entries[i], true
}

// Events returns a copy of all retained events in order.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// NextSeq returns the sequence number the next appended event will get.
func (l *Log) NextSeq() uint32 {
	return l.seq
}

// Clear drops all retained events and resets the sequence counter.
func (l *Log) Clear() {
	l.entries = l.entries[:0]
	l.seq = 0
}

type jsonExport struct {
	WorkflowLogs []Event `json:"workflow_logs"`
}

// ExportJSON renders the retained events as a JSON document.
func (l *Log) ExportJSON() (string, error) {
	doc := jsonExport{WorkflowLogs: l.entries}
	if doc.WorkflowLogs == nil {
		doc.WorkflowLogs = []Event{}
	}

	p, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling audit log: %w", err)
	}
	return string(p), nil
}

// ParseJSONExport decodes a document produced by ExportJSON.
func ParseJSONExport(data []byte) ([]Event, error) {
	var doc jsonExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing audit log export: %w", err)
	}
	return doc.WorkflowLogs, nil
}

// CSVHeader is the first row of every CSV export.
const CSVHeader = "sequence,timestamp_ms,timestamp_us,event_type,state,prev_state,event,reason,data"

// ExportCSV renders the retained events as CSV. Values are length-bounded
// ASCII without commas by construction, so no quoting is applied.
func (l *Log) ExportCSV() string {
	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')

	for i := range l.entries {
		e := &l.entries[i]
		fmt.Fprintf(&b, "%d,%d,%d,%s,%s,%s,%s,%s,%s\n",
			e.Seq, e.TimestampMs, e.TimestampUs, e.Type,
			e.State, e.PrevState, e.Event, e.Reason, e.Data)
	}
	return b.String()
}
