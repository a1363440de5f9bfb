package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_SequenceNumbers(t *testing.T) {
	l := NewLog()

	for i := 0; i < 10; i++ {
		e := l.Append(StateEntry, uint32(i), uint32(i*1000), "IDLE", "IDLE", "ENTER_IDLE", "", "")
		assert.Equal(t, uint32(i), e.Seq)
	}

	events := l.Events()
	require.Len(t, events, 10)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq, "sequence must increase by exactly one")
	}
}

func TestLog_FIFOEviction(t *testing.T) {
	l := NewLog(WithMaxEntries(5))

	for i := 0; i < 8; i++ {
		l.Append(Transition, 0, 0, "IDLE", "IDLE", "TRANSITION", "", "")
	}

	require.Equal(t, 5, l.Len())

	// Oldest entries are gone; sequence numbers keep counting.
	first, ok := l.At(0)
	require.True(t, ok)
	assert.Equal(t, uint32(3), first.Seq)

	last, ok := l.At(4)
	require.True(t, ok)
	assert.Equal(t, uint32(7), last.Seq)
}

func TestLog_Truncation(t *testing.T) {
	l := NewLog()

	longEvent := strings.Repeat("E", 100)
	longReason := strings.Repeat("R", 100)
	longData := strings.Repeat("D", 100)

	e := l.Append(UserAction, 1, 1000, "READY", "ANALYZING", longEvent, longReason, longData)

	assert.Len(t, e.Event, MaxEventLen)
	assert.Len(t, e.Reason, MaxReasonLen)
	assert.Len(t, e.Data, MaxDataLen)
}

func TestLog_JSONRoundTrip(t *testing.T) {
	l := NewLog()
	l.Append(StateExit, 100, 100123, "LISTENING", "INIT", "EXIT_LISTENING", "User trigger", "")
	l.Append(Transition, 100, 100150, "LISTENING", "INIT", "TRANSITION", "User trigger", "from=LISTENING to=ANALYZING")
	l.Append(StateEntry, 100, 100180, "ANALYZING", "LISTENING", "ENTER_ANALYZING", "User trigger", "")

	doc, err := l.ExportJSON()
	require.NoError(t, err)

	parsed, err := ParseJSONExport([]byte(doc))
	require.NoError(t, err)
	require.Len(t, parsed, l.Len())

	for i, e := range l.Events() {
		assert.Equal(t, e, parsed[i])
	}
}

func TestLog_JSONExportEmpty(t *testing.T) {
	l := NewLog()

	doc, err := l.ExportJSON()
	require.NoError(t, err)
	assert.Contains(t, doc, `"workflow_logs"`)

	parsed, err := ParseJSONExport([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

func TestLog_CSVExport(t *testing.T) {
	l := NewLog()
	l.Append(Error, 42, 42000, "TRANSMIT", "TX_GATED", "ERROR", "emission failed", "transmission failed")

	csv := l.ExportCSV()
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, CSVHeader, lines[0])
	assert.Equal(t, "0,42,42000,ERROR,TRANSMIT,TX_GATED,ERROR,emission failed,transmission failed", lines[1])
}

func TestLog_Clear(t *testing.T) {
	l := NewLog()
	l.Append(StateEntry, 0, 0, "INIT", "IDLE", "ENTER_INIT", "", "")
	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, uint32(0), l.NextSeq())
}

type recordingSink struct {
	events []Event
}

func (s *recordingSink) WriteEvent(e *Event) {
	s.events = append(s.events, *e)
}

func TestLog_Sink(t *testing.T) {
	sink := &recordingSink{}
	l := NewLog(WithSink(sink))

	l.Append(Timeout, 7, 7000, "READY", "ANALYZING", "TIMEOUT", "State timeout exceeded", "state=READY elapsed=120001")

	require.Len(t, sink.events, 1)
	assert.Equal(t, Timeout, sink.events[0].Type)
	assert.Equal(t, "READY", sink.events[0].State)
}

func TestEventType_Names(t *testing.T) {
	cases := map[EventType]string{
		StateEntry: "STATE_ENTRY",
		StateExit:  "STATE_EXIT",
		Transition: "TRANSITION",
		Error:      "ERROR",
		UserAction: "USER_ACTION",
		Timeout:    "TIMEOUT",
	}
	for typ, name := range cases {
		assert.Equal(t, name, typ.String())
	}
}
