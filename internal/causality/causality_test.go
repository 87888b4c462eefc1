package causality

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyhetu-vm/internal/value"
)

func num(n float64) value.Value { return value.NewNumber(n) }

func TestRecordMutation(t *testing.T) {
	log := NewLog()

	log.RecordMutation("x", num(0), num(1), "")
	log.RecordMutation("x", num(1), num(2), "")

	history := log.History("x")
	require.Len(t, history, 2)
	assert.Equal(t, num(0), history[0].OldValue)
	assert.Equal(t, num(1), history[0].NewValue)
	assert.Equal(t, num(1), history[1].OldValue)
	assert.Equal(t, num(2), history[1].NewValue)
}

func TestClockStrictlyIncreasing(t *testing.T) {
	log := NewLog()

	log.RecordMutation("a", num(0), num(1), "")
	log.RecordMutation("b", num(0), num(1), "")
	log.RecordMutation("a", num(1), num(2), "")

	assert.Equal(t, 3, log.CurrentTime())

	history := log.History("a")
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Timestamp)
	assert.Equal(t, 3, history[1].Timestamp)
	assert.Greater(t, history[1].Timestamp, history[0].Timestamp)
}

func TestWhy(t *testing.T) {
	log := NewLog()

	log.RecordMutation("counter", num(0), num(1), "")
	log.RecordMutation("counter", num(1), num(2), "")

	why := log.Why("counter")
	assert.Contains(t, why, "Causality chain for 'counter':")
	assert.Contains(t, why, "1. [t=1] 0 -> 1")
	assert.Contains(t, why, "2. [t=2] 1 -> 2")
}

func TestWhyEmpty(t *testing.T) {
	log := NewLog()
	assert.Equal(t, "No state history for 'ghost'", log.Why("ghost"))
}

func TestToDot(t *testing.T) {
	log := NewLog()

	log.RecordMutation("x", num(0), num(10), "")
	log.RecordMutation("x", num(10), num(20), "")

	dot := log.ToDot("x")
	assert.Contains(t, dot, "digraph x {")
	assert.Contains(t, dot, `s0 [label="0"]`)
	assert.Contains(t, dot, `s1 [label="10"]`)
	assert.Contains(t, dot, `s2 [label="20"]`)
	assert.Contains(t, dot, `s0 -> s1 [label="t=1"]`)
	assert.Contains(t, dot, `s1 -> s2 [label="t=2"]`)
}

func TestToDotEscapesQuotes(t *testing.T) {
	log := NewLog()
	log.RecordMutation("s", value.NewString(`say "hi"`), value.NewString("done"), "")
	assert.Contains(t, log.ToDot("s"), `say \"hi\"`)
}

func TestToJSONRoundTrip(t *testing.T) {
	log := NewLog()

	log.RecordMutation("x", num(0), num(1), "")
	log.RecordMutation("x", num(1), num(2), "")

	var decoded struct {
		Variable string `json:"variable"`
		Events   []struct {
			ID        int    `json:"id"`
			Timestamp int    `json:"timestamp"`
			Old       string `json:"old"`
			New       string `json:"new"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(log.ToJSON("x")), &decoded))

	assert.Equal(t, "x", decoded.Variable)
	require.Len(t, decoded.Events, 2)
	assert.Equal(t, "0", decoded.Events[0].Old)
	assert.Equal(t, "1", decoded.Events[0].New)
	assert.Equal(t, 1, decoded.Events[0].Timestamp)
	assert.Equal(t, "2", decoded.Events[1].New)
}

func TestToJSONEmpty(t *testing.T) {
	log := NewLog()
	assert.Equal(t, `{"variable":"x","events":[]}`, log.ToJSON("x"))
}

func TestValueAt(t *testing.T) {
	log := NewLog()

	log.RecordMutation("x", num(0), num(10), "") // t=1
	log.RecordMutation("x", num(10), num(20), "") // t=2
	log.RecordMutation("x", num(20), num(30), "") // t=3

	v, ok := log.ValueAt("x", 2)
	require.True(t, ok)
	assert.Equal(t, num(20), v)

	// Before the first event, the initial value is returned.
	v, ok = log.ValueAt("x", 0)
	require.True(t, ok)
	assert.Equal(t, num(0), v)

	// After the last event.
	v, ok = log.ValueAt("x", 99)
	require.True(t, ok)
	assert.Equal(t, num(30), v)

	// Unknown variable.
	_, ok = log.ValueAt("ghost", 1)
	assert.False(t, ok)
}

func TestTransitionCount(t *testing.T) {
	log := NewLog()
	assert.Equal(t, 0, log.TransitionCount("x"))

	log.RecordMutation("x", num(0), num(1), "")
	log.RecordMutation("x", num(1), num(2), "")
	log.RecordMutation("y", num(0), num(1), "")

	assert.Equal(t, 2, log.TransitionCount("x"))
	assert.Equal(t, 1, log.TransitionCount("y"))
	assert.Equal(t, len(log.History("x")), log.TransitionCount("x"))
}

func TestConsecutiveEventsChain(t *testing.T) {
	log := NewLog()
	log.RecordMutation("v", num(0), num(1), "")
	log.RecordMutation("v", num(1), num(5), "")
	log.RecordMutation("v", num(5), num(9), "")

	history := log.History("v")
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].NewValue, history[i].OldValue,
			"event %d old must equal event %d new", i, i-1)
	}
}

func TestClear(t *testing.T) {
	log := NewLog()
	log.RecordMutation("x", num(0), num(1), "")
	require.Equal(t, 1, log.CurrentTime())

	log.Clear()
	assert.Equal(t, 0, log.CurrentTime())
	assert.Empty(t, log.History("x"))
	assert.Empty(t, log.AllEvents())
}
