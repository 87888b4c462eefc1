// Package causality records state mutations with logical timestamps,
// backing the language's why()/time()/causal_graph() introspection.
package causality

import (
	"fmt"
	"strings"

	"skyhetu-vm/internal/value"
)

// MutationEvent is a single recorded state mutation.
type MutationEvent struct {
	ID        int
	Variable  string
	OldValue  value.Value
	NewValue  value.Value
	Timestamp int
	Location  string
}

func (e MutationEvent) String() string {
	return fmt.Sprintf("[#%d] %s : %s -> %s", e.ID, e.Variable, e.OldValue, e.NewValue)
}

// Log is the append-only causality store. Events live for the lifetime
// of the VM; the logical clock only resets on Clear.
type Log struct {
	events     []MutationEvent
	byVariable map[string][]int
	clock      int
	nextID     int
}

func NewLog() *Log {
	return &Log{byVariable: make(map[string][]int)}
}

// RecordMutation advances the clock and appends an event for variable.
func (l *Log) RecordMutation(variable string, oldValue, newValue value.Value, location string) int {
	id := l.nextID
	l.nextID++
	l.clock++

	l.events = append(l.events, MutationEvent{
		ID:        id,
		Variable:  variable,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: l.clock,
		Location:  location,
	})
	l.byVariable[variable] = append(l.byVariable[variable], id)
	return id
}

// History returns the ordered mutation events for a variable.
func (l *Log) History(variable string) []MutationEvent {
	ids := l.byVariable[variable]
	events := make([]MutationEvent, 0, len(ids))
	for _, id := range ids {
		if id < len(l.events) {
			events = append(events, l.events[id])
		}
	}
	return events
}

// AllEvents returns every event in recording order.
func (l *Log) AllEvents() []MutationEvent {
	return l.events
}

// Why formats the causality chain for a variable.
func (l *Log) Why(variable string) string {
	history := l.History(variable)
	if len(history) == 0 {
		return fmt.Sprintf("No state history for '%s'", variable)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Causality chain for '%s':\n", variable)
	for i, event := range history {
		fmt.Fprintf(&sb, "  %d. [t=%d] %s -> %s\n", i+1, event.Timestamp, event.OldValue, event.NewValue)
	}
	return sb.String()
}

// CurrentTime returns the logical clock.
func (l *Log) CurrentTime() int {
	return l.clock
}

// Clear drops all history and resets the clock.
func (l *Log) Clear() {
	l.events = nil
	l.byVariable = make(map[string][]int)
	l.clock = 0
	l.nextID = 0
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// ToDot exports the causality chain for a variable as a Graphviz
// digraph: s0 is the initial value, each si+1 the value after event i.
func (l *Log) ToDot(variable string) string {
	history := l.History(variable)
	if len(history) == 0 {
		return fmt.Sprintf("digraph %s {\n  \"no_history\" [label=\"No history\"];\n}\n", variable)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %s {\n", variable)
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box];\n")

	for i, event := range history {
		if i == 0 {
			fmt.Fprintf(&sb, "  s%d [label=\"%s\"];\n", i, escapeQuotes(event.OldValue.String()))
		}
		fmt.Fprintf(&sb, "  s%d [label=\"%s\"];\n", i+1, escapeQuotes(event.NewValue.String()))
	}
	for i, event := range history {
		fmt.Fprintf(&sb, "  s%d -> s%d [label=\"t=%d\"];\n", i, i+1, event.Timestamp)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// ToJSON exports the causality chain for a variable.
func (l *Log) ToJSON(variable string) string {
	history := l.History(variable)
	if len(history) == 0 {
		return fmt.Sprintf(`{"variable":"%s","events":[]}`, variable)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `{"variable":"%s","events":[`, variable)
	for i, event := range history {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"id":%d,"timestamp":%d,"old":"%s","new":"%s"}`,
			event.ID, event.Timestamp,
			escapeQuotes(event.OldValue.String()),
			escapeQuotes(event.NewValue.String()))
	}
	sb.WriteString("]}")
	return sb.String()
}

// ValueAt returns the value of a variable after the last event with
// timestamp <= t, or the initial value when every event is later.
func (l *Log) ValueAt(variable string, timestamp int) (value.Value, bool) {
	history := l.History(variable)
	if len(history) == 0 {
		return value.Value{}, false
	}

	var result value.Value
	found := false
	for _, event := range history {
		if event.Timestamp <= timestamp {
			result = event.NewValue
			found = true
		} else {
			break
		}
	}
	if !found {
		if history[0].Timestamp > timestamp {
			return history[0].OldValue, true
		}
		return value.Value{}, false
	}
	return result, true
}

// TransitionCount returns the number of recorded events for a variable.
func (l *Log) TransitionCount(variable string) int {
	return len(l.byVariable[variable])
}
