// Where: internal/progress/progress_test.go
// What: Tests for the channel emitter drop semantics.
// Why: A slow consumer must never block a running workflow.
package progress

import "testing"

func TestChannelEmitNeverBlocks(t *testing.T) {
	c := NewChannel(2)
	for i := 0; i < 10; i++ {
		c.Emit(Event{Agent: AgentParser, Status: StatusStarted})
	}
	c.Close()

	count := 0
	for range c.Events() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 buffered events, got %d", count)
	}
}

func TestHelpersTolerateNilEmitter(t *testing.T) {
	Started(nil, AgentParser, "x")
	Completed(nil, AgentParser, "x")
	Failed(nil, AgentParser, "x")
}

func TestEventOrderWithinRun(t *testing.T) {
	c := NewChannel(8)
	Started(c, AgentParser, "")
	Completed(c, AgentParser, "")
	Started(c, AgentCollector, "")
	c.Close()

	var got []Status
	for e := range c.Events() {
		got = append(got, e.Status)
	}
	want := []Status{StatusStarted, StatusCompleted, StatusStarted}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
