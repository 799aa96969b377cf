package trace

import "testing"

func TestCanonicalOrderingSortsByTaskIDThenKind(t *testing.T) {
	tr1 := Trace{RunID: "r", Events: []Event{
		{Kind: EventSucceeded, TaskID: "b"},
		{Kind: EventDispatched, TaskID: "a"},
	}}
	tr2 := Trace{RunID: "r", Events: []Event{
		{Kind: EventDispatched, TaskID: "a"},
		{Kind: EventSucceeded, TaskID: "b"},
	}}

	b1, err := tr1.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (1): %v", err)
	}
	b2, err := tr2.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (2): %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("expected identical canonical bytes regardless of recording order\n1=%s\n2=%s", b1, b2)
	}
}

func TestHashDeterministic(t *testing.T) {
	tr1 := Trace{RunID: "r", Events: []Event{{Kind: EventCacheHit, TaskID: "a"}}}
	tr2 := Trace{RunID: "r", Events: []Event{{Kind: EventCacheHit, TaskID: "a"}}}

	h1, err := tr1.Hash()
	if err != nil {
		t.Fatalf("hash (1): %v", err)
	}
	h2, err := tr2.Hash()
	if err != nil {
		t.Fatalf("hash (2): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hash, got %q != %q", h1, h2)
	}
}

func TestRecorderTraceOrdersOneTasksEventsByKind(t *testing.T) {
	rec := NewRecorder()
	rec.Record(Event{Kind: EventDispatched, TaskID: "a"})
	rec.Record(Event{Kind: EventFailed, TaskID: "a"})
	rec.Record(Event{Kind: EventRetried, TaskID: "a"})

	tr := rec.Trace("run-1")
	if len(tr.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(tr.Events))
	}
	// All events share TaskID "a"; canonical order then falls back to kindOrder.
	if tr.Events[0].Kind != EventDispatched {
		t.Fatalf("expected Dispatched first by kindOrder, got %v", tr.Events[0].Kind)
	}
}

func TestSafeRecordNeverPanicsOnNilSink(t *testing.T) {
	SafeRecord(nil, Event{Kind: EventFailed, TaskID: "a"})
}

func TestValidateRejectsMissingTaskID(t *testing.T) {
	tr := Trace{RunID: "r", Events: []Event{{Kind: EventFailed}}}
	if err := tr.Validate(); err == nil {
		t.Fatalf("expected validation error for missing taskId")
	}
}
