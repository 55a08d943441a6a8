package mergetree

import (
	"strings"
	"testing"
	"time"
)

func TestTTLTracker_Bounds(t *testing.T) {
	rules := []TTLRule{
		{Column: "ts", Period: time.Hour},                        // table rule
		{Column: "ts", Period: 10 * time.Minute, Target: "body"}, // column rule
	}
	tracker := newTTLTracker(rules)
	if tracker.hasBounds() {
		t.Error("expected no bounds before any rows")
	}

	ts := buildColumn(t, "ts", TypeDateTime,
		DateTimeFromUnix(1000), DateTimeFromUnix(5000), DateTimeFromUnix(3000))
	body := buildColumn(t, "body", TypeString,
		StringValue("a"), StringValue("b"), StringValue("c"))
	blk, err := NewBlock(ts, body)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	if err := tracker.observeBlock(blk); err != nil {
		t.Fatalf("observeBlock failed: %v", err)
	}

	if !tracker.hasBounds() {
		t.Fatal("expected bounds after observing rows")
	}
	info := tracker.info()
	if info.Table == nil {
		t.Fatal("expected table bounds")
	}
	if info.Table.Min != 1000+3600 || info.Table.Max != 5000+3600 {
		t.Errorf("expected table bounds [4600, 8600], got [%d, %d]", info.Table.Min, info.Table.Max)
	}
	got, ok := info.Columns["body"]
	if !ok {
		t.Fatal("expected column bounds for body")
	}
	if got.Min != 1000+600 || got.Max != 5000+600 {
		t.Errorf("expected body bounds [1600, 5600], got [%d, %d]", got.Min, got.Max)
	}
}

func TestTTLTracker_RenderParseRoundTrip(t *testing.T) {
	rules := []TTLRule{{Column: "ts", Period: 24 * time.Hour}}
	tracker := newTTLTracker(rules)

	ts := buildColumn(t, "ts", TypeDateTime, DateTimeFromUnix(100), DateTimeFromUnix(200))
	blk, _ := NewBlock(ts)
	if err := tracker.observeBlock(blk); err != nil {
		t.Fatalf("observeBlock failed: %v", err)
	}

	data, err := tracker.render()
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.HasPrefix(string(data), "ttl format version: 1\n") {
		t.Errorf("missing version header in %q", data)
	}

	info, err := parseTTL(data)
	if err != nil {
		t.Fatalf("parseTTL failed: %v", err)
	}
	day := int64(86400)
	if info.Table == nil || info.Table.Min != 100+day || info.Table.Max != 200+day {
		t.Errorf("bad parsed table bounds: %+v", info.Table)
	}
	if len(info.Columns) != 0 {
		t.Errorf("expected no column bounds, got %v", info.Columns)
	}
}

func TestTTLTracker_MissingColumn(t *testing.T) {
	tracker := newTTLTracker([]TTLRule{{Column: "gone", Period: time.Hour}})
	ts := buildColumn(t, "ts", TypeDateTime, DateTimeFromUnix(1))
	blk, _ := NewBlock(ts)
	if err := tracker.observeBlock(blk); !IsLogicError(err) {
		t.Errorf("expected logic error for missing ttl column, got %v", err)
	}
}

func TestParseTTL_BadHeader(t *testing.T) {
	if _, err := parseTTL([]byte(`{"table":{"min":1,"max":2}}`)); err == nil {
		t.Error("expected error for missing header")
	}
	if _, err := parseTTL([]byte("ttl format version: 1\nnot json")); err == nil {
		t.Error("expected error for bad json body")
	}
}
