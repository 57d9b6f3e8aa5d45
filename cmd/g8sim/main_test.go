package main

import (
	"testing"
	"time"
)

func TestParseIRQScheduleEmpty(t *testing.T) {
	events, err := parseIRQSchedule("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events != nil {
		t.Fatalf("events = %v, want nil", events)
	}
}

func TestParseIRQScheduleMultiple(t *testing.T) {
	events, err := parseIRQSchedule("2:500ms,3:1s")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []irqEvent{
		{irq: 2, delay: 500 * time.Millisecond},
		{irq: 3, delay: time.Second},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, ev, want[i])
		}
	}
}

func TestParseIRQScheduleMalformed(t *testing.T) {
	cases := []string{"2", "2:", "x:1s", "2:bogus"}
	for _, c := range cases {
		if _, err := parseIRQSchedule(c); err == nil {
			t.Fatalf("parseIRQSchedule(%q): expected error", c)
		}
	}
}
