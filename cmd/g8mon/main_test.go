package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/g8kernel/g8rtos/kernel"
)

func testConfig() kernel.Config {
	cfg := kernel.DefaultConfig()
	cfg.MaxThreads = 4
	cfg.MaxQueues = 1
	cfg.QueueCapacity = 2
	return cfg
}

func TestDispatchQuitStopsLoop(t *testing.T) {
	k := kernel.New(testConfig(), nil)
	var buf bytes.Buffer
	if cont := dispatch(k, "quit", &buf); cont {
		t.Fatal("dispatch(\"quit\") should return false")
	}
}

func TestDispatchHelp(t *testing.T) {
	k := kernel.New(testConfig(), nil)
	var buf bytes.Buffer
	if !dispatch(k, "help", &buf) {
		t.Fatal("dispatch(\"help\") should keep looping")
	}
	if !strings.Contains(buf.String(), "threads") {
		t.Fatalf("help output = %q, missing command list", buf.String())
	}
}

func TestDispatchTickAdvancesSysTime(t *testing.T) {
	k := kernel.New(testConfig(), nil)
	var buf bytes.Buffer
	dispatch(k, "tick 5", &buf)
	if k.SysTime() != 5 {
		t.Fatalf("systime = %d, want 5", k.SysTime())
	}
	if !strings.Contains(buf.String(), "systime=5") {
		t.Fatalf("tick output = %q, missing systime", buf.String())
	}
}

func TestDispatchQueueUnknownIndex(t *testing.T) {
	k := kernel.New(testConfig(), nil)
	var buf bytes.Buffer
	dispatch(k, "queue 0", &buf)
	if !strings.Contains(buf.String(), "queue 0:") {
		t.Fatalf("queue output = %q, want an error for an uninitialized queue", buf.String())
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	k := kernel.New(testConfig(), nil)
	var buf bytes.Buffer
	dispatch(k, "bogus", &buf)
	if !strings.Contains(buf.String(), "unknown command") {
		t.Fatalf("output = %q, want unknown-command message", buf.String())
	}
}

func TestDispatchEmptyLineContinues(t *testing.T) {
	k := kernel.New(testConfig(), nil)
	var buf bytes.Buffer
	if !dispatch(k, "", &buf) {
		t.Fatal("dispatch(\"\") should keep looping")
	}
	if buf.Len() != 0 {
		t.Fatalf("empty line produced output: %q", buf.String())
	}
}
