package subprocess

import (
	"fmt"
	"testing"
)

func TestDisableConflictingUnit(t *testing.T) {
	var calls [][]string
	run := func(args ...string) error {
		calls = append(calls, args)
		return nil
	}

	DisableConflictingUnit(run, "snips-asr.service", testLogger())

	if len(calls) != 2 {
		t.Fatalf("expected stop and disable, got %v", calls)
	}
	if calls[0][0] != "stop" || calls[1][0] != "disable" {
		t.Fatalf("unexpected actions: %v", calls)
	}
	for _, call := range calls {
		if call[1] != "snips-asr.service" {
			t.Fatalf("unexpected unit: %v", call)
		}
	}
}

func TestDisableConflictingUnitToleratesFailure(t *testing.T) {
	run := func(args ...string) error {
		return fmt.Errorf("unit not found")
	}
	DisableConflictingUnit(run, "snips-asr.service", testLogger())
}

func TestDisableConflictingUnitEmptyUnit(t *testing.T) {
	called := false
	run := func(args ...string) error {
		called = true
		return nil
	}
	DisableConflictingUnit(run, "", testLogger())
	if called {
		t.Fatal("no runner call expected for empty unit")
	}
}
