package asr

import (
	"testing"
	"time"
)

func TestVoiceDownBeforeVoiceUpIsNoOp(t *testing.T) {
	gate := NewVadGate()
	rec := NewRecorder(time.Second, "alice", "device-1")
	defer rec.Close()
	gate.Bind(rec)

	gate.SignalVoiceDown()

	if !rec.IsRecording() {
		t.Fatal("capture must keep running after spurious voice-down")
	}
	select {
	case <-rec.stop:
		t.Fatal("no stop must be requested")
	default:
	}
}

func TestVoiceUpThenDownStopsCapture(t *testing.T) {
	gate := NewVadGate()
	rec := NewRecorder(time.Minute, "alice", "device-1")
	defer rec.Close()
	gate.Bind(rec)

	gate.SignalVoiceUp()
	if !gate.Triggered() {
		t.Fatal("expected gate set after voice-up")
	}
	gate.SignalVoiceDown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := rec.Next(); ok {
			t.Error("expected terminated stream")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("capture did not stop before timeout")
	}
	if gate.Triggered() {
		t.Fatal("expected gate cleared after voice-down")
	}
}

func TestVoiceDownTwiceStopsOnlyOnce(t *testing.T) {
	gate := NewVadGate()
	rec := NewRecorder(time.Minute, "alice", "device-1")
	defer rec.Close()
	gate.Bind(rec)

	gate.SignalVoiceUp()
	gate.SignalVoiceDown()
	// Second down arrives with the gate already clear.
	gate.SignalVoiceDown()

	if gate.Triggered() {
		t.Fatal("gate must stay clear")
	}
}

func TestClearDoesNotStopRecorder(t *testing.T) {
	gate := NewVadGate()
	rec := NewRecorder(time.Minute, "alice", "device-1")
	defer rec.Close()
	gate.Bind(rec)

	gate.SignalVoiceUp()
	gate.Clear()

	if !rec.IsRecording() {
		t.Fatal("clear must not touch the recorder")
	}
}
