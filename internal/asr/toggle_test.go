package asr

import (
	"testing"
	"time"
)

func TestToggleOffBeforeStartIsNoOp(t *testing.T) {
	toggle := NewListeningToggle()
	toggle.ToggleOff("device-1")
	if toggle.Listening("device-1") {
		t.Fatal("device must not be listening")
	}
}

func TestToggleOffWakesWaiter(t *testing.T) {
	toggle := NewListeningToggle()
	toggle.StartListening("device-1")

	if !toggle.Listening("device-1") {
		t.Fatal("expected device listening")
	}

	off := toggle.Off("device-1")
	toggle.ToggleOff("device-1")

	select {
	case <-off:
	case <-time.After(time.Second):
		t.Fatal("off channel never closed")
	}
	if toggle.Listening("device-1") {
		t.Fatal("expected device no longer listening")
	}
}

func TestToggleOffTwiceIsSafe(t *testing.T) {
	toggle := NewListeningToggle()
	toggle.StartListening("device-1")
	toggle.ToggleOff("device-1")
	toggle.ToggleOff("device-1")
}

func TestToggleFreshChannelPerCapture(t *testing.T) {
	toggle := NewListeningToggle()
	toggle.StartListening("device-1")
	toggle.ToggleOff("device-1")

	// A new capture must not observe the previous session's toggle-off.
	toggle.StartListening("device-1")
	select {
	case <-toggle.Off("device-1"):
		t.Fatal("stale toggle-off leaked into new capture")
	default:
	}
}

func TestOffChannelClosedWhenNotListening(t *testing.T) {
	toggle := NewListeningToggle()
	select {
	case <-toggle.Off("device-1"):
	default:
		t.Fatal("expected closed channel for idle device")
	}
}
