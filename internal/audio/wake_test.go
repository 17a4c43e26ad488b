package audio

import (
	"errors"
	"testing"
)

func TestNoopDetectorNeverFires(t *testing.T) {
	d := NewNoopDetector(512, 16000)
	for i := 0; i < 100; i++ {
		detected, err := d.ProcessFrame(loudFrame(512))
		if err != nil {
			t.Fatalf("ProcessFrame error: %v", err)
		}
		if detected {
			t.Fatal("noop detector reported a detection")
		}
	}
	if d.FrameSamples() != 512 || d.SampleRate() != 16000 {
		t.Error("noop detector does not advertise the configured geometry")
	}
	if err := d.UpdateSensitivity(0.5); err != nil {
		t.Errorf("UpdateSensitivity error: %v", err)
	}
}

func TestFallbackDetector(t *testing.T) {
	real := &scriptedDetector{frameSamples: 512, sampleRate: 16000}

	if got := FallbackDetector(real, nil, 512, 16000); got != WakeDetector(real) {
		t.Error("healthy detector was replaced")
	}
	got := FallbackDetector(nil, errors.New("model missing"), 512, 16000)
	if _, ok := got.(*NoopDetector); !ok {
		t.Errorf("failed construction yielded %T, want *NoopDetector", got)
	}
	got = FallbackDetector(nil, nil, 512, 16000)
	if _, ok := got.(*NoopDetector); !ok {
		t.Errorf("nil detector yielded %T, want *NoopDetector", got)
	}
}
