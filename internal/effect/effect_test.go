package effect

import (
	"context"
	"testing"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/response"
)

type recordingSender struct {
	brightness []int
	lamps      []int
}

// Send decodes the DimLamp wire frame's lamp number (second data byte) and
// brightness byte (last byte of the data section) straight out of the
// encoded frame, mirroring how an Agent would see it on the wire.
func (s *recordingSender) Send(ctx context.Context, frame []byte) (response.Typed, error) {
	s.lamps = append(s.lamps, int(frame[16]))
	s.brightness = append(s.brightness, int(frame[len(frame)-4]))
	return response.Typed{}, nil
}

func TestFadeArithmetic(t *testing.T) {
	e := NewEngine()
	s := &recordingSender{}
	err := e.Fade(context.Background(), s, "a1", 1, 1, 5, 0, 100, 1)
	if err != nil {
		t.Fatalf("Fade returned error: %v", err)
	}
	if len(s.brightness) != 21 {
		t.Fatalf("got %d steps, want 21", len(s.brightness))
	}
	want := []int{0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75, 80, 85, 90, 95, 100}
	for i, w := range want {
		if s.brightness[i] != w {
			t.Fatalf("step %d = %d, want %d", i, s.brightness[i], w)
		}
	}
}

type erroringSender struct {
	failAt int
	calls  int
}

func (s *erroringSender) Send(ctx context.Context, frame []byte) (response.Typed, error) {
	s.calls++
	if s.calls == s.failAt {
		return response.Typed{}, context.DeadlineExceeded
	}
	return response.Typed{}, nil
}

func TestFadeAbortsOnStepFailure(t *testing.T) {
	e := NewEngine()
	s := &erroringSender{failAt: 3}
	err := e.Fade(context.Background(), s, "a1", 1, 1, 5, 0, 100, 1)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if s.calls != 3 {
		t.Fatalf("calls = %d, want 3 (aborted after failure)", s.calls)
	}
}

func TestWaveOrderAndNoTrailingSleep(t *testing.T) {
	e := NewEngine()
	s := &recordingSender{}
	start := time.Now()
	err := e.Wave(context.Background(), s, "a1", 1, 1, []int{1, 2, 3}, 50, 5)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Wave returned error: %v", err)
	}
	if len(s.brightness) != 3 {
		t.Fatalf("got %d sends, want 3", len(s.brightness))
	}
	for i, want := range []int{1, 2, 3} {
		if s.lamps[i] != want {
			t.Fatalf("send %d went to lamp %d, want %d", i, s.lamps[i], want)
		}
	}
	// Two inter-command sleeps of 5ms, none after the last lamp.
	if elapsed >= 25*time.Millisecond {
		t.Fatalf("elapsed %v suggests a trailing sleep was added", elapsed)
	}
}

func TestNewEffectOnSameLampCancelsPrior(t *testing.T) {
	e := NewEngine()
	s := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.Fade(ctx, s, "a1", 1, 1, 5, 0, 100, 5) // long fade: 5s/20 per step
	}()
	time.Sleep(20 * time.Millisecond) // let the first step fire

	// A second fade on the same lamp should cancel the first.
	err := e.Fade(context.Background(), s, "a1", 1, 1, 5, 100, 0, 1)
	if err != nil {
		t.Fatalf("second Fade returned error: %v", err)
	}

	select {
	case firstErr := <-done:
		if firstErr == nil {
			t.Fatal("expected the superseded fade to return an error")
		}
	case <-time.After(time.Second):
		t.Fatal("superseded fade never returned after being cancelled")
	}
}
