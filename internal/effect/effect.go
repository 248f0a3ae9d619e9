// Package effect implements the high-level lighting effects (fade, wave) as
// time-sliced sequences of single-lamp dim commands, serialized through an
// Agent's single-flight request lane.
package effect

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ampiolux/lcs-gateway/internal/lcscmd"
	"github.com/ampiolux/lcs-gateway/internal/metrics"
	"github.com/ampiolux/lcs-gateway/internal/response"
)

// Sender is the subset of an Agent client an effect needs: send one frame,
// wait for its correlated response.
type Sender interface {
	Send(ctx context.Context, frame []byte) (response.Typed, error)
}

// Key identifies the lamp a running effect owns, for cancellation purposes.
type Key struct {
	AgentID string
	Master  int
	CU      int
	LampNo  int
}

type handle struct {
	cancel context.CancelFunc
}

// Engine tracks in-flight fade/wave effects and cancels a prior effect on a
// lamp when a new one targets it, so overlapping requests never fight over
// the same physical fixture.
type Engine struct {
	mu      chan struct{} // binary semaphore; avoids importing sync for one lock
	running map[Key]*handle
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	e := &Engine{mu: make(chan struct{}, 1), running: make(map[Key]*handle)}
	e.mu <- struct{}{}
	return e
}

func (e *Engine) lock()   { <-e.mu }
func (e *Engine) unlock() { e.mu <- struct{}{} }

// acquire cancels any effect currently running on any of keys, registers a
// fresh cancellable context under all of them, and returns it plus a release
// func the caller must defer.
func (e *Engine) acquire(parent context.Context, keys []Key) (context.Context, func()) {
	e.lock()
	for _, k := range keys {
		if h, ok := e.running[k]; ok {
			h.cancel()
		}
	}
	ctx, cancel := context.WithCancel(parent)
	h := &handle{cancel: cancel}
	for _, k := range keys {
		e.running[k] = h
	}
	e.unlock()
	metrics.SetEffectsActive(len(e.running))

	release := func() {
		e.lock()
		for _, k := range keys {
			if e.running[k] == h {
				delete(e.running, k)
			}
		}
		n := len(e.running)
		e.unlock()
		cancel()
		metrics.SetEffectsActive(n)
	}
	return ctx, release
}

// Fade linearly interpolates a single lamp's brightness from start to end
// over durationSec, across exactly 21 samples (i = 0..20), awaiting each
// command's ack before scheduling the next. It aborts on the first failed
// step.
func (e *Engine) Fade(ctx context.Context, sender Sender, agentID string, master, cu, lampNo, start, end, durationSec int) error {
	key := Key{AgentID: agentID, Master: master, CU: cu, LampNo: lampNo}
	runCtx, release := e.acquire(ctx, []Key{key})
	defer release()

	stepDelay := time.Duration(durationSec) * time.Second / 20

	for i := 0; i <= 20; i++ {
		brightness := int(math.Round(float64(start) + float64(end-start)*float64(i)/20.0))
		frame, err := lcscmd.DimLamp(master, cu, lampNo, brightness)
		if err != nil {
			metrics.IncEffectCompleted("fade", "invalid")
			return fmt.Errorf("fade: step %d: %w", i, err)
		}
		if _, err := sender.Send(runCtx, frame); err != nil {
			metrics.IncEffectCompleted("fade", "failed")
			return fmt.Errorf("fade: step %d: %w", i, err)
		}
		if i < 20 {
			select {
			case <-time.After(stepDelay):
			case <-runCtx.Done():
				metrics.IncEffectCompleted("fade", "cancelled")
				return runCtx.Err()
			}
		}
	}
	metrics.IncEffectCompleted("fade", "completed")
	return nil
}

// Wave dims each lamp in lamps, in order, to brightness, sleeping
// intervalMs between commands (not after the last one).
func (e *Engine) Wave(ctx context.Context, sender Sender, agentID string, master, cu int, lamps []int, brightness, intervalMs int) error {
	keys := make([]Key, len(lamps))
	for i, l := range lamps {
		keys[i] = Key{AgentID: agentID, Master: master, CU: cu, LampNo: l}
	}
	runCtx, release := e.acquire(ctx, keys)
	defer release()

	interval := time.Duration(intervalMs) * time.Millisecond
	for i, lamp := range lamps {
		frame, err := lcscmd.DimLamp(master, cu, lamp, brightness)
		if err != nil {
			metrics.IncEffectCompleted("wave", "invalid")
			return fmt.Errorf("wave: lamp %d: %w", lamp, err)
		}
		if _, err := sender.Send(runCtx, frame); err != nil {
			metrics.IncEffectCompleted("wave", "failed")
			return fmt.Errorf("wave: lamp %d: %w", lamp, err)
		}
		if i < len(lamps)-1 {
			select {
			case <-time.After(interval):
			case <-runCtx.Done():
				metrics.IncEffectCompleted("wave", "cancelled")
				return runCtx.Err()
			}
		}
	}
	metrics.IncEffectCompleted("wave", "completed")
	return nil
}
