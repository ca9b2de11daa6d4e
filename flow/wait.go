package flow

import (
	"context"
	"sync"
	"time"
)

// DefaultSlice bounds how long a wait runs before re-checking pause and
// cancellation.
const DefaultSlice = 100 * time.Millisecond

// Pauser is a pause/resume signal shared by every wait of a run.
type Pauser struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (p *Pauser) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resume = make(chan struct{})
	}
}

func (p *Pauser) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resume)
	}
}

func (p *Pauser) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Wait blocks while paused. It returns the context error if ctx ends first.
func (p *Pauser) Wait(ctx context.Context) error {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return ctx.Err()
	}
	ch := p.resume
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return ctx.Err()
	}
}

// Sleep waits for d in slices of at most slice. Time spent paused does
// not count towards d. A nil pauser never pauses.
func Sleep(ctx context.Context, d, slice time.Duration, p *Pauser) error {
	if slice <= 0 {
		slice = DefaultSlice
	}
	remaining := d
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != nil {
			if err := p.Wait(ctx); err != nil {
				return err
			}
		}
		if remaining <= 0 {
			return nil
		}
		step := min(slice, remaining)
		t := time.NewTimer(step)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		remaining -= step
	}
}
