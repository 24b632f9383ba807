package service

import (
	"sync"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

// LevelFunc receives a meter reading on every poll
type LevelFunc func(audio.LevelSnapshot)

// StateFunc receives every state transition
type StateFunc func(from, to State)

// LevelPoller evaluates a level source on a ticker and hands each reading to emit.
// The source and emit must not block on the service lock.
type LevelPoller struct {
	interval time.Duration
	emit     LevelFunc

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewLevelPoller creates a stopped poller
func NewLevelPoller(interval time.Duration, emit LevelFunc) *LevelPoller {
	if interval <= 0 {
		interval = 75 * time.Millisecond
	}
	return &LevelPoller{interval: interval, emit: emit}
}

// Start polls source until Stop. A running poller is restarted with the new source.
func (p *LevelPoller) Start(source func() audio.LevelSnapshot) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(source, p.stop, p.done)
}

// Stop halts polling and waits for the poll goroutine to exit
func (p *LevelPoller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the poll goroutine is active
func (p *LevelPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *LevelPoller) run(source func() audio.LevelSnapshot, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.emit(source())
		}
	}
}
