package server

import "time"

// SweepInterval is the broadcast/heartbeat scheduler period.
const SweepInterval = time.Second

// Scheduler drives the periodic eviction sweep and full-state broadcast.
// Deltas are fire-and-forget; this loop is what guarantees eventual
// consistency for clients that missed them.
type Scheduler struct {
	hub      *Hub
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler for the hub with the given period.
func NewScheduler(hub *Hub, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = SweepInterval
	}
	return &Scheduler{
		hub:      hub,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run ticks until Stop is called.
func (s *Scheduler) Run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.hub.sweep(now)
		case <-s.stop:
			return
		}
	}
}

// Stop terminates the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}
