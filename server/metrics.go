package server

import "sync/atomic"

// RelayMetrics tracks relay counters for the /metrics endpoint. All fields
// are updated with atomics so the hot paths never take a lock.
type RelayMetrics struct {
	Connects     int64
	Disconnects  int64
	MsgsRouted   int64
	ParseErrors  int64
	Unknown      int64
	Spoofed      int64
	Broadcasts   int64
	DroppedSends int64
	Evictions    int64
}

func (m *RelayMetrics) IncConnects()     { atomic.AddInt64(&m.Connects, 1) }
func (m *RelayMetrics) IncDisconnects()  { atomic.AddInt64(&m.Disconnects, 1) }
func (m *RelayMetrics) IncMsgsRouted()   { atomic.AddInt64(&m.MsgsRouted, 1) }
func (m *RelayMetrics) IncParseErrors()  { atomic.AddInt64(&m.ParseErrors, 1) }
func (m *RelayMetrics) IncUnknown()      { atomic.AddInt64(&m.Unknown, 1) }
func (m *RelayMetrics) IncSpoofed()      { atomic.AddInt64(&m.Spoofed, 1) }
func (m *RelayMetrics) IncBroadcasts()   { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *RelayMetrics) IncDroppedSends() { atomic.AddInt64(&m.DroppedSends, 1) }
func (m *RelayMetrics) AddEvictions(n int) {
	atomic.AddInt64(&m.Evictions, int64(n))
}

// Snapshot returns a read-only copy for HTTP output.
func (m *RelayMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"connects":      atomic.LoadInt64(&m.Connects),
		"disconnects":   atomic.LoadInt64(&m.Disconnects),
		"msgs_routed":   atomic.LoadInt64(&m.MsgsRouted),
		"parse_errors":  atomic.LoadInt64(&m.ParseErrors),
		"unknown_types": atomic.LoadInt64(&m.Unknown),
		"spoofed":       atomic.LoadInt64(&m.Spoofed),
		"broadcasts":    atomic.LoadInt64(&m.Broadcasts),
		"dropped_sends": atomic.LoadInt64(&m.DroppedSends),
		"evictions":     atomic.LoadInt64(&m.Evictions),
	}
}
