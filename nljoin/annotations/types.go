// Package annotations provides a low-overhead event system for tracking
// join execution: phase timings, launch geometry, retries and faults.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Join lifecycle
	JoinBegin       = "join/begin"
	JoinOrientation = "join/orientation"
	JoinDegenerate  = "join/degenerate"
	JoinComplete    = "join/complete"

	// Growth/retry phases
	JoinEstimate    = "join/estimate"
	JoinAllocate    = "join/allocate"
	JoinMaterialize = "join/materialize"
	JoinRetry       = "join/retry"

	// Device
	LaunchPlanned = "launch/planned"

	// Errors
	ErrorDevice   = "error/device"
	ErrorJoinKind = "error/join.kind"
)

// Event represents a single annotation event during join execution.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during one join.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. A nil handler disables
// collection entirely.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 16),
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

// Recorder returns a Handler that appends every event to the returned slice
// pointer. Useful in tests.
func Recorder() (Handler, *[]Event) {
	var (
		mu     sync.Mutex
		events []Event
	)
	return func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, &events
}
