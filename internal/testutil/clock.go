package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

// StubClock returns a controlled time. After fires immediately and moves
// the clock forward, so retry backoff costs no wall time. Safe for
// concurrent use.
type StubClock struct {
	mu     sync.Mutex
	now    time.Time
	waited time.Duration
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waited += d
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Waited returns the total duration requested through After.
func (c *StubClock) Waited() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waited
}

// StubIDGenerator returns deterministic, distinct 128-bit hex values.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return hexValue(g.counter)
}

func hexValue(n int) string {
	sum := sha256.Sum256([]byte(strconv.Itoa(n)))
	return hex.EncodeToString(sum[:16])
}

// CollidingIDGenerator returns Value for the first Repeat calls, then
// distinct values. Calls counts every value handed out.
type CollidingIDGenerator struct {
	Value  string
	Repeat int

	mu    sync.Mutex
	calls int
	next  StubIDGenerator
}

func NewCollidingIDGenerator(value string, repeat int) *CollidingIDGenerator {
	return &CollidingIDGenerator{Value: value, Repeat: repeat}
}

func (g *CollidingIDGenerator) New() string {
	g.mu.Lock()
	g.calls++
	calls := g.calls
	g.mu.Unlock()
	if calls <= g.Repeat {
		return g.Value
	}
	return g.next.New()
}

// Calls returns the number of values handed out.
func (g *CollidingIDGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
