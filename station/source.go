package station

import (
	"math/rand"
	"sync"
	"time"
)

// Source supplies every simulated measurement the station produces. Injecting
// it keeps the state machines deterministic under test while the default
// seeded implementation behaves like live hardware.
type Source interface {
	// MeterStart returns the energy register value at transaction start, Wh.
	MeterStart() int
	// Increment returns the energy accrued during one charging tick, Wh.
	Increment() int
	// IdleMeter returns the register value reported while no transaction is active.
	IdleMeter() int
	// PowerSample returns instantaneous power bounded by the connector power limit, W.
	PowerSample(limitWatts int) int
	// ProgressStep returns the firmware download/install progress gained per tick, percent.
	ProgressStep() int
}

type randomSource struct {
	mux sync.Mutex
	rnd *rand.Rand
}

// NewSource returns a Source backed by math/rand. A zero seed picks the
// current time, any other value makes the sequence reproducible.
func NewSource(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randomSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *randomSource) MeterStart() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.rnd.Intn(10000)
}

func (s *randomSource) Increment() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.rnd.Intn(5) + 1
}

func (s *randomSource) IdleMeter() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.rnd.Intn(100)
}

func (s *randomSource) PowerSample(limitWatts int) int {
	if limitWatts <= 0 {
		return 0
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	// jitter between 80% and 100% of the limit
	return limitWatts - s.rnd.Intn(limitWatts/5+1)
}

func (s *randomSource) ProgressStep() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.rnd.Intn(11) + 5
}
