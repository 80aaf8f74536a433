package alerts

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source produces alerts from an external signal. Next is asked once per
// generator tick; ok is false when nothing was observed.
type Source interface {
	Next(now time.Time) (a Alert, ok bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(now time.Time) (Alert, bool)

func (f SourceFunc) Next(now time.Time) (Alert, bool) { return f(now) }

var (
	// Locations are the rooms a simulated alert may come from.
	Locations = []string{"Room 301", "Room 205", "Room 102"}

	messages = map[Type]string{
		TypeUnauthorized:   "Unauthorized person detected",
		TypeProhibitedItem: "Person with prohibited item detected",
		TypeDistraction:    "Student distraction detected",
		TypeViolation:      "Class rule violation detected",
	}
)

// MessageFor is the fixed text of a simulated alert of type t.
func MessageFor(t Type) string { return messages[t] }

// RandomSource simulates a detector: each call fires with probability p and
// draws type, severity and location uniformly.
type RandomSource struct {
	mu sync.Mutex
	r  *rand.Rand
	p  float64
}

// NewRandomSource uses r for every draw. A nil r uses a randomly seeded PCG.
func NewRandomSource(p float64, r *rand.Rand) *RandomSource {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomSource{r: r, p: p}
}

func (s *RandomSource) Next(now time.Time) (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r.Float64() >= s.p {
		return Alert{}, false
	}
	t := Types[s.r.IntN(len(Types))]
	return Alert{
		Type:      t,
		Message:   messages[t],
		Timestamp: now,
		Severity:  Severities[s.r.IntN(len(Severities))],
		Location:  Locations[s.r.IntN(len(Locations))],
	}, true
}
