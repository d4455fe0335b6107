package cache

import (
	"errors"
	"fmt"
	"sort"
)

// ErrStateExplosion is returned when a brute-force concrete-state set grows
// past its configured cap (§7 StateExplosion).
var ErrStateExplosion = errors.New("cache: concrete state set exceeds configured cap")

// Queue is one concrete FIFO cache-set content, oldest line first.
type Queue []Line

func (q Queue) contains(line Line) bool {
	for _, l := range q {
		if l == line {
			return true
		}
	}
	return false
}

func (q Queue) signature() string {
	s := ""
	for _, l := range q {
		s += fmt.Sprintf("%d,", l)
	}
	return s
}

// StateSet is the brute-force concrete-state abstract domain used for FIFO
// cache replacement, for which no compact Must/May lattice is
// both sound and precise (§4.5).
type StateSet struct {
	Queues        []Queue
	Associativity uint32
	Cap           int // MaxConcreteStates; 0 means unlimited
}

// NewStateSet returns the singleton set containing one empty queue.
func NewStateSet(associativity uint32, cap int) StateSet {
	return StateSet{Queues: []Queue{{}}, Associativity: associativity, Cap: cap}
}

// Update appends line to every concrete queue (a no-op on a queue where line
// is already present, since FIFO order does not change on a re-access),
// evicting the oldest entry on overflow, then deduplicates the resulting
// queue set.
func (s StateSet) Update(line Line) (StateSet, error) {
	out := make([]Queue, 0, len(s.Queues))
	seen := make(map[string]bool, len(s.Queues))

	for _, q := range s.Queues {
		nq := q
		if !q.contains(line) {
			nq = append(append(Queue(nil), q...), line)
			if uint32(len(nq)) > s.Associativity {
				nq = nq[1:]
			}
		}
		sig := nq.signature()
		if !seen[sig] {
			seen[sig] = true
			out = append(out, nq)
		}
	}

	result := StateSet{Queues: out, Associativity: s.Associativity, Cap: s.Cap}
	if s.Cap > 0 && len(out) > s.Cap {
		return s, fmt.Errorf("%w: %d concrete states (cap %d)", ErrStateExplosion, len(out), s.Cap)
	}
	return result, nil
}

// JoinFIFO unions two predecessor concrete-state sets and deduplicates.
func JoinFIFO(a, b StateSet) (StateSet, error) {
	seen := make(map[string]Queue, len(a.Queues)+len(b.Queues))
	for _, q := range a.Queues {
		seen[q.signature()] = q
	}
	for _, q := range b.Queues {
		seen[q.signature()] = q
	}

	out := make([]Queue, 0, len(seen))
	for _, q := range seen {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].signature() < out[j].signature() })

	cap := a.Cap
	if b.Cap > 0 && (cap == 0 || b.Cap < cap) {
		cap = b.Cap
	}
	assoc := a.Associativity
	if assoc == 0 {
		assoc = b.Associativity
	}

	result := StateSet{Queues: out, Associativity: assoc, Cap: cap}
	if cap > 0 && len(out) > cap {
		return result, fmt.Errorf("%w: %d concrete states (cap %d)", ErrStateExplosion, len(out), cap)
	}
	return result, nil
}

// Classify returns ALWAYS-HIT when line is present in every concrete queue,
// NC when present in some but not all, and ALWAYS-MISS otherwise.
func (s StateSet) Classify(line Line) Classification {
	if len(s.Queues) == 0 {
		return AlwaysMiss
	}
	all, any := true, false
	for _, q := range s.Queues {
		if q.contains(line) {
			any = true
		} else {
			all = false
		}
	}
	switch {
	case all:
		return AlwaysHit
	case any:
		return NC
	default:
		return AlwaysMiss
	}
}
