package cache

// Line is a cache-line number: a code address divided by the line size.
type Line uint32

// LineOf maps a byte address to its cache line.
func LineOf(addr uint32, lineSize uint32) Line {
	if lineSize == 0 {
		lineSize = 1
	}
	return Line(addr / lineSize)
}

// Classification is the per-access outcome the cache DFA assigns.
type Classification int

const (
	AlwaysHit Classification = iota
	NC                       // May-hit: present on some but not all predecessor paths
	AlwaysMiss
)

func (c Classification) String() string {
	switch c {
	case AlwaysHit:
		return "ALWAYS-HIT"
	case NC:
		return "NC"
	default:
		return "ALWAYS-MISS"
	}
}

// AgeState maps a resident line to its LRU age (0 = most recently used).
// Ages are allowed to grow past associativity-1 (a line "falls off the
// edge" of the set without being deleted from the map); only ages strictly
// below associativity count as actually resident, matching §4.5's "ages
// survive beyond associativity but only positions < associativity count".
type AgeState map[Line]int

// LRUState is the (Must, May) pair abstract domain for LRU and
// direct-mapped (associativity 1) caches.
type LRUState struct {
	Must AgeState
	May  AgeState
}

// NewLRUState returns the empty abstract state (nothing resident).
func NewLRUState() LRUState {
	return LRUState{Must: AgeState{}, May: AgeState{}}
}

// Update ages every resident line by one and inserts line at age 0,
// in both the Must and May components.
func (s LRUState) Update(line Line, associativity uint32) LRUState {
	return LRUState{
		Must: updateAge(s.Must, line, associativity),
		May:  updateAge(s.May, line, associativity),
	}
}

func updateAge(a AgeState, line Line, associativity uint32) AgeState {
	out := make(AgeState, len(a)+1)
	cap := int(associativity)
	for l, age := range a {
		if l == line {
			continue
		}
		if age+1 < cap || cap == 0 {
			out[l] = age + 1
		} else {
			out[l] = age + 1 // retained past cap, just no longer resident
		}
	}
	out[line] = 0
	return out
}

// Join combines two predecessor states at a control-flow merge: Must is the
// intersection (age = max of matching ages, the pessimistic choice), May is
// the union (age = min of matching ages, the optimistic choice).
func Join(a, b LRUState) LRUState {
	return LRUState{
		Must: intersectMax(a.Must, b.Must),
		May:  unionMin(a.May, b.May),
	}
}

func intersectMax(a, b AgeState) AgeState {
	out := make(AgeState)
	for l, ag := range a {
		if bg, ok := b[l]; ok {
			if bg > ag {
				ag = bg
			}
			out[l] = ag
		}
	}
	return out
}

func unionMin(a, b AgeState) AgeState {
	out := make(AgeState, len(a))
	for l, ag := range a {
		out[l] = ag
	}
	for l, bg := range b {
		if cur, ok := out[l]; !ok || bg < cur {
			out[l] = bg
		}
	}
	return out
}

// Classify returns the access classification of line against s: a Must-hit
// (age < associativity in Must) is ALWAYS-HIT; a May-only hit is NC;
// otherwise ALWAYS-MISS.
func (s LRUState) Classify(line Line, associativity uint32) Classification {
	cap := int(associativity)
	if age, ok := s.Must[line]; ok && age < cap {
		return AlwaysHit
	}
	if age, ok := s.May[line]; ok && age < cap {
		return NC
	}
	return AlwaysMiss
}

// MustSubsetOfMay reports whether every Must-resident line of s is also resident in
// s's own May set at an age no older (the §8 "Must ⊆ May" invariant).
func (s LRUState) MustSubsetOfMay(associativity uint32) bool {
	cap := int(associativity)
	for l, age := range s.Must {
		if age >= cap {
			continue
		}
		mayAge, ok := s.May[l]
		if !ok || mayAge > age {
			return false
		}
	}
	return true
}
