package tcf

import "sort"

// IDSet is a set of positive integer ids (purpose ids, vendor ids, special
// feature ids). The zero value is not usable; construct with NewIDSet.
//
// Ids outside the taxonomy are accepted without complaint. The model does
// not validate against the GVL; that happens at read time in the
// orchestrator, and at encode time for ids the wire format cannot carry.
type IDSet struct {
	ids map[int]struct{}
}

// NewIDSet creates a set containing the given ids. Non-positive ids are
// ignored.
func NewIDSet(ids ...int) *IDSet {
	s := &IDSet{ids: make(map[int]struct{}, len(ids))}
	s.AddAll(ids)
	return s
}

// Add inserts id into the set. Non-positive ids are ignored.
func (s *IDSet) Add(id int) {
	if id <= 0 {
		return
	}
	s.ids[id] = struct{}{}
}

// AddAll inserts every id in ids.
func (s *IDSet) AddAll(ids []int) {
	for _, id := range ids {
		s.Add(id)
	}
}

// Remove deletes id from the set.
func (s *IDSet) Remove(id int) {
	delete(s.ids, id)
}

// Contains reports whether id is in the set.
func (s *IDSet) Contains(id int) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Clear removes all ids.
func (s *IDSet) Clear() {
	s.ids = make(map[int]struct{})
}

// Len returns the number of ids in the set.
func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IsEmpty reports whether the set has no ids.
func (s *IDSet) IsEmpty() bool {
	return s.Len() == 0
}

// Max returns the largest id in the set, or 0 if empty.
func (s *IDSet) Max() int {
	max := 0
	if s == nil {
		return 0
	}
	for id := range s.ids {
		if id > max {
			max = id
		}
	}
	return max
}

// IDs returns the ids in ascending order.
func (s *IDSet) IDs() []int {
	if s == nil {
		return nil
	}
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy of the set.
func (s *IDSet) Clone() *IDSet {
	c := &IDSet{ids: make(map[int]struct{}, s.Len())}
	if s != nil {
		for id := range s.ids {
			c.ids[id] = struct{}{}
		}
	}
	return c
}

// Equal reports whether both sets contain exactly the same ids.
func (s *IDSet) Equal(o *IDSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	if s == nil {
		return true
	}
	for id := range s.ids {
		if !o.Contains(id) {
			return false
		}
	}
	return true
}

// BoolMap projects the set onto an id->true map covering 1..upTo, the shape
// the CMP API exposes to callers. Ids above upTo that are present in the set
// are included as well.
func (s *IDSet) BoolMap(upTo int) map[int]bool {
	out := make(map[int]bool, upTo)
	for i := 1; i <= upTo; i++ {
		out[i] = s.Contains(i)
	}
	if s != nil {
		for id := range s.ids {
			out[id] = true
		}
	}
	return out
}
