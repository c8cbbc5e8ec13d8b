package uniqueid

// IDSet answers whether a unique ID is already taken
type IDSet interface {
	Contains(id string) bool
}

// Set is the mutable set of unique IDs in use during one pass
type Set map[string]struct{}

// NewSet creates a set seeded with ids. Empty ids are ignored.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

func (s Set) Remove(id string) {
	delete(s, id)
}

func (s Set) Len() int {
	return len(s)
}
