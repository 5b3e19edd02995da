package mirror

import "sort"

// Entries is the read side of an archive: positional access to identity tags.
type Entries interface {
	Len() int
	Identity(pos int) (string, bool)
}

// Index maps message identities to their current archive positions.
type Index struct {
	pos map[string]int
}

// BuildIndex reads every record's identity once, in archive order. Untagged
// records are left out. If an identity repeats, the last position wins.
func BuildIndex(a Entries) *Index {
	idx := &Index{pos: make(map[string]int, a.Len())}
	for i := 0; i < a.Len(); i++ {
		if id, ok := a.Identity(i); ok {
			idx.pos[id] = i
		}
	}
	return idx
}

func (x *Index) Len() int { return len(x.pos) }

func (x *Index) Contains(id string) bool {
	_, ok := x.pos[id]
	return ok
}

func (x *Index) Position(id string) (int, bool) {
	p, ok := x.pos[id]
	return p, ok
}

// Add records an appended identity.
func (x *Index) Add(id string, pos int) { x.pos[id] = pos }

// RemoveAll forgets ids and closes the gaps their positions leave, the way
// the archive compacts a batch removal.
func (x *Index) RemoveAll(ids []string) {
	gone := make([]int, 0, len(ids))
	for _, id := range ids {
		if p, ok := x.pos[id]; ok {
			gone = append(gone, p)
			delete(x.pos, id)
		}
	}
	if len(gone) == 0 {
		return
	}
	sort.Ints(gone)
	for id, p := range x.pos {
		x.pos[id] = p - sort.SearchInts(gone, p)
	}
}

// Set returns the indexed identities.
func (x *Index) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(x.pos))
	for id := range x.pos {
		out[id] = struct{}{}
	}
	return out
}

// ByPosition orders ids by their current archive position; unknown ids sort last.
func (x *Index) ByPosition(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, oki := x.pos[out[i]]
		pj, okj := x.pos[out[j]]
		if oki != okj {
			return oki
		}
		return pi < pj
	})
	return out
}
