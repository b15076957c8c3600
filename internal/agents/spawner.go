// Individual spawning: issues fresh individuals with unique IDs.
package agents

import (
	"strconv"
)

// Spawner creates individuals for a population. Each group has its own
// next-index counter, which only grows.
type Spawner struct {
	env   *Env
	next  map[string]int
	taken func(ID) bool
}

// NewSpawner creates a spawner. taken reports IDs that must be skipped.
func NewSpawner(env *Env, taken func(ID) bool) *Spawner {
	return &Spawner{
		env:   env,
		next:  make(map[string]int),
		taken: taken,
	}
}

// Spawn creates n individuals of group.
func (s *Spawner) Spawn(group string, n int) []*Individual {
	out := make([]*Individual, 0, n)
	for range n {
		out = append(out, s.spawnOne(group))
	}
	return out
}

func (s *Spawner) spawnOne(group string) *Individual {
	id := s.issue(group)
	for s.taken != nil && s.taken(id) {
		id = s.issue(group)
	}
	return &Individual{
		ID:             id,
		Group:          group,
		Susceptibility: s.env.Model.Susceptibility(group),
		env:            s.env,
	}
}

func (s *Spawner) issue(group string) ID {
	idx := s.next[group]
	s.next[group] = idx + 1
	return FormatID(group, idx)
}

// FormatID builds the ID of the idx-th member of group.
func FormatID(group string, idx int) ID {
	if group == "" {
		return strconv.Itoa(idx)
	}
	return group + "_" + strconv.Itoa(idx)
}
