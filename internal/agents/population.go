package agents

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// maxReplaceDepth bounds how far Restore follows a replacement chain.
const maxReplaceDepth = 64

// selectTries is how many rejection-sampling rounds Select makes before
// falling back to a linear scan.
const selectTries = 64

// GroupSpec names a subpopulation and its initial size.
type GroupSpec struct {
	Name string
	Size int
}

type subgroup struct {
	size int
}

// Population owns the individuals of one replicate. Membership, size and
// group-size queries are O(1); Select is O(1) expected.
type Population struct {
	env     *Env
	spawner *Spawner

	members map[ID]*Individual
	order   []ID // live members, for uniform picks
	pos     map[ID]int
	groups  map[string]*subgroup

	parked   map[ID]*Individual // replaced originals awaiting restore
	occupant map[ID]ID          // replaced ID -> who took its place
	retired  map[ID]*Individual // removed, never to come back

	maxWeight float64
}

// NewPopulation creates a population with the given groups, spawning their
// members in order.
func NewPopulation(env *Env, groups ...GroupSpec) (*Population, error) {
	p := &Population{
		env:      env,
		members:  make(map[ID]*Individual),
		pos:      make(map[ID]int),
		groups:   make(map[string]*subgroup),
		parked:   make(map[ID]*Individual),
		occupant: make(map[ID]ID),
		retired:  make(map[ID]*Individual),
	}
	p.spawner = NewSpawner(env, p.known)

	for _, g := range groups {
		if g.Size < 0 {
			return nil, fmt.Errorf("group %q: negative size %d", g.Name, g.Size)
		}
		if _, ok := p.groups[g.Name]; ok {
			return nil, fmt.Errorf("group %q listed twice", g.Name)
		}
		p.groups[g.Name] = &subgroup{}
		if _, err := p.Spawn(g.Name, g.Size); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Env returns the environment shared by the population's individuals.
func (p *Population) Env() *Env {
	return p.env
}

func (p *Population) known(id ID) bool {
	if _, ok := p.members[id]; ok {
		return true
	}
	if _, ok := p.parked[id]; ok {
		return true
	}
	_, ok := p.retired[id]
	return ok
}

// Spawn adds n fresh members to an existing group.
func (p *Population) Spawn(group string, n int) ([]*Individual, error) {
	if _, ok := p.groups[group]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	inds := p.spawner.Spawn(group, n)
	if err := p.Add(inds...); err != nil {
		return nil, err
	}
	return inds, nil
}

// Add inserts individuals into existing groups. Any ID already used in this
// replicate, live, parked or removed, is an error, as is an unknown group;
// either way nothing is added.
func (p *Population) Add(inds ...*Individual) error {
	seen := make(map[ID]bool, len(inds))
	for _, ind := range inds {
		if p.known(ind.ID) || seen[ind.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ind.ID)
		}
		if _, ok := p.groups[ind.Group]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownGroup, ind.Group)
		}
		seen[ind.ID] = true
	}
	for _, ind := range inds {
		if ind.env == nil {
			ind.env = p.env
		}
		p.insert(ind)
	}
	return nil
}

func (p *Population) insert(ind *Individual) {
	p.members[ind.ID] = ind
	p.pos[ind.ID] = len(p.order)
	p.order = append(p.order, ind.ID)
	p.groups[ind.Group].size++
	p.maxWeight = max(p.maxWeight, ind.Susceptibility)
}

func (p *Population) detach(id ID) *Individual {
	ind, ok := p.members[id]
	if !ok {
		return nil
	}
	i := p.pos[id]
	last := len(p.order) - 1
	p.order[i] = p.order[last]
	p.pos[p.order[i]] = i
	p.order = p.order[:last]
	delete(p.pos, id)
	delete(p.members, id)
	p.groups[ind.Group].size--
	return ind
}

// Remove deletes a live member for good.
func (p *Population) Remove(id ID) bool {
	ind := p.detach(id)
	if ind == nil {
		return false
	}
	p.retired[id] = ind
	return true
}

// Get returns a live member.
func (p *Population) Get(id ID) (*Individual, bool) {
	ind, ok := p.members[id]
	return ind, ok
}

// Lookup finds an individual whether live, parked or removed.
func (p *Population) Lookup(id ID) (*Individual, bool) {
	if ind, ok := p.members[id]; ok {
		return ind, true
	}
	if ind, ok := p.parked[id]; ok {
		return ind, true
	}
	ind, ok := p.retired[id]
	return ind, ok
}

// Contains reports whether id is a live member.
func (p *Population) Contains(id ID) bool {
	_, ok := p.members[id]
	return ok
}

// IsParked reports whether id was replaced and awaits a restore.
func (p *Population) IsParked(id ID) bool {
	_, ok := p.parked[id]
	return ok
}

// IsRemoved reports whether id was removed.
func (p *Population) IsRemoved(id ID) bool {
	_, ok := p.retired[id]
	return ok
}

// Size returns the number of live members.
func (p *Population) Size() int {
	return len(p.members)
}

// GroupSize returns the number of live members of group.
func (p *Population) GroupSize(group string) int {
	if g, ok := p.groups[group]; ok {
		return g.size
	}
	return 0
}

// Groups returns the group names in sorted order.
func (p *Population) Groups() []string {
	names := make([]string, 0, len(p.groups))
	for n := range p.groups {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IDs returns the live member IDs in sorted order.
func (p *Population) IDs() []ID {
	ids := slices.Clone(p.order)
	sort.Strings(ids)
	return ids
}

// Members returns live members sorted by ID.
func (p *Population) Members() []*Individual {
	ids := p.IDs()
	out := make([]*Individual, len(ids))
	for i, id := range ids {
		out[i] = p.members[id]
	}
	return out
}

// SetSusceptibility changes a member's selection weight.
func (p *Population) SetSusceptibility(id ID, w float64) error {
	ind, ok := p.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIndividual, id)
	}
	ind.Susceptibility = max(0, w)
	p.maxWeight = max(p.maxWeight, ind.Susceptibility)
	return nil
}

// Select picks a random live member other than excluding that is not
// quarantined, with probability proportional to its susceptibility. With
// equal susceptibilities the pick is uniform. ok is false when nobody is
// eligible.
func (p *Population) Select(excluding ID) (ID, bool) {
	if len(p.order) == 0 || p.maxWeight <= 0 {
		return "", false
	}
	rng := p.env.Model.Rand()
	for range selectTries {
		ind := p.members[p.order[rng.IntN(len(p.order))]]
		if !p.eligible(ind, excluding) {
			continue
		}
		if rng.Float64()*p.maxWeight < ind.Susceptibility {
			return ind.ID, true
		}
	}

	var total float64
	for _, id := range p.order {
		if ind := p.members[id]; p.eligible(ind, excluding) {
			total += ind.Susceptibility
		}
	}
	if total <= 0 {
		return "", false
	}
	u := rng.Float64() * total
	var last ID
	for _, id := range p.order {
		ind := p.members[id]
		if !p.eligible(ind, excluding) || ind.Susceptibility <= 0 {
			continue
		}
		last = id
		if u -= ind.Susceptibility; u < 0 {
			return id, true
		}
	}
	return last, true
}

func (p *Population) eligible(ind *Individual, excluding ID) bool {
	return ind.ID != excluding && !ind.IsQuarantined()
}

// Replace swaps a live member for a fresh individual of the same group. keep
// names the attributes carried over: "vaccination", "susceptibility" and
// "infection". The original is parked until Restore brings it back.
func (p *Population) Replace(id ID, keep []string) (ID, error) {
	orig, ok := p.members[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownIndividual, id)
	}
	if err := CheckKeep(keep); err != nil {
		return "", err
	}

	fresh := p.spawner.Spawn(orig.Group, 1)[0]
	for _, k := range keep {
		switch k {
		case "vaccination":
			if orig.Vaccination != nil {
				v := *orig.Vaccination
				fresh.Vaccination = &v
				fresh.Immunity = v.Immunity
				fresh.Infectivity = v.Infectivity
			}
		case "susceptibility":
			fresh.Susceptibility = orig.Susceptibility
		case "infection":
			fresh.Infected = orig.Infected
			fresh.Recovered = orig.Recovered
			fresh.SymptomOnset = orig.SymptomOnset
			fresh.Incubation = orig.Incubation
			fresh.Symptomatic = orig.Symptomatic
			fresh.R0 = orig.R0
			if orig.Recovered.Valid {
				fresh.Immunity = orig.Immunity
			}
		}
	}

	p.detach(id)
	p.parked[id] = orig
	p.occupant[id] = fresh.ID
	p.insert(fresh)
	return fresh.ID, nil
}

// CheckKeep reports whether every name in keep is an attribute Replace can
// carry over.
func CheckKeep(keep []string) error {
	for _, k := range keep {
		switch k {
		case "vaccination", "susceptibility", "infection":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAttribute, k)
		}
	}
	return nil
}

// Occupant follows the replacement chain from orig and returns the live
// member standing in for it.
func (p *Population) Occupant(orig ID) (ID, error) {
	if _, ok := p.parked[orig]; !ok {
		return "", fmt.Errorf("%w: %s was not replaced", ErrChainUnresolved, orig)
	}
	cur := orig
	for range maxReplaceDepth {
		next, ok := p.occupant[cur]
		if !ok {
			break
		}
		cur = next
		if _, live := p.members[cur]; live {
			return cur, nil
		}
	}
	return "", fmt.Errorf("%w: no live member stands in for %s", ErrChainUnresolved, orig)
}

// Restore brings a replaced individual back. The live member at the end of
// its replacement chain leaves the population, and stand-ins parked along
// the chain are dropped. It returns the ID of the member that left.
func (p *Population) Restore(orig ID) (ID, error) {
	live, err := p.Occupant(orig)
	if err != nil {
		return "", err
	}

	cur := orig
	for cur != live {
		next := p.occupant[cur]
		delete(p.occupant, cur)
		if cur != orig {
			p.retired[cur] = p.parked[cur]
			delete(p.parked, cur)
		}
		cur = next
	}

	p.retired[live] = p.detach(live)
	ind := p.parked[orig]
	delete(p.parked, orig)
	p.insert(ind)
	return live, nil
}

// Validate checks the population's bookkeeping.
func (p *Population) Validate() error {
	var errs []error
	if len(p.order) != len(p.members) || len(p.pos) != len(p.members) {
		errs = append(errs, fmt.Errorf("index holds %d ids for %d members", len(p.order), len(p.members)))
	}
	counts := make(map[string]int)
	for id, ind := range p.members {
		if ind.ID != id {
			errs = append(errs, fmt.Errorf("member filed as %s has id %s", id, ind.ID))
		}
		if i, ok := p.pos[id]; !ok || i >= len(p.order) || p.order[i] != id {
			errs = append(errs, fmt.Errorf("member %s missing from index", id))
		}
		if _, ok := p.groups[ind.Group]; !ok {
			errs = append(errs, fmt.Errorf("member %s in unknown group %q", id, ind.Group))
		}
		if _, ok := p.parked[id]; ok {
			errs = append(errs, fmt.Errorf("member %s is also parked", id))
		}
		if _, ok := p.retired[id]; ok {
			errs = append(errs, fmt.Errorf("member %s is also removed", id))
		}
		counts[ind.Group]++
	}
	total := 0
	for name, g := range p.groups {
		if g.size != counts[name] {
			errs = append(errs, fmt.Errorf("group %q counts %d, has %d", name, g.size, counts[name]))
		}
		total += g.size
	}
	if total != len(p.members) {
		errs = append(errs, fmt.Errorf("group sizes sum to %d, population is %d", total, len(p.members)))
	}
	return errors.Join(errs...)
}
