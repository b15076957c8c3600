package events

// Event is one scheduled occurrence. Events are values: once built they are
// not modified, only applied.
type Event struct {
	Time     float64 // simulation days
	Target   string  // individual ID; empty when the event has no target
	Priority bool    // runs before non-priority events at the same time
	Payload  Payload
}

// New returns an untargeted, non-priority event.
func New(time float64, p Payload) Event {
	return Event{Time: time, Payload: p}
}

// For returns a copy of e targeted at id.
func (e Event) For(id string) Event {
	e.Target = id
	return e
}

// Urgent returns a copy of e flagged as priority.
func (e Event) Urgent() Event {
	e.Priority = true
	return e
}

// Kind returns the tag of the event's payload.
func (e Event) Kind() Kind {
	return e.Payload.Kind()
}

// HasTarget reports whether the event names an individual.
func (e Event) HasTarget() bool {
	return e.Target != ""
}

// Payload is the sealed set of per-kind event data.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Start marks the beginning of a replicate.
type Start struct {
	Seed    uint64
	PopSize int
}

// Infection attempts to infect Target, or an individual picked by the
// population when the event has no target.
type Infection struct {
	By       string // infector ID, empty for unprompted infections
	LeadTime LeadTime
	Handle   HandlePolicy
}

// InfectionOutcome records an infection attempt that did not take place.
// Its kind is one of KindInfectionFailed, KindInfectionAvoided or
// KindInfectionIgnored.
type InfectionOutcome struct {
	Outcome Kind
	By      string
	Reason  string
}

// Recover ends the target's infection.
type Recover struct{}

// ShowSymptom marks symptom onset of the target.
type ShowSymptom struct{}

// Removal deletes the target from the population.
type Removal struct {
	Reason string
}

// Quarantine withdraws the target until Till.
type Quarantine struct {
	Till   float64
	Reason string
}

// Reintegration ends a quarantine, or with Restore set brings a replaced
// individual back in place of whoever currently stands in for it. A release
// scheduled by a quarantine carries that quarantine's end time in Release
// and only ends that quarantine.
type Reintegration struct {
	Restore   bool
	Release   float64
	Scheduled bool
}

// Stat carries population statistics computed by a plugin.
type Stat struct {
	Values []Param
}

// Abort ends the replicate early as a regular outcome.
type Abort struct {
	Reason string
}

// End marks the end of a replicate.
type End struct{}

// Notice is a log-only ERROR or WARNING.
type Notice struct {
	Level   Kind // KindError or KindWarning
	Message string
}

// PluginCall invokes a registered plugin at the event's time.
type PluginCall struct {
	Name   string
	After  bool // run after the core events of the same time
	Index  int  // position in the simulation's plugin list
	Repeat bool // reschedules itself every interval
}

// Vaccination sets the target's immunity and infectivity reductions, both in
// [0, 1].
type Vaccination struct {
	Immunity    float64
	Infectivity float64
}

// Replacement swaps the target for a freshly sampled individual. Keep names
// the attributes carried over; when Till is set the original is restored at
// that time.
type Replacement struct {
	Keep    []string
	Till    float64
	HasTill bool
	Reason  string
}

// ContactTracing traces the individuals infected by the target.
type ContactTracing struct {
	Succ     float64      // probability each contact is found
	Reaction HandlePolicy // what happens to a found contact
	Cutoff   float64      // only infections within this many days; 0 traces all
}

func (Start) Kind() Kind              { return KindStart }
func (Infection) Kind() Kind          { return KindInfection }
func (o InfectionOutcome) Kind() Kind { return o.Outcome }
func (Recover) Kind() Kind            { return KindRecover }
func (ShowSymptom) Kind() Kind        { return KindShowSymptom }
func (Removal) Kind() Kind            { return KindRemoval }
func (Quarantine) Kind() Kind         { return KindQuarantine }
func (Reintegration) Kind() Kind      { return KindReintegration }
func (Stat) Kind() Kind               { return KindStat }
func (Abort) Kind() Kind              { return KindAbort }
func (End) Kind() Kind                { return KindEnd }
func (n Notice) Kind() Kind           { return n.Level }
func (PluginCall) Kind() Kind         { return KindPlugin }
func (Vaccination) Kind() Kind        { return KindVaccination }
func (Replacement) Kind() Kind        { return KindReplacement }
func (ContactTracing) Kind() Kind     { return KindContactTracing }

func (Start) isPayload()            {}
func (Infection) isPayload()        {}
func (InfectionOutcome) isPayload() {}
func (Recover) isPayload()          {}
func (ShowSymptom) isPayload()      {}
func (Removal) isPayload()          {}
func (Quarantine) isPayload()       {}
func (Reintegration) isPayload()    {}
func (Stat) isPayload()             {}
func (Abort) isPayload()            {}
func (End) isPayload()              {}
func (Notice) isPayload()           {}
func (PluginCall) isPayload()       {}
func (Vaccination) isPayload()      {}
func (Replacement) isPayload()      {}
func (ContactTracing) isPayload()   {}
