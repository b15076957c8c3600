package engine

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/events"
)

// ErrUnknownPlugin is returned when a configured plugin is not registered.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Plugin injects events into a replicate. Apply may read the population and
// use its exported operations, but changes to the future timeline must be
// returned as events.
type Plugin interface {
	Name() string
	Apply(time float64, pop *agents.Population) ([]events.Event, error)
}

// Factory builds a plugin instance from its configured arguments. Each
// replicate gets its own instance.
type Factory func(args map[string]any) (Plugin, error)

// Registry maps plugin names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("plugin %q registered twice", name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named plugin with its decoded arguments.
func (r *Registry) Build(spec PluginSpec) (Plugin, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, spec.Name)
	}
	p, err := f(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", spec.Name, err)
	}
	return p, nil
}

// PluginSpec says which plugin to run and when. A plugin runs at every time
// in At, every Interval days from Start (until End, or while other events
// are pending when End is unset), and whenever an event of a TriggerBy kind
// is applied. With none of these it runs once at Start.
type PluginSpec struct {
	Name      string
	Args      map[string]any
	Start     float64
	End       *float64
	Interval  float64
	At        []float64
	TriggerBy []events.Kind
	After     bool // run after the other events of the same time
}

// Validate checks the schedule.
func (s PluginSpec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("plugin without a name"))
	}
	if s.Interval < 0 {
		errs = append(errs, fmt.Errorf("plugin %s: negative interval %v", s.Name, s.Interval))
	}
	if s.Start < 0 {
		errs = append(errs, fmt.Errorf("plugin %s: negative start %v", s.Name, s.Start))
	}
	if s.End != nil && *s.End < s.Start {
		errs = append(errs, fmt.Errorf("plugin %s: end %v before start %v", s.Name, *s.End, s.Start))
	}
	if slices.Contains(s.TriggerBy, events.KindPlugin) {
		errs = append(errs, fmt.Errorf("plugin %s: cannot be triggered by PLUGIN", s.Name))
	}
	return errors.Join(errs...)
}

func (s PluginSpec) triggeredBy(k events.Kind) bool {
	return slices.Contains(s.TriggerBy, k)
}

// DecodeArgs decodes plugin arguments into out. Strings are converted to
// numbers where needed and unknown keys are errors.
func DecodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
