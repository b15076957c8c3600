// Package config is the user-facing configuration surface: what a run file
// or OUTBREAK_* environment variables may set, its defaults, and its
// translation into an engine setup.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

// ErrInvalid wraps every problem reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Tracing configures contact tracing. Reaction is a handling policy vector
// such as ["quarantine_7"] or ["remove", "0.5"].
type Tracing struct {
	Proportion float64  `mapstructure:"proportion" json:"proportion"`
	Succ       float64  `mapstructure:"succ" json:"succ"`
	Reaction   []string `mapstructure:"reaction" json:"reaction"`
	Cutoff     float64  `mapstructure:"cutoff" json:"cutoff"`
}

// Plugin configures one plugin instance.
type Plugin struct {
	Name      string         `mapstructure:"name" json:"name"`
	Args      map[string]any `mapstructure:"args" json:"args,omitempty"`
	Start     float64        `mapstructure:"start" json:"start,omitempty"`
	End       *float64       `mapstructure:"end" json:"end,omitempty"`
	Interval  float64        `mapstructure:"interval" json:"interval,omitempty"`
	At        []float64      `mapstructure:"at" json:"at,omitempty"`
	TriggerBy []string       `mapstructure:"trigger_by" json:"trigger_by,omitempty"`
	Order     string         `mapstructure:"order" json:"order,omitempty"` // before or after
}

// Config is everything a run is built from.
type Config struct {
	Model params.Config `mapstructure:",squash" json:"model"`

	// Popsize lists groups as "size" (default group) or "name=size".
	Popsize                  []string `mapstructure:"popsize" json:"popsize"`
	HandleSymptomatic        []string `mapstructure:"handle_symptomatic" json:"handle_symptomatic"`
	LeadTime                 string   `mapstructure:"leadtime" json:"leadtime,omitempty"`
	Infectors                []string `mapstructure:"infectors" json:"infectors,omitempty"`
	StopAt                   *float64 `mapstructure:"stop_at" json:"stop_at,omitempty"`
	AbortOnQuarantineSymptom bool     `mapstructure:"abort_on_quarantine_symptom" json:"abort_on_quarantine_symptom"`
	ContactTracing           *Tracing `mapstructure:"contact_tracing" json:"contact_tracing,omitempty"`
	Plugins                  []Plugin `mapstructure:"plugins" json:"plugins,omitempty"`

	Replicates int    `mapstructure:"replicates" json:"replicates"`
	Jobs       int    `mapstructure:"jobs" json:"jobs"`
	Seed       uint64 `mapstructure:"seed" json:"seed"`
	LogFile    string `mapstructure:"logfile" json:"logfile,omitempty"`
	DB         string `mapstructure:"db" json:"db,omitempty"`
}

// Default returns a single replicate of 64 individuals in the default group
// with the default model. Symptomatic cases are removed.
func Default() Config {
	return Config{
		Model:             params.DefaultConfig(),
		Popsize:           []string{"64"},
		HandleSymptomatic: []string{"remove"},
		Replicates:        1,
	}
}

// envKeys are the settings that may come from OUTBREAK_* variables.
var envKeys = []string{
	"popsize", "handle_symptomatic", "leadtime", "infectors", "stop_at",
	"abort_on_quarantine_symptom", "replicates", "jobs", "seed", "logfile", "db",
	"susceptibility", "interval", "transmissibility_model",
}

// Load reads the configuration from v on top of Default and validates it.
// Lists given as strings are split on commas.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("OUTBREAK")
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Groups parses Popsize.
func (c Config) Groups() ([]agents.GroupSpec, error) {
	var out []agents.GroupSpec
	for _, entry := range c.Popsize {
		for _, item := range strings.Split(entry, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			name, size, found := strings.Cut(item, "=")
			if !found {
				name, size = "", item
			}
			n, err := strconv.Atoi(strings.TrimSpace(size))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("popsize %q: size must be a non-negative integer", item)
			}
			out = append(out, agents.GroupSpec{Name: strings.TrimSpace(name), Size: n})
		}
	}
	if len(out) == 0 {
		return nil, errors.New("popsize: no groups")
	}
	return out, nil
}

// policyArgs flattens a policy vector, splitting entries on whitespace.
func policyArgs(v []string) []string {
	var out []string
	for _, s := range v {
		out = append(out, strings.Fields(s)...)
	}
	return out
}

// Setup translates the configuration into an engine setup for replicate 0.
// The seed is copied as is; resolving a zero seed is up to the caller.
func (c Config) Setup() (engine.Setup, error) {
	var errs []error

	groups, err := c.Groups()
	if err != nil {
		errs = append(errs, err)
	}
	handle, err := events.ParseHandlePolicy(policyArgs(c.HandleSymptomatic))
	if err != nil {
		errs = append(errs, fmt.Errorf("handle_symptomatic: %w", err))
	}
	lead, err := events.ParseLeadTime(c.LeadTime)
	if err != nil {
		errs = append(errs, fmt.Errorf("leadtime: %w", err))
	}

	opts := engine.Options{
		Handle:                   handle,
		LeadTime:                 lead,
		AbortOnQuarantineSymptom: c.AbortOnQuarantineSymptom,
	}
	if tr := c.ContactTracing; tr != nil {
		reaction, err := events.ParseHandlePolicy(policyArgs(tr.Reaction))
		if err != nil {
			errs = append(errs, fmt.Errorf("contact_tracing.reaction: %w", err))
		}
		opts.Tracing = &engine.Tracing{
			Proportion: tr.Proportion,
			Succ:       tr.Succ,
			Reaction:   reaction,
			Cutoff:     tr.Cutoff,
		}
	}

	plugins := make([]engine.PluginSpec, 0, len(c.Plugins))
	for i, p := range c.Plugins {
		spec, err := p.spec()
		if err != nil {
			errs = append(errs, fmt.Errorf("plugins[%d]: %w", i, err))
			continue
		}
		plugins = append(plugins, spec)
	}

	if len(errs) > 0 {
		return engine.Setup{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return engine.Setup{
		Seed:      c.Seed,
		Model:     c.Model,
		Groups:    groups,
		Infectors: c.Infectors,
		Options:   opts,
		StopAt:    c.StopAt,
		Plugins:   plugins,
	}, nil
}

func (p Plugin) spec() (engine.PluginSpec, error) {
	spec := engine.PluginSpec{
		Name:     p.Name,
		Args:     p.Args,
		Start:    p.Start,
		End:      p.End,
		Interval: p.Interval,
		At:       p.At,
	}
	switch strings.ToLower(p.Order) {
	case "", "before":
	case "after":
		spec.After = true
	default:
		return spec, fmt.Errorf("plugin %s: order must be before or after, got %q", p.Name, p.Order)
	}
	for _, name := range p.TriggerBy {
		k, err := events.ParseKind(name)
		if err != nil {
			return spec, fmt.Errorf("plugin %s: %w", p.Name, err)
		}
		spec.TriggerBy = append(spec.TriggerBy, k)
	}
	return spec, nil
}

// Validate checks the configuration, including everything the engine checks
// before a replicate starts.
func (c Config) Validate() error {
	var errs []error
	if c.Replicates < 1 {
		errs = append(errs, fmt.Errorf("replicates must be at least 1, got %d", c.Replicates))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must be non-negative, got %d", c.Jobs))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	setup, err := c.Setup()
	if err != nil {
		return err
	}
	if err := setup.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
