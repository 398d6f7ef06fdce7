package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Strategy selects which source adapter parses a location's upstream data.
type Strategy string

const (
	StrategyTable   Strategy = "table"
	StrategyScript  Strategy = "script"
	StrategyImage   Strategy = "image"
	StrategyAddress Strategy = "address"
)

// DefaultGranularityMin is the canonical interval length when a location
// doesn't override it.
const DefaultGranularityMin = 30

// LocationConfig describes one tracked provider location. Loaded once at
// startup and never mutated afterwards.
type LocationConfig struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ScheduleURL    string   `json:"schedule_url"`
	LookupURL      string   `json:"lookup_url,omitempty"`
	Strategy       Strategy `json:"strategy"`
	Groups         int      `json:"groups,omitempty"`
	AddressLookup  bool     `json:"address_lookup,omitempty"`
	GranularityMin int      `json:"granularity_min,omitempty"`
	Note           string   `json:"note,omitempty"`
}

// Granularity returns the interval length in minutes, falling back to the
// default when unset.
func (l LocationConfig) Granularity() int {
	if l.GranularityMin > 0 {
		return l.GranularityMin
	}
	return DefaultGranularityMin
}

// Registry is the immutable collection of tracked locations.
type Registry struct {
	locations []LocationConfig
	byID      map[string]LocationConfig
}

// Load reads location configs from a JSON file, or returns the built-in
// defaults when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return New(Defaults())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}
	var locs []LocationConfig
	if err := json.Unmarshal(data, &locs); err != nil {
		return nil, fmt.Errorf("parse locations file: %w", err)
	}
	return New(locs)
}

// New validates the configs and builds a Registry.
func New(locs []LocationConfig) (*Registry, error) {
	if len(locs) == 0 {
		return nil, fmt.Errorf("no locations configured")
	}
	byID := make(map[string]LocationConfig, len(locs))
	for _, l := range locs {
		if l.ID == "" {
			return nil, fmt.Errorf("location with empty id")
		}
		if _, dup := byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate location id %q", l.ID)
		}
		switch l.Strategy {
		case StrategyTable, StrategyScript:
			if l.Groups < 1 {
				return nil, fmt.Errorf("location %q: strategy %q requires a group count", l.ID, l.Strategy)
			}
		case StrategyImage:
		case StrategyAddress:
			if l.LookupURL == "" {
				return nil, fmt.Errorf("location %q: address strategy requires lookup_url", l.ID)
			}
		default:
			return nil, fmt.Errorf("location %q: unknown strategy %q", l.ID, l.Strategy)
		}
		if l.ScheduleURL == "" && l.Strategy != StrategyAddress {
			return nil, fmt.Errorf("location %q: schedule_url is required", l.ID)
		}
		byID[l.ID] = l
	}
	return &Registry{locations: append([]LocationConfig(nil), locs...), byID: byID}, nil
}

// All returns a copy of every configured location, in file order.
func (r *Registry) All() []LocationConfig {
	return append([]LocationConfig(nil), r.locations...)
}

// Get returns the location with the given id.
func (r *Registry) Get(id string) (LocationConfig, bool) {
	l, ok := r.byID[id]
	return l, ok
}

// Defaults is the built-in location set covering every parser strategy.
func Defaults() []LocationConfig {
	return []LocationConfig{
		{
			ID:          "chernivtsi",
			Name:        "Чернівці",
			ScheduleURL: "https://oblenergo.cv.ua/shutdowns/",
			Strategy:    StrategyTable,
			Groups:      18,
		},
		{
			ID:          "kyiv",
			Name:        "Київ",
			ScheduleURL: "https://www.dtek-kem.com.ua/ua/shutdowns",
			Strategy:    StrategyScript,
			Groups:      6,
		},
		{
			ID:          "khmelnytskyi",
			Name:        "Хмельницький",
			ScheduleURL: "https://www.oe.km.ua/spozhyvacham/grafiky-vidklyuchen/",
			Strategy:    StrategyImage,
			Note:        "графік публікується лише зображенням",
		},
		{
			ID:            "kamyanets",
			Name:          "Кам'янець-Подільський",
			ScheduleURL:   "https://www.oe.km.ua/spozhyvacham/grafiky-vidklyuchen/",
			LookupURL:     "https://www.oe.km.ua/api/shutdowns",
			Strategy:      StrategyAddress,
			AddressLookup: true,
		},
	}
}
