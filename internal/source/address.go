package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
)

// LookupCache caches upstream address-lookup responses so repeated street
// searches don't hammer the provider.
type LookupCache interface {
	GetLookup(ctx context.Context, key string) ([]byte, bool)
	SetLookup(ctx context.Context, key string, val []byte)
}

// KeysFunc lists the resolved address keys a refresh cycle should fetch for
// a location (in practice: the distinct keys of its subscribers).
type KeysFunc func(ctx context.Context, location string) ([]string, error)

type AddressOption func(*AddressLookupAdapter)

func WithLookupCache(c LookupCache) AddressOption {
	return func(a *AddressLookupAdapter) { a.cache = c }
}

func WithSubscriberKeys(f KeysFunc) AddressOption {
	return func(a *AddressLookupAdapter) { a.keys = f }
}

// AddressLookupAdapter resolves free-text addresses against a provider's
// lookup API in two phases (address → street/house identifiers →
// schedule). The pure lookup methods are also the surface an external
// conversation flow drives.
type AddressLookupAdapter struct {
	client *http.Client
	cache  LookupCache
	keys   KeysFunc
}

func NewAddressLookupAdapter(client *http.Client, opts ...AddressOption) *AddressLookupAdapter {
	a := &AddressLookupAdapter{client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Street is one street record from the lookup API.
type Street struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// House is one house record on a street.
type House struct {
	Name string `json:"name"`
}

// Fetch refreshes the schedule for every subscribed address key of the
// location. Individual key failures don't fail the others; the cycle fails
// only when every key does.
func (a *AddressLookupAdapter) Fetch(ctx context.Context, loc registry.LocationConfig) (*Extraction, error) {
	groups := make(map[string][]Slot)
	if a.keys == nil {
		return &Extraction{Groups: groups}, nil
	}

	keys, err := a.keys(ctx, loc.ID)
	if err != nil {
		return nil, failf(ReasonLookupUpstream, "list subscriber keys for %q: %w", loc.ID, err)
	}

	var lastErr error
	for _, key := range keys {
		streetID, house, ok := ParseKey(key)
		if !ok {
			continue
		}
		slots, err := a.ScheduleForIDs(ctx, loc, streetID, house)
		if err != nil {
			lastErr = err
			continue
		}
		groups[key] = slots
	}
	if len(groups) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return &Extraction{Groups: groups}, nil
}

// FindStreets resolves a free-text address fragment to street records.
// Zero matches is a hard AddressNotFound failure, never an empty success.
func (a *AddressLookupAdapter) FindStreets(ctx context.Context, loc registry.LocationConfig, query string) ([]Street, error) {
	u := fmt.Sprintf("%s/streets?q=%s", loc.LookupURL, url.QueryEscape(query))
	var streets []Street
	if err := a.getJSON(ctx, u, &streets); err != nil {
		return nil, err
	}
	if len(streets) == 0 {
		return nil, failf(ReasonAddressNotFound, "no street matches %q in %q", query, loc.ID)
	}
	return streets, nil
}

// FindHouses lists houses on a street matching the given number.
func (a *AddressLookupAdapter) FindHouses(ctx context.Context, loc registry.LocationConfig, streetID, query string) ([]House, error) {
	u := fmt.Sprintf("%s/houses?street=%s&q=%s", loc.LookupURL, url.QueryEscape(streetID), url.QueryEscape(query))
	var houses []House
	if err := a.getJSON(ctx, u, &houses); err != nil {
		return nil, err
	}
	if len(houses) == 0 {
		return nil, failf(ReasonAddressNotFound, "no house matches %q on street %s in %q", query, streetID, loc.ID)
	}
	return houses, nil
}

type scheduleResponse struct {
	HasOutages bool `json:"has_outages"`
	Intervals  []struct {
		Time   string `json:"time"`
		Status string `json:"status"`
	} `json:"intervals"`
}

// ScheduleForIDs fetches the schedule for already-resolved identifiers.
func (a *AddressLookupAdapter) ScheduleForIDs(ctx context.Context, loc registry.LocationConfig, streetID, house string) ([]Slot, error) {
	u := fmt.Sprintf("%s/schedule?street=%s&house=%s", loc.LookupURL, url.QueryEscape(streetID), url.QueryEscape(house))
	var resp scheduleResponse
	if err := a.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	var slots []Slot
	for _, iv := range resp.Intervals {
		status := models.StatusOff
		if !resp.HasOutages {
			status = models.StatusOn
		} else if iv.Status != "" {
			status = payloadStatus(iv.Status)
		}
		slots = append(slots, Slot{Label: iv.Time, Status: status})
	}
	return slots, nil
}

// ScheduleForAddress runs the full two-phase lookup for a free-text address
// like "вулиця Соборна 15". Returns the resolved key alongside the slots.
func (a *AddressLookupAdapter) ScheduleForAddress(ctx context.Context, loc registry.LocationConfig, address string) (string, []Slot, error) {
	street, house := splitAddress(address)

	streets, err := a.FindStreets(ctx, loc, street)
	if err != nil {
		return "", nil, err
	}

	houses, err := a.FindHouses(ctx, loc, streets[0].ID, house)
	if err != nil {
		return "", nil, err
	}

	key := KeyFor(streets[0].ID, houses[0].Name)
	slots, err := a.ScheduleForIDs(ctx, loc, streets[0].ID, houses[0].Name)
	if err != nil {
		return "", nil, err
	}
	return key, slots, nil
}

// KeyFor builds the stable group key for a resolved address.
func KeyFor(streetID, house string) string {
	return fmt.Sprintf("street=%s;house=%s", streetID, house)
}

// ParseKey is the inverse of KeyFor.
func ParseKey(key string) (streetID, house string, ok bool) {
	street, housePart, found := strings.Cut(key, ";")
	if !found {
		return "", "", false
	}
	streetID, okStreet := strings.CutPrefix(street, "street=")
	house, okHouse := strings.CutPrefix(housePart, "house=")
	if !okStreet || !okHouse || streetID == "" || house == "" {
		return "", "", false
	}
	return streetID, house, true
}

// splitAddress separates the trailing house number from the street part.
func splitAddress(address string) (street, house string) {
	fields := strings.Fields(strings.TrimSpace(address))
	if len(fields) < 2 {
		return strings.TrimSpace(address), ""
	}
	last := fields[len(fields)-1]
	if groupNumRe.MatchString(last) {
		return strings.Join(fields[:len(fields)-1], " "), last
	}
	return strings.Join(fields, " "), ""
}

// getJSON performs a cached GET against the lookup API.
func (a *AddressLookupAdapter) getJSON(ctx context.Context, u string, out any) error {
	if a.cache != nil {
		if body, ok := a.cache.GetLookup(ctx, u); ok {
			return json.Unmarshal(body, out)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return failf(ReasonLookupUpstream, "build request for %s: %w", u, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		fe := classify(fmt.Errorf("GET %s: %w", u, err))
		if fe.Reason == ReasonNetwork {
			fe.Reason = ReasonLookupUpstream
		}
		return fe
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failf(ReasonLookupUpstream, "GET %s: status %d", u, resp.StatusCode)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return failf(ReasonLookupUpstream, "decode %s: %w", u, err)
	}
	if a.cache != nil {
		a.cache.SetLookup(ctx, u, body)
	}
	return json.Unmarshal(body, out)
}
