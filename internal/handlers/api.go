package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"shutdown-tracker/internal/cache"
	"shutdown-tracker/internal/database"
	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
)

type Handlers struct {
	DB    *database.DB
	Cache *cache.Cache
	Reg   *registry.Registry
}

// GetLocations returns all configured locations with their fetch strategy
// and group count, so a client knows what keys it can subscribe to.
func (h *Handlers) GetLocations(c *fiber.Ctx) error {
	locs := h.Reg.All()
	out := make([]fiber.Map, 0, len(locs))
	for _, loc := range locs {
		out = append(out, fiber.Map{
			"id":              loc.ID,
			"name":            loc.Name,
			"strategy":        loc.Strategy,
			"groups":          loc.Groups,
			"address_lookup":  loc.AddressLookup,
			"granularity_min": loc.Granularity(),
		})
	}
	return c.JSON(fiber.Map{"locations": out})
}

// GetSchedule returns the stored snapshot for a location/group key.
// Date defaults to today (Europe/Kyiv).
func (h *Handlers) GetSchedule(c *fiber.Ctx) error {
	location := c.Params("location")
	groupKey := c.Query("group")
	if location == "" || groupKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "location and group are required"})
	}
	if _, ok := h.Reg.Get(location); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown location"})
	}

	date := c.Query("date")
	if date == "" {
		date = todayKyiv()
	}

	ctx := context.Background()
	snap, err := h.DB.GetSnapshot(ctx, location, groupKey, date)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load schedule"})
	}
	if snap == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no schedule stored"})
	}
	return c.JSON(snap)
}

// GetImage returns the latest schedule image reference for image-strategy
// locations.
func (h *Handlers) GetImage(c *fiber.Ctx) error {
	location := c.Params("location")
	if _, ok := h.Reg.Get(location); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown location"})
	}

	ctx := context.Background()
	url, err := h.DB.GetImageRef(ctx, location)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load image reference"})
	}
	if url == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no image stored"})
	}
	return c.JSON(fiber.Map{"location": location, "image_url": url})
}

// GetLastUpdate returns when the snapshot for a key was last captured.
// Date defaults to today (Europe/Kyiv).
func (h *Handlers) GetLastUpdate(c *fiber.Ctx) error {
	location := c.Params("location")
	groupKey := c.Query("group")
	if groupKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group is required"})
	}
	if _, ok := h.Reg.Get(location); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown location"})
	}

	date := c.Query("date")
	if date == "" {
		date = todayKyiv()
	}

	ctx := context.Background()
	at, err := h.DB.GetLastUpdate(ctx, location, groupKey, date)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load last update"})
	}
	if at == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no snapshot stored"})
	}
	return c.JSON(fiber.Map{"location": location, "group_key": groupKey, "date": date, "captured_at": at.UTC()})
}

// GetSubscribers returns the active subscribers bound to a location, or to
// one of its group keys when ?group= is given.
func (h *Handlers) GetSubscribers(c *fiber.Ctx) error {
	location := c.Params("location")
	if _, ok := h.Reg.Get(location); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown location"})
	}

	ctx := context.Background()
	var (
		subs []*models.Subscriber
		err  error
	)
	if groupKey := c.Query("group"); groupKey != "" {
		subs, err = h.DB.GetSubscribersByKey(ctx, location, groupKey)
	} else {
		subs, err = h.DB.GetSubscribersByLocation(ctx, location)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load subscribers"})
	}
	out := make([]fiber.Map, 0, len(subs))
	for _, s := range subs {
		out = append(out, fiber.Map{
			"id":        s.ID,
			"username":  s.Username,
			"group_key": s.GroupKey,
		})
	}
	return c.JSON(fiber.Map{"location": location, "count": len(out), "subscribers": out})
}

// GetStatus reports the last fetch outcome per location, including host
// reachability probed at failure time.
func (h *Handlers) GetStatus(c *fiber.Ctx) error {
	ctx := context.Background()
	states, err := h.Cache.AllFetchStates(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load fetch states"})
	}

	out := make([]fiber.Map, 0, len(h.Reg.All()))
	for _, loc := range h.Reg.All() {
		entry := fiber.Map{"id": loc.ID, "name": loc.Name, "outcome": "unknown"}
		if st, ok := states[loc.ID]; ok {
			entry["outcome"] = st.Outcome
			entry["checked_at"] = st.CheckedAt
			if st.Reason != "" {
				entry["reason"] = st.Reason
			}
			if st.Error != "" {
				entry["error"] = st.Error
			}
			if st.HostReachable != nil {
				entry["host_reachable"] = *st.HostReachable
			}
		}
		out = append(out, entry)
	}
	return c.JSON(fiber.Map{"locations": out})
}

func todayKyiv() string {
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		return time.Now().Format("2006-01-02")
	}
	return time.Now().In(kyiv).Format("2006-01-02")
}
