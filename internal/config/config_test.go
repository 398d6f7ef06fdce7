package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultRefreshIntervalSec, cfg.RefreshInterval)
	assert.Equal(t, DefaultNotifyIntervalSec, cfg.NotifyInterval)
	assert.Equal(t, DefaultLeadWindowMin, cfg.LeadWindowMin)
	assert.Equal(t, DefaultLeadToleranceMin, cfg.LeadToleranceMin)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REFRESH_INTERVAL", "600")
	t.Setenv("LEAD_WINDOW", "45")
	t.Setenv("NOTIFY_INTERVAL", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 600, cfg.RefreshInterval)
	assert.Equal(t, 45, cfg.LeadWindowMin)
	// Unparseable values fall back to the default.
	assert.Equal(t, DefaultNotifyIntervalSec, cfg.NotifyInterval)
}
