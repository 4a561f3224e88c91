package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/modules/market"
)

// VacationCache caches the durable vacation-mode flag with a TTL so the
// orchestrator does not hit the settings table on every dispatch.
//
// When the durable read fails the cache answers vacation=true. Skipping a
// cycle is harmless; running one against a broken store is not.
type VacationCache struct {
	settings *market.SettingsRepository
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu        sync.Mutex
	value     bool
	fetchedAt time.Time
}

// NewVacationCache creates a vacation cache with the given TTL
func NewVacationCache(settings *market.SettingsRepository, ttl time.Duration, log zerolog.Logger) *VacationCache {
	return &VacationCache{
		settings: settings,
		ttl:      ttl,
		now:      time.Now,
		log:      log.With().Str("component", "vacation_cache").Logger(),
	}
}

// IsVacation reports whether vacation mode is on, refreshing from the
// settings table when the cached value has expired
func (c *VacationCache) IsVacation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl {
		return c.value
	}

	value, err := c.settings.GetBool(market.SettingVacationMode, false)
	if err != nil {
		c.log.Warn().Err(err).Msg("Vacation flag read failed, assuming vacation")
		c.value = true
		c.fetchedAt = now
		return true
	}

	c.value = value
	c.fetchedAt = now
	return value
}

// Set writes the durable flag and updates the cache in one step
func (c *VacationCache) Set(value bool) error {
	if err := c.settings.SetBool(market.SettingVacationMode, value); err != nil {
		return err
	}

	c.mu.Lock()
	c.value = value
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.log.Info().Bool("vacation", value).Msg("Vacation mode updated")
	return nil
}

// Invalidate drops the cached value so the next read hits the settings table
func (c *VacationCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
