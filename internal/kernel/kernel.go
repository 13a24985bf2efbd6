package kernel

import (
	"sync"

	"github.com/rs/zerolog"

	"TrancheVault/internal/accounting"
	"TrancheVault/internal/apperrors"
	"TrancheVault/internal/venue"
)

// Kernel routes operations and ingested events to their markets. Markets
// are registered at startup; the set never changes at runtime, so reads
// only take the registry lock briefly.
type Kernel struct {
	mu      sync.RWMutex
	markets map[string]*Market
	byVenue map[string]*Market
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Kernel {
	return &Kernel{
		markets: make(map[string]*Market),
		byVenue: make(map[string]*Market),
		log:     log,
	}
}

// AddMarket registers a market and indexes its venues for mark routing.
func (k *Kernel) AddMarket(m *Market) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := m.ID()
	if _, exists := k.markets[id]; exists {
		return apperrors.Newf(apperrors.ErrConfigInvalid, "market %s already registered", id)
	}
	st, jt := m.VenueIDs()
	for _, vid := range []string{st, jt} {
		if other, taken := k.byVenue[vid]; taken {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "venue %s already attached to market %s", vid, other.ID())
		}
	}

	k.markets[id] = m
	k.byVenue[st] = m
	k.byVenue[jt] = m
	k.log.Info().Str("market_id", id).Str("senior_venue", st).Str("junior_venue", jt).Msg("market registered")
	return nil
}

// Market looks up a registered market.
func (k *Kernel) Market(id string) (*Market, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	m, ok := k.markets[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "market %s not found", id)
	}
	return m, nil
}

// Markets returns every registered market.
func (k *Kernel) Markets() []*Market {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*Market, 0, len(k.markets))
	for _, m := range k.markets {
		out = append(out, m)
	}
	return out
}

// ApplyMark routes a NAV mark to the market owning the marked venue.
func (k *Kernel) ApplyMark(mark venue.Mark) (bool, error) {
	k.mu.RLock()
	m, ok := k.byVenue[mark.VenueID]
	k.mu.RUnlock()
	if !ok {
		return false, apperrors.Newf(apperrors.ErrNotFound, "no market attached to venue %s", mark.VenueID)
	}
	return m.ApplyMark(mark)
}

// SyncMarket runs the standalone sync entry point for one market.
func (k *Kernel) SyncMarket(id string) (accounting.SyncedState, error) {
	m, err := k.Market(id)
	if err != nil {
		return accounting.SyncedState{}, err
	}
	return m.SyncNow(), nil
}

// SyncAll runs the standalone sync on every market, for periodic
// mark-to-market.
func (k *Kernel) SyncAll() {
	for _, m := range k.Markets() {
		m.SyncNow()
	}
}

// UpdateConfig applies a configuration update to its market.
func (k *Kernel) UpdateConfig(cfg accounting.MarketConfig) error {
	m, err := k.Market(cfg.MarketID)
	if err != nil {
		return err
	}
	return m.SetConfig(cfg)
}
