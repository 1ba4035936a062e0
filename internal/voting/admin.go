package voting

import (
	"context"

	"go.uber.org/zap"
)

// VotingStatus reports the enabled flag and the effective period after an
// admin toggle.
type VotingStatus struct {
	VotingEnabled bool
	VotingPeriod  string
}

// SetVotingEnabled toggles voting. Disabling freezes the period that is
// active at that moment; re-disabling while already frozen keeps the original
// freeze point rather than re-stamping it. Enabling clears the freeze so the
// period falls back to the calendar month.
func (s *Service) SetVotingEnabled(ctx context.Context, enabled bool) (VotingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	if enabled {
		doc.VotingEnabled = true
		doc.FrozenPeriod = ""
	} else {
		if doc.VotingEnabled || doc.FrozenPeriod == "" {
			doc.FrozenPeriod = s.CurrentPeriod()
		}
		doc.VotingEnabled = false
	}

	if err := s.store.Save(doc); err != nil {
		return VotingStatus{}, err
	}

	status := VotingStatus{
		VotingEnabled: doc.VotingEnabled,
		VotingPeriod:  s.activePeriod(doc),
	}
	s.logger.Info("voting toggled",
		zap.Bool("enabled", status.VotingEnabled),
		zap.String("period", status.VotingPeriod))
	return status, nil
}

// SettingsUpdate is a partial settings change; nil fields are left untouched.
// DistributionAmountSet distinguishes clearing the amount from not sending it.
type SettingsUpdate struct {
	VotesPerUser          *int
	DistributionAmount    *float64
	DistributionAmountSet bool
	DistributionCurrency  *string
}

// UpdateSettings validates and applies a partial settings change, persisting
// once. Validation failures leave the document untouched.
func (s *Service) UpdateSettings(ctx context.Context, update SettingsUpdate) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()

	if update.VotesPerUser != nil {
		n := *update.VotesPerUser
		if n < MinVotesPerUser || n > MaxVotesPerUser {
			return Settings{}, errVotesPerUserOutOfRange()
		}
		doc.VotesPerUser = n
	}
	if update.DistributionAmountSet {
		if update.DistributionAmount != nil && *update.DistributionAmount < 0 {
			return Settings{}, errInvalidDistributionAmount()
		}
		doc.DistributionAmount = update.DistributionAmount
	}
	if update.DistributionCurrency != nil {
		doc.DistributionCurrency = *update.DistributionCurrency
	}

	if err := s.store.Save(doc); err != nil {
		return Settings{}, err
	}
	return doc.Settings, nil
}

// SetVotesPerUser changes the per-user quota; values outside 1..10 fail with
// an out-of-range error.
func (s *Service) SetVotesPerUser(ctx context.Context, n int) error {
	_, err := s.UpdateSettings(ctx, SettingsUpdate{VotesPerUser: &n})
	return err
}

// SetDistribution changes the advertised distribution. A nil amount clears
// it; a negative amount is rejected.
func (s *Service) SetDistribution(ctx context.Context, amount *float64, currency string) error {
	update := SettingsUpdate{
		DistributionAmount:    amount,
		DistributionAmountSet: true,
	}
	if currency != "" {
		update.DistributionCurrency = &currency
	}
	_, err := s.UpdateSettings(ctx, update)
	return err
}

// DisableProject adds a project to the disabled set. Existing votes for the
// project are left untouched; only new casts are rejected. Idempotent.
func (s *Service) DisableProject(ctx context.Context, slug string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	if !doc.projectDisabled(slug) {
		doc.DisabledProjects = append(doc.DisabledProjects, slug)
		if err := s.store.Save(doc); err != nil {
			return nil, err
		}
		s.logger.Info("project disabled", zap.String("project", slug))
	}
	return doc.DisabledProjects, nil
}

// EnableProject removes a project from the disabled set. Idempotent.
func (s *Service) EnableProject(ctx context.Context, slug string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	if doc.projectDisabled(slug) {
		kept := make([]string, 0, len(doc.DisabledProjects))
		for _, disabled := range doc.DisabledProjects {
			if disabled != slug {
				kept = append(kept, disabled)
			}
		}
		doc.DisabledProjects = kept
		if err := s.store.Save(doc); err != nil {
			return nil, err
		}
		s.logger.Info("project enabled", zap.String("project", slug))
	}
	return doc.DisabledProjects, nil
}
