package service

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

// GetSiteSettings returns the saved settings, or the defaults when nothing
// was saved yet.
func (s *Service) GetSiteSettings(ctx context.Context) (domain.SiteSettings, error) {
	settings, err := s.repo.GetSiteSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultSiteSettings(), nil
	}
	if err != nil {
		return domain.SiteSettings{}, err
	}
	return *settings, nil
}

// UpdateSiteSettings merges a partial JSON document into the current
// settings. Keys that are absent keep their value.
func (s *Service) UpdateSiteSettings(ctx context.Context, patch json.RawMessage) (domain.SiteSettings, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.SiteSettings{}, err
	}
	settings, err := s.GetSiteSettings(ctx)
	if err != nil {
		return domain.SiteSettings{}, err
	}

	if err := json.Unmarshal(patch, &settings); err != nil {
		return domain.SiteSettings{}, errors.Wrap(store.ErrInvalidInput, "settings must be a JSON object")
	}
	if settings.HeroFeatures == nil {
		settings.HeroFeatures = []domain.HeroFeature{}
	}
	settings.UpdatedAt = s.now()
	settings.UpdatedBy = actor.Email

	saved, err := s.repo.SaveSiteSettings(ctx, settings)
	if err != nil {
		return domain.SiteSettings{}, err
	}

	s.logAudit(ctx, "update_site_settings", "site_settings", "main", "")
	return *saved, nil
}
