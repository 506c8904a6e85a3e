package settings

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/cache"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// RepositoryPort defines data access methods for settings.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context) (Settings, error)
}

// Service reads and updates the settings record.
type Service struct {
	repo   RepositoryPort
	cache  *cache.JSON
	logger *slog.Logger
}

// NewService builds Service instance. A nil cache reads the database every time.
func NewService(repo RepositoryPort, c *cache.JSON, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

func (s *Service) cacheKey() string {
	return s.cache.Key("settings", "current")
}

// Current returns the unmasked settings, served from cache when possible.
func (s *Service) Current(ctx context.Context) (Settings, error) {
	var out Settings
	var loadErr error
	err := s.cache.FetchJSON(ctx, s.cacheKey(), &out, func(ctx context.Context) (any, error) {
		v, err := s.repo.Get(ctx)
		loadErr = err
		return v, err
	})
	if err == nil {
		return out, nil
	}
	if loadErr != nil {
		return Settings{}, loadErr
	}
	s.logger.Warn("settings cache unavailable, reading database", slog.Any("error", err))
	return s.repo.Get(ctx)
}

// Get returns the settings with the api key masked.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	v, err := s.Current(ctx)
	if err != nil {
		return Settings{}, err
	}
	return v.Masked(), nil
}

// Update applies patch when patch.Version matches the stored version.
func (s *Service) Update(ctx context.Context, actorID int64, patch Patch) (Settings, error) {
	if err := validateURLs(patch); err != nil {
		return Settings{}, err
	}
	var saved Settings
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.Lock(ctx)
		if err != nil {
			return err
		}
		if cur.Version != patch.Version {
			return fmt.Errorf("%w: settings changed since version %d", shared.ErrConflict, patch.Version)
		}
		next, changed := apply(cur, patch)
		if len(changed) == 0 {
			saved = cur
			return nil
		}
		saved, err = tx.Save(ctx, next, cur.Version)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, actorID, audit.ActionUpdateSettings, "Updated settings: "+strings.Join(changed, ", "))
	})
	if err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	s.evict(ctx)
	return saved.Masked(), nil
}

// RotateAPIKey replaces the api key and returns the new unmasked value once.
func (s *Service) RotateAPIKey(ctx context.Context, actorID int64) (Settings, error) {
	var saved Settings
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.Lock(ctx)
		if err != nil {
			return err
		}
		cur.APIKey = "dk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		saved, err = tx.Save(ctx, cur, cur.Version)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, actorID, audit.ActionUpdateSettings, "Updated settings: apiKey")
	})
	if err != nil {
		return Settings{}, fmt.Errorf("rotate api key: %w", err)
	}
	s.evict(ctx)
	return saved, nil
}

func (s *Service) evict(ctx context.Context) {
	if err := s.cache.Delete(ctx, s.cacheKey()); err != nil {
		s.logger.Warn("evict settings cache", slog.Any("error", err))
	}
}

func apply(cur Settings, p Patch) (Settings, []string) {
	var changed []string
	set := func(name string, dst *string, v *string) {
		if v == nil {
			return
		}
		val := strings.TrimSpace(*v)
		if val == *dst {
			return
		}
		*dst = val
		changed = append(changed, name)
	}
	set("orgName", &cur.OrgName, p.OrgName)
	set("brandColor", &cur.BrandColor, p.BrandColor)
	set("theme", &cur.Theme, p.Theme)
	set("logoUrl", &cur.LogoURL, p.LogoURL)
	set("webhookUrl", &cur.WebhookURL, p.WebhookURL)
	set("apiKey", &cur.APIKey, p.APIKey)
	return cur, changed
}

func validateURLs(p Patch) error {
	for name, v := range map[string]*string{"logoUrl": p.LogoURL, "webhookUrl": p.WebhookURL} {
		if v == nil || strings.TrimSpace(*v) == "" {
			continue
		}
		u, err := url.ParseRequestURI(strings.TrimSpace(*v))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s must be an http(s) url", shared.ErrValidation, name)
		}
	}
	return nil
}
