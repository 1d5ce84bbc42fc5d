package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
)

// UpsertAPIKey stores or replaces the credential for a platform. The
// secret is never logged.
func (l *Ledger) UpsertAPIKey(ctx context.Context, platform models.Platform, secret string) (*models.APIKey, error) {
	if !platform.Valid() {
		return nil, models.Validationf("unknown platform %q", platform)
	}
	if secret == "" {
		return nil, models.Validationf("api key secret is required")
	}
	k := &models.APIKey{Platform: platform, Secret: secret}
	if err := l.store.UpsertAPIKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// SeedAPIKeys upserts credentials gathered from the environment at
// startup. Platforms without a secret are skipped, so a deployment
// configured purely through env vars can chat without a POST first.
func (l *Ledger) SeedAPIKeys(ctx context.Context, secrets map[models.Platform]string) error {
	for platform, secret := range secrets {
		if secret == "" {
			continue
		}
		if _, err := l.UpsertAPIKey(ctx, platform, secret); err != nil {
			return err
		}
		l.logger.Info("Seeded API key from environment", zap.String("platform", string(platform)))
	}
	return nil
}

func (l *Ledger) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	return l.store.ListAPIKeys(ctx)
}

func (l *Ledger) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	return l.store.SetAPIKeyActive(ctx, id, active)
}

func (l *Ledger) DeleteAPIKey(ctx context.Context, id int64) error {
	return l.store.DeleteAPIKey(ctx, id)
}

// ActiveAPIKey returns the active credential for a platform, or
// NotFoundError when none is configured.
func (l *Ledger) ActiveAPIKey(ctx context.Context, platform models.Platform) (*models.APIKey, error) {
	return l.store.ActiveAPIKey(ctx, platform)
}
