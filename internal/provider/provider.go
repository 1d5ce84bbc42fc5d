// Package provider abstracts the external chat platforms behind a
// uniform capability. New platforms are added by registering another
// ChatProvider, not by branching on platform names.
package provider

import (
	"context"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// Reply is a provider's answer to a chat turn, with the token usage it
// reported.
type Reply struct {
	Content  string
	Tokens   int64
	Metadata map[string]any
}

// ChatProvider sends a conversation history plus the newest message to
// one platform. The API secret is passed per call, never stored on the
// provider.
type ChatProvider interface {
	Platform() models.Platform
	Models() []string
	Send(ctx context.Context, secret, model string, history []*models.Message) (*Reply, error)
}

// Config tunes one provider client.
type Config struct {
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

const defaultTimeout = 2 * time.Minute

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// Registry holds one provider per platform.
type Registry struct {
	providers map[models.Platform]ChatProvider
}

func NewRegistry(providers ...ChatProvider) *Registry {
	r := &Registry{providers: make(map[models.Platform]ChatProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Platform()] = p
	}
	return r
}

func (r *Registry) Get(platform models.Platform) (ChatProvider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, models.Validationf("no provider registered for platform %q", platform)
	}
	return p, nil
}

// Models lists the known model catalog per registered platform.
func (r *Registry) Models() map[models.Platform][]string {
	catalog := make(map[models.Platform][]string, len(r.providers))
	for platform, p := range r.providers {
		catalog[platform] = p.Models()
	}
	return catalog
}
