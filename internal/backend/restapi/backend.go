package restapi

import (
	"context"
	"fmt"

	"taskdeck/internal/config"
	"taskdeck/internal/service"
	"taskdeck/internal/tokenstore"
)

// Backend implements service.Backend over a shared Client.
type Backend struct {
	client *Client
	auth   *AuthService
	tasks  *TaskService
}

// New creates a backend from configuration. The token is persisted in the
// config directory.
func New(_ context.Context, cfg *config.Config) (*Backend, error) {
	store := tokenstore.NewFileStore(cfg.TokenPath())
	return NewWithStore(cfg.BaseURL, store,
		WithTimeout(cfg.Timeout),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		WithLogger(cfg.Log()),
	)
}

// NewWithStore creates a backend with an explicit token store (for testing
// and embedding).
func NewWithStore(baseURL string, store tokenstore.Store, opts ...Option) (*Backend, error) {
	client, err := NewClient(baseURL, store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return &Backend{
		client: client,
		auth:   NewAuthService(client),
		tasks:  NewTaskService(client),
	}, nil
}

// Auth implements service.Backend.
func (b *Backend) Auth() service.AuthService { return b.auth }

// Tasks implements service.Backend.
func (b *Backend) Tasks() service.TaskService { return b.tasks }

// OnUnauthorized implements service.UnauthorizedNotifier.
func (b *Backend) OnUnauthorized(fn func()) { b.client.OnUnauthorized(fn) }

// Client returns the shared HTTP client.
func (b *Backend) Client() *Client { return b.client }
