package restapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"taskdeck/internal/service"
	"taskdeck/internal/tokenstore"
)

// logoutTimeout bounds the best-effort server logout notification.
const logoutTimeout = 3 * time.Second

// tokenResponse is the body of /auth/login and /auth/register.
type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        service.User `json:"user"`
}

// AuthService implements service.AuthService.
type AuthService struct {
	client *Client
	tokens tokenstore.Store
	logger *slog.Logger
}

// NewAuthService creates an auth service on top of client.
func NewAuthService(client *Client) *AuthService {
	return &AuthService{
		client: client,
		tokens: client.tokens,
		logger: client.logger,
	}
}

// Login implements service.AuthService.
func (a *AuthService) Login(ctx context.Context, creds service.Credentials) (service.Session, error) {
	return a.authenticate(ctx, "/auth/login", creds, "Login failed")
}

// Signup implements service.AuthService.
func (a *AuthService) Signup(ctx context.Context, reg service.Registration) (service.Session, error) {
	return a.authenticate(ctx, "/auth/register", reg, "Signup failed")
}

func (a *AuthService) authenticate(ctx context.Context, path string, body any, fallback string) (service.Session, error) {
	var resp tokenResponse
	if err := a.client.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return service.Session{}, a.client.normalize(err, fallback)
	}

	// A session without a credential would break the user/token invariant.
	if resp.AccessToken == "" {
		a.logger.Debug("auth response carried no token", "path", path)
		return service.Session{}, &service.Error{Kind: service.KindAPI, Message: fallback}
	}

	if err := a.tokens.Set(resp.AccessToken); err != nil {
		return service.Session{}, &service.Error{
			Kind:    service.KindAPI,
			Message: "failed to save session token",
			Err:     err,
		}
	}
	a.client.SetAuthorization(resp.AccessToken)

	a.logger.Debug("authenticated", "user_id", resp.User.ID)
	return service.Session{User: resp.User, Token: resp.AccessToken}, nil
}

// Logout implements service.AuthService. The server is told on a
// best-effort basis; local state is always cleared.
func (a *AuthService) Logout(ctx context.Context) {
	if _, ok := a.tokens.Get(); ok {
		notifyCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		if err := a.client.do(notifyCtx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
			a.logger.Debug("server logout failed", "error", err)
		}
		cancel()
	}
	a.forget()
}

// forget drops the local session without any network I/O.
func (a *AuthService) forget() {
	if err := a.tokens.Remove(); err != nil {
		a.logger.Warn("failed to remove token", "error", err)
	}
	a.client.ClearAuthorization()
}

// CurrentUser implements service.AuthService.
func (a *AuthService) CurrentUser(ctx context.Context) (service.User, bool) {
	raw, ok := a.tokens.Get()
	if !ok {
		return service.User{}, false
	}
	a.client.SetAuthorization(raw)

	var u service.User
	if err := a.client.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		a.logger.Debug("session check failed", "error", a.client.normalize(err, "session check failed"))
		a.forget()
		return service.User{}, false
	}
	return u, true
}

// IsAuthenticated implements service.AuthService.
func (a *AuthService) IsAuthenticated() bool {
	_, ok := a.tokens.Get()
	return ok
}

// Token implements service.AuthService.
func (a *AuthService) Token() string {
	raw, _ := a.tokens.Get()
	return raw
}
