package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/models"
)

// ErrMissingToken is returned when a login response carries no token.
var ErrMissingToken = errors.New("login response missing token")

// Credentials are sent once with the login request and never stored.
type Credentials struct {
	Username string
	Password string
}

// String keeps the password out of logs and error messages.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: [redacted]}", c.Username)
}

// LoginResult is the backend's answer to a successful login.
type LoginResult struct {
	Token        string
	TokenType    string
	RefreshToken string
	RequiresMFA  bool
	UserID       int64
	Username     string
	Role         string
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	Token        string `json:"token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	RequiresMFA  bool   `json:"requires_mfa"`
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// Auth wraps the /auth endpoints.
type Auth struct {
	transport Transport
}

// NewAuth creates the auth API.
func NewAuth(transport Transport) *Auth {
	return &Auth{transport: transport}
}

// Login exchanges credentials for a bearer token. The credentials are
// form encoded, as the backend's OAuth2 password form expects.
func (a *Auth) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	req, err := a.transport.NewRequest(ctx, http.MethodPost, basePath+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.transport.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	var lr loginResponse
	if err := client.DecodeJSON(resp, &lr); err != nil {
		return nil, err
	}

	token := lr.AccessToken
	if token == "" {
		token = lr.Token
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	if lr.RequiresMFA {
		log.Warn().Str("username", creds.Username).Msg("backend requires MFA, token is limited to verification")
	}

	return &LoginResult{
		Token:        token,
		TokenType:    lr.TokenType,
		RefreshToken: lr.RefreshToken,
		RequiresMFA:  lr.RequiresMFA,
		UserID:       lr.UserID,
		Username:     lr.Username,
		Role:         lr.Role,
	}, nil
}

// CurrentUser fetches the profile of the session's user.
func (a *Auth) CurrentUser(ctx context.Context) (*models.Profile, error) {
	var profile models.Profile
	if err := a.transport.DoJSON(ctx, http.MethodGet, basePath+"/auth/me", nil, &profile); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &profile, nil
}

// ChangePassword replaces the current user's password.
func (a *Auth) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}{oldPassword, newPassword}

	if err := a.transport.DoJSON(ctx, http.MethodPost, basePath+"/auth/password/change", body, nil); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	return nil
}
