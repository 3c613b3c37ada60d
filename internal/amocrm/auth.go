package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"amoflow/internal/models"
	"amoflow/internal/repositories"
)

// срок жизни access-токена amoCRM, если сервер не прислал expires_in и в JWT нет exp
const fallbackTokenTTL = 24 * time.Hour

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// EnsureValidToken загружает токен из хранилища: нет токена — обмен кода авторизации,
// истёк — refresh (или снова код, если refresh-токена нет).
func (c *Client) EnsureValidToken(ctx context.Context) error {
	t, err := c.tokens.Get(ctx)
	switch {
	case errors.Is(err, repositories.ErrTokenNotFound):
		c.log.Info("[amocrm] токен не найден, обмениваем код авторизации")
		return c.Authorize(ctx, false)
	case err != nil:
		return fmt.Errorf("load token: %w", err)
	}

	if !t.Expired(c.now()) {
		c.token = t
		return nil
	}
	c.log.WithField("expired_at", t.Expiry().Format(time.RFC3339)).Info("[amocrm] токен истёк, обновляем")
	c.token = t
	return c.Authorize(ctx, t.RefreshToken != "")
}

// Authorize обменивает код авторизации (refresh=false) или refresh-токен на новый токен
// и сохраняет его в хранилище.
func (c *Client) Authorize(ctx context.Context, refresh bool) error {
	req := tokenRequest{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURI:  c.cfg.RedirectURL,
	}
	if refresh {
		if c.token == nil || c.token.RefreshToken == "" {
			return &AuthError{Message: "refresh token is missing"}
		}
		req.GrantType = "refresh_token"
		req.RefreshToken = c.token.RefreshToken
	} else {
		if c.cfg.AuthorizationCode == "" {
			return &AuthError{Message: "authorization code is not configured"}
		}
		req.GrantType = "authorization_code"
		req.Code = c.cfg.AuthorizationCode
	}

	resp, err := c.exchange(ctx, req)
	if err != nil {
		c.log.WithError(err).Errorf("[amocrm] авторизация (%s) не удалась", req.GrantType)
		return err
	}

	now := c.now()
	t := &models.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    tokenExpiry(resp, now).Unix(),
	}
	if err := c.tokens.Save(ctx, t); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	c.token = t
	c.log.WithField("grant_type", req.GrantType).Info("[amocrm] токен получен")
	return nil
}

func (c *Client) exchange(ctx context.Context, body tokenRequest) (*tokenResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &AuthError{Message: "rate limiter", Err: err}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &AuthError{Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/access_token", bytes.NewReader(data))
	if err != nil {
		return nil, &AuthError{Message: "build request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &AuthError{Message: "transport", Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s: %s", StatusMessage(resp.StatusCode), truncate(string(raw), 256)),
		}
	}

	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &AuthError{Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	if out.AccessToken == "" {
		return nil, &AuthError{Status: resp.StatusCode, Message: "response has no access_token"}
	}
	return &out, nil
}

// tokenExpiry: expires_in (секунды) от now; без него берём exp из JWT access-токена.
func tokenExpiry(resp *tokenResponse, now time.Time) time.Time {
	if resp.ExpiresIn > 0 {
		return now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(fallbackTokenTTL)
}
