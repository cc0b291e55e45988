// Package graph implements C3 GraphClient: Microsoft Graph mail retrieval,
// OAuth2 public-client token refresh, and webhook subscription lifecycle.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/stoik/mailhouse/internal/apperr"
)

const (
	apiBase  = "https://graph.microsoft.com/v1.0"
	tokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	// MaxExpirationMinutes is Graph's hard cap on subscription lifetime.
	MaxExpirationMinutes = 4230
	// RenewBeforeHours is how far ahead of expiry a subscription is renewed.
	RenewBeforeHours = 12

	graphScope = "https://graph.microsoft.com/Mail.ReadWrite https://graph.microsoft.com/Mail.Send https://graph.microsoft.com/User.Read offline_access"
)

// Client implements ports.GraphAPI. It is stateless across mailboxes: every
// call takes the access or refresh token it needs, so one Client instance
// serves every mailbox in the fleet.
type Client struct {
	httpClient *http.Client
	endpoint   oauth2.Endpoint
	log        zerolog.Logger
}

// New builds a shared Client. A nil httpClient is replaced by one with a
// 30-second timeout.
func New(httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   oauth2.Endpoint{TokenURL: tokenURL},
		log:        logger.With().Str("component", "graph").Logger(),
	}
}

// RefreshAccessToken exchanges refreshToken for a fresh access token using
// clientID's public-client registration. Microsoft's public-client refresh
// flow does not rotate the refresh token on this path, so callers keep
// reusing the one already on file.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken, clientID string) (string, error) {
	conf := &oauth2.Config{
		ClientID: clientID,
		Endpoint: c.endpoint,
		Scopes:   []string{graphScope},
	}
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: graph token refresh: %s", apperr.ErrAuthFailed, err)
	}
	return tok.AccessToken, nil
}

func (c *Client) authedRequest(ctx context.Context, method, url string, accessToken string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// classifyStatus maps a Graph HTTP response to the typed errors the rest
// of the engine branches on (spec §8 error taxonomy).
func classifyStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: graph %d: %s", apperr.ErrAuthFailed, resp.StatusCode, string(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 60 * time.Second
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, err := strconv.Atoi(h); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return apperr.NewThrottled(retryAfter)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: graph %d: %s", apperr.ErrTransient, resp.StatusCode, string(body))
	default:
		return fmt.Errorf("%w: graph %d: %s", apperr.ErrPermanent, resp.StatusCode, string(body))
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %s", apperr.ErrTransient, err)
	}

	if err := classifyStatus(resp, raw); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
