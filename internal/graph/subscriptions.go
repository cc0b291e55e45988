package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stoik/mailhouse/internal/apperr"
)

type subscriptionRequest struct {
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState,omitempty"`
}

type subscriptionResponse struct {
	ID string `json:"id"`
}

func formatExpiration(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.0000000Z")
}

// CreateSubscription registers a webhook subscription capped at
// MaxExpirationMinutes. clientState round-trips through every notification
// so NotificationRouter can verify provenance (spec §4.5, §4.6).
func (c *Client) CreateSubscription(ctx context.Context, accessToken, notificationURL, resource string, expiresAt time.Time, clientState string) (string, error) {
	payload := subscriptionRequest{
		ChangeType:         "created",
		NotificationURL:    notificationURL,
		Resource:           resource,
		ExpirationDateTime: formatExpiration(expiresAt),
		ClientState:        clientState,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := c.authedRequest(ctx, "POST", apiBase+"/subscriptions", accessToken, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var resp subscriptionResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	return resp.ID, nil
}

// RenewSubscription extends an existing subscription's expiration.
func (c *Client) RenewSubscription(ctx context.Context, accessToken, subscriptionID string, expiresAt time.Time) error {
	payload := struct {
		ExpirationDateTime string `json:"expirationDateTime"`
	}{ExpirationDateTime: formatExpiration(expiresAt)}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/subscriptions/%s", apiBase, subscriptionID)
	req, err := c.authedRequest(ctx, "PATCH", url, accessToken, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("renew subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// DeleteSubscription removes a subscription. A 404 from Graph means it is
// already gone, which is treated as success.
func (c *Client) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	url := fmt.Sprintf("%s/subscriptions/%s", apiBase, subscriptionID)
	req, err := c.authedRequest(ctx, "DELETE", url, accessToken, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w: %s", subscriptionID, apperr.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := classifyStatus(resp, raw); err != nil {
		return fmt.Errorf("delete subscription %s: %w", subscriptionID, err)
	}
	return nil
}
