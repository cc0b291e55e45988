package graph

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/stoik/mailhouse/internal/domain"
	"github.com/stoik/mailhouse/internal/ports"
)

type graphAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphRecipient struct {
	EmailAddress graphAddress `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ID               string           `json:"id"`
	Subject          string           `json:"subject"`
	From             graphRecipient   `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
	ReceivedDateTime string           `json:"receivedDateTime"`
	Body             graphBody        `json:"body"`
	HasAttachments   bool             `json:"hasAttachments"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
}

// ListMessages fetches one folder's messages newer than since (nil means
// unbounded, used on first sync) using Graph's $top/$orderby/$filter/
// $select OData query parameters (spec §4.3).
func (c *Client) ListMessages(ctx context.Context, accessToken string, folder string, limit int, since *time.Time) ([]ports.FetchedMessage, error) {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", "id,subject,from,toRecipients,receivedDateTime,body,hasAttachments,bodyPreview")
	if since != nil {
		params.Set("$filter", "receivedDateTime ge "+since.UTC().Format("2006-01-02T15:04:05Z"))
	}

	reqURL := fmt.Sprintf("%s/me/mailFolders/%s/messages?%s", apiBase, folder, params.Encode())
	req, err := c.authedRequest(ctx, "GET", reqURL, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var list graphMessageList
	if err := c.do(req, &list); err != nil {
		return nil, fmt.Errorf("list messages in %s: %w", folder, err)
	}

	domainFolder := domain.FolderInbox
	if folder == "junkemail" {
		domainFolder = domain.FolderJunk
	}

	out := make([]ports.FetchedMessage, 0, len(list.Value))
	for _, m := range list.Value {
		received, _ := time.Parse(time.RFC3339, m.ReceivedDateTime)
		out = append(out, ports.FetchedMessage{
			Subject:        m.Subject,
			Sender:         formatAddress(m.From),
			Content:        m.Body.Content,
			ReceivedTime:   received.UTC(),
			HasAttachments: m.HasAttachments,
			Folder:         domainFolder,
		})
	}
	return out, nil
}

// GetMessage fetches a single message by id (spec §4.3 get_message), used
// by callers that already hold a message ID (webhook resourceData) rather
// than listing a folder.
func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (ports.FetchedMessage, error) {
	params := url.Values{}
	params.Set("$select", "id,subject,from,toRecipients,receivedDateTime,body,hasAttachments")

	reqURL := fmt.Sprintf("%s/me/messages/%s?%s", apiBase, messageID, params.Encode())
	req, err := c.authedRequest(ctx, "GET", reqURL, accessToken, nil)
	if err != nil {
		return ports.FetchedMessage{}, err
	}

	var m graphMessage
	if err := c.do(req, &m); err != nil {
		return ports.FetchedMessage{}, fmt.Errorf("get message %s: %w", messageID, err)
	}

	received, _ := time.Parse(time.RFC3339, m.ReceivedDateTime)
	return ports.FetchedMessage{
		Subject:        m.Subject,
		Sender:         formatAddress(m.From),
		Content:        m.Body.Content,
		ReceivedTime:   received.UTC(),
		HasAttachments: m.HasAttachments,
		Folder:         domain.FolderInbox,
	}, nil
}

func formatAddress(r graphRecipient) string {
	if r.EmailAddress.Name == "" {
		return r.EmailAddress.Address
	}
	return fmt.Sprintf("%s <%s>", r.EmailAddress.Name, r.EmailAddress.Address)
}

// ListAttachments lists a message's attachment metadata.
func (c *Client) ListAttachments(ctx context.Context, accessToken, messageID string) ([]domain.Attachment, error) {
	reqURL := fmt.Sprintf("%s/me/messages/%s/attachments", apiBase, messageID)
	req, err := c.authedRequest(ctx, "GET", reqURL, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Value []struct {
			Name        string `json:"name"`
			ContentType string `json:"contentType"`
			Size        int    `json:"size"`
		} `json:"value"`
	}
	if err := c.do(req, &raw); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	out := make([]domain.Attachment, 0, len(raw.Value))
	for _, a := range raw.Value {
		out = append(out, domain.Attachment{
			Filename:    a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out, nil
}
