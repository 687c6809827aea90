/**
 * @description
 * This package provides a client for the WhatsApp Cloud API. It sends outbound
 * text messages and call-to-action link buttons, and acknowledges inbound
 * messages with a read receipt plus typing indicator. Sends are retried with
 * exponential backoff on transient failures so a flaky Graph API edge does not
 * drop replies.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package whatsappclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// Client is a client for the WhatsApp Cloud API.
type Client struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	HTTPClient    *http.Client

	// backoff returns the delay before retry attempt n (1-based).
	backoff func(attempt int) time.Duration
}

// NewClient creates a new WhatsApp Cloud API client.
func NewClient(baseURL, accessToken, phoneNumberID string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:       baseURL,
		AccessToken:   accessToken,
		PhoneNumberID: phoneNumberID,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
		},
	}
}

// ErrorResponse represents an error from the Cloud API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Err        struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("whatsapp api error: %s (code %d)", e.Err.Message, e.Err.Code)
	}
	return fmt.Sprintf("whatsapp api error: status %d", e.StatusCode)
}

// SendText sends a plain text message to a WhatsApp number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return c.send(ctx, payload)
}

// SendLinkButton sends a message with a call-to-action URL button. Used for
// the PIN entry link and the onboarding link.
func (c *Client) SendLinkButton(ctx context.Context, to, body, buttonText, buttonURL string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "cta_url",
			"body": map[string]any{"text": body},
			"action": map[string]any{
				"name": "cta_url",
				"parameters": map[string]any{
					"display_text": buttonText,
					"url":          buttonURL,
				},
			},
		},
	}
	return c.send(ctx, payload)
}

// MarkReadWithTyping acknowledges an inbound message with a read receipt and
// shows the typing indicator while a reply is prepared. Failures here are
// cosmetic; callers log and move on.
func (c *Client) MarkReadWithTyping(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
		"typing_indicator":  map[string]any{"type": "text"},
	}
	return c.send(ctx, payload)
}

// send posts one messages-endpoint payload, retrying transient failures up to
// three attempts with exponential backoff.
func (c *Client) send(ctx context.Context, payload any) error {
	const maxAttempts = 3

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.sendOnce(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if apiErr, ok := err.(*ErrorResponse); ok && apiErr.StatusCode < 500 {
			return err
		}
		if attempt < maxAttempts {
			log.Printf("level=warn component=whatsapp_client attempt=%d msg=\"send failed, retrying\" error=%q", attempt, err)
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return lastErr
}

func (c *Client) sendOnce(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read error response: %w", err)
	}
	errResp := &ErrorResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(bodyBytes, errResp); err != nil {
		return errResp
	}
	return errResp
}
