/**
 * @description
 * This package provides a client for a hosted assistant platform speaking the
 * threads-and-runs protocol: conversations live in server-side threads, user
 * messages are appended, and a run executes the assistant over the thread.
 * When the assistant wants to call a tool the run pauses in requires_action
 * until tool outputs are submitted back.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package assistantclient

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

const defaultBaseURL = "https://api.openai.com/v1"

// Run statuses surfaced to callers.
const (
	RunQueued         = "queued"
	RunInProgress     = "in_progress"
	RunRequiresAction = "requires_action"
	RunCompleted      = "completed"
	RunFailed         = "failed"
	RunCancelled      = "cancelled"
	RunExpired        = "expired"
)

// Client is a client for the assistant platform API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new assistant platform client.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ErrorResponse represents an error from the assistant platform API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Err        struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("assistant api error: %s", e.Err.Message)
	}
	return fmt.Sprintf("assistant api error: status %d", e.StatusCode)
}

// Thread is a server-side conversation container.
type Thread struct {
	ID string `json:"id"`
}

// CreateThread opens a new empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, "POST", "/threads", map[string]any{}, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// Message is one message inside a thread.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

// Text returns the first text block of the message.
func (m *Message) Text() string {
	for _, block := range m.Content {
		if block.Type == "text" {
			return block.Text.Value
		}
	}
	return ""
}

// AddMessage appends a user message to a thread.
func (c *Client) AddMessage(ctx context.Context, threadID, content string) (*Message, error) {
	payload := map[string]any{
		"role":    "user",
		"content": content,
	}
	var msg Message
	if err := c.do(ctx, "POST", "/threads/"+threadID+"/messages", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ToolCall is one pending function invocation inside a requires_action run.
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Run is one assistant execution over a thread.
type Run struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	Status         string `json:"status"`
	RequiredAction *struct {
		Type              string `json:"type"`
		SubmitToolOutputs struct {
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action,omitempty"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error,omitempty"`
}

// ToolCalls returns the pending tool calls for a requires_action run.
func (r *Run) ToolCalls() []ToolCall {
	if r.RequiredAction == nil {
		return nil
	}
	return r.RequiredAction.SubmitToolOutputs.ToolCalls
}

// Terminal reports whether the run has stopped making progress.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// CreateRun starts an assistant run over a thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
	}
	var run Run
	if err := c.do(ctx, "POST", "/threads/"+threadID+"/runs", payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, "GET", "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ToolOutput carries the result of one executed tool call back to the run.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// SubmitToolOutputs resumes a requires_action run with tool results.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	payload := map[string]any{
		"tool_outputs": outputs,
	}
	var run Run
	if err := c.do(ctx, "POST", "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun requests cancellation of an in-flight run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	var run Run
	return c.do(ctx, "POST", "/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]any{}, &run)
}

type messageList struct {
	Data []Message `json:"data"`
}

// LatestAssistantMessage returns the newest assistant message in a thread.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (*Message, error) {
	var list messageList
	if err := c.do(ctx, "GET", "/threads/"+threadID+"/messages?order=desc&limit=10", nil, &list); err != nil {
		return nil, err
	}
	for i := range list.Data {
		if list.Data[i].Role == "assistant" {
			return &list.Data[i], nil
		}
	}
	return nil, fmt.Errorf("no assistant message in thread %s", threadID)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=assistant_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return errResp
		}
		log.Printf("level=warn component=assistant_client path=%s status=%d message=%q", path, resp.StatusCode, errResp.Err.Message)
		return errResp
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
