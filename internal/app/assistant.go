/**
 * @description
 * This file implements the conversation loop between inbound WhatsApp messages
 * and the hosted assistant. Each user gets one long-lived thread per channel.
 * A message is appended to the thread, a run is started and polled; when the
 * run pauses in requires_action the pending tool calls are executed against
 * the tool registry and their outputs submitted back. Tool calls within a run
 * execute serially so money movement stays ordered.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - internal/domain, internal/store: Thread persistence.
 * - pkg/assistantclient: The threads-and-runs protocol client.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/store"
	"github.com/sofihq/sofi-backend/pkg/assistantclient"
)

// ApologyReply is sent when a run ends without a usable assistant message.
const ApologyReply = "Sorry, I'm having trouble responding right now. Please try again in a moment."

// AssistantAPI is the subset of the assistant platform client the conversation loop uses.
type AssistantAPI interface {
	CreateThread(ctx context.Context) (*assistantclient.Thread, error)
	AddMessage(ctx context.Context, threadID, content string) (*assistantclient.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*assistantclient.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistantclient.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistantclient.ToolOutput) (*assistantclient.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	LatestAssistantMessage(ctx context.Context, threadID string) (*assistantclient.Message, error)
}

// Conversation drives assistant runs for inbound messages.
type Conversation struct {
	assistant   AssistantAPI
	assistantID string
	registry    *ToolRegistry
	repo        store.Repository

	pollInterval time.Duration
	runTimeout   time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewConversation creates a conversation loop over the given assistant and tools.
func NewConversation(assistant AssistantAPI, assistantID string, registry *ToolRegistry, repo store.Repository, runTimeout time.Duration) *Conversation {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Second
	}
	return &Conversation{
		assistant:    assistant,
		assistantID:  assistantID,
		registry:     registry,
		repo:         repo,
		pollInterval: 500 * time.Millisecond,
		runTimeout:   runTimeout,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleMessage runs one inbound message through the assistant and returns the reply text.
func (c *Conversation) HandleMessage(ctx context.Context, user *domain.User, text string) (string, error) {
	threadID, err := c.threadFor(ctx, user)
	if err != nil {
		return "", err
	}

	if _, err := c.assistant.AddMessage(ctx, threadID, text); err != nil {
		return "", err
	}

	run, err := c.assistant.CreateRun(ctx, threadID, c.assistantID)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.runTimeout)
	for {
		switch run.Status {
		case assistantclient.RunCompleted:
			msg, err := c.assistant.LatestAssistantMessage(ctx, threadID)
			if err != nil {
				return "", err
			}
			if msg.Text() == "" {
				return ApologyReply, nil
			}
			return msg.Text(), nil

		case assistantclient.RunFailed, assistantclient.RunCancelled, assistantclient.RunExpired:
			if run.LastError != nil {
				log.Printf("level=error component=conversation msg=\"run ended abnormally\" run_id=%s status=%s code=%s detail=%q",
					run.ID, run.Status, run.LastError.Code, run.LastError.Message)
			} else {
				log.Printf("level=error component=conversation msg=\"run ended abnormally\" run_id=%s status=%s", run.ID, run.Status)
			}
			return ApologyReply, nil

		case assistantclient.RunRequiresAction:
			outputs := c.executeToolCalls(ctx, user, run.ToolCalls())
			run, err = c.assistant.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
			if err != nil {
				return "", err
			}
			continue

		default:
			// queued or in_progress
		}

		if time.Now().After(deadline) {
			log.Printf("level=warn component=conversation msg=\"run timed out\" run_id=%s thread_id=%s", run.ID, threadID)
			if err := c.assistant.CancelRun(ctx, threadID, run.ID); err != nil {
				log.Printf("level=warn component=conversation msg=\"cancel failed\" run_id=%s error=%q", run.ID, err)
			}
			return ApologyReply, nil
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}
		run, err = c.assistant.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return "", err
		}
	}
}

// executeToolCalls runs pending tool calls one at a time, in order.
func (c *Conversation) executeToolCalls(ctx context.Context, user *domain.User, calls []assistantclient.ToolCall) []assistantclient.ToolOutput {
	outputs := make([]assistantclient.ToolOutput, 0, len(calls))
	for _, call := range calls {
		log.Printf("level=info component=conversation op=tool_call user_id=%s tool=%s", user.ID, call.Function.Name)
		result := c.registry.Dispatch(ctx, user.ID, call.Function.Name, json.RawMessage(call.Function.Arguments))
		outputs = append(outputs, assistantclient.ToolOutput{
			ToolCallID: call.ID,
			Output:     result,
		})
	}
	return outputs
}

// threadFor returns the user's thread for WhatsApp, creating and persisting one on first contact.
func (c *Conversation) threadFor(ctx context.Context, user *domain.User) (string, error) {
	threadID, err := c.repo.FindThreadID(ctx, user.ID, domain.ChannelWhatsApp)
	if err == nil {
		return threadID, nil
	}
	if !errors.Is(err, store.ErrThreadNotFound) {
		return "", err
	}

	thread, err := c.assistant.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	if err := c.repo.SaveThreadID(ctx, user.ID, domain.ChannelWhatsApp, thread.ID); err != nil {
		return "", err
	}
	log.Printf("level=info component=conversation op=create_thread user_id=%s thread_id=%s", user.ID, thread.ID)
	return thread.ID, nil
}
