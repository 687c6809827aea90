package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sofihq/sofi-backend/internal/domain"
	"github.com/sofihq/sofi-backend/internal/store"
	"github.com/sofihq/sofi-backend/pkg/assistantclient"
)

type threadRepoStub struct {
	store.Repository

	threads map[uuid.UUID]string
	saved   int
}

func (s *threadRepoStub) FindThreadID(ctx context.Context, userID uuid.UUID, channel domain.Channel) (string, error) {
	if id, ok := s.threads[userID]; ok {
		return id, nil
	}
	return "", store.ErrThreadNotFound
}

func (s *threadRepoStub) SaveThreadID(ctx context.Context, userID uuid.UUID, channel domain.Channel, threadID string) error {
	if s.threads == nil {
		s.threads = make(map[uuid.UUID]string)
	}
	s.threads[userID] = threadID
	s.saved++
	return nil
}

// assistantStub walks a scripted sequence of run states.
type assistantStub struct {
	states []assistantclient.Run
	step   int

	reply string

	threadsCreated int
	messages       []string
	submitted      [][]assistantclient.ToolOutput
	cancelled      bool
}

func (s *assistantStub) CreateThread(ctx context.Context) (*assistantclient.Thread, error) {
	s.threadsCreated++
	return &assistantclient.Thread{ID: "thread_1"}, nil
}

func (s *assistantStub) AddMessage(ctx context.Context, threadID, content string) (*assistantclient.Message, error) {
	s.messages = append(s.messages, content)
	return &assistantclient.Message{ID: "msg_1", Role: "user"}, nil
}

func (s *assistantStub) next() *assistantclient.Run {
	run := s.states[s.step]
	if s.step < len(s.states)-1 {
		s.step++
	}
	return &run
}

func (s *assistantStub) CreateRun(ctx context.Context, threadID, assistantID string) (*assistantclient.Run, error) {
	return s.next(), nil
}

func (s *assistantStub) GetRun(ctx context.Context, threadID, runID string) (*assistantclient.Run, error) {
	return s.next(), nil
}

func (s *assistantStub) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistantclient.ToolOutput) (*assistantclient.Run, error) {
	s.submitted = append(s.submitted, outputs)
	return s.next(), nil
}

func (s *assistantStub) CancelRun(ctx context.Context, threadID, runID string) error {
	s.cancelled = true
	return nil
}

func (s *assistantStub) LatestAssistantMessage(ctx context.Context, threadID string) (*assistantclient.Message, error) {
	msg := &assistantclient.Message{ID: "msg_2", Role: "assistant"}
	msg.Content = append(msg.Content, struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	}{Type: "text"})
	msg.Content[0].Text.Value = s.reply
	return msg, nil
}

func runState(status string) assistantclient.Run {
	return assistantclient.Run{ID: "run_1", ThreadID: "thread_1", Status: status}
}

func requiresActionState(calls ...assistantclient.ToolCall) assistantclient.Run {
	run := runState(assistantclient.RunRequiresAction)
	run.RequiredAction = &struct {
		Type              string `json:"type"`
		SubmitToolOutputs struct {
			ToolCalls []assistantclient.ToolCall `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	}{Type: "submit_tool_outputs"}
	run.RequiredAction.SubmitToolOutputs.ToolCalls = calls
	return run
}

func newTestConversation(stub *assistantStub, repo store.Repository, registry *ToolRegistry) *Conversation {
	c := NewConversation(stub, "asst_1", registry, repo, 5*time.Second)
	c.pollInterval = time.Millisecond
	return c
}

func TestHandleMessageCreatesThreadOnFirstContact(t *testing.T) {
	stub := &assistantStub{
		states: []assistantclient.Run{runState(assistantclient.RunCompleted)},
		reply:  "Your balance is ₦5,000.00.",
	}
	repo := &threadRepoStub{}
	user := &domain.User{ID: uuid.New(), WhatsAppNumber: "2348100000001"}

	conv := newTestConversation(stub, repo, NewToolRegistry())
	reply, err := conv.HandleMessage(context.Background(), user, "what's my balance?")
	if err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if reply != "Your balance is ₦5,000.00." {
		t.Fatalf("reply = %q", reply)
	}
	if stub.threadsCreated != 1 || repo.saved != 1 {
		t.Fatal("expected a thread to be created and persisted on first contact")
	}

	// Second message reuses the stored thread.
	stub.states = []assistantclient.Run{runState(assistantclient.RunCompleted)}
	stub.step = 0
	if _, err := conv.HandleMessage(context.Background(), user, "thanks"); err != nil {
		t.Fatalf("second HandleMessage returned error: %v", err)
	}
	if stub.threadsCreated != 1 {
		t.Fatalf("threads created = %d, want 1", stub.threadsCreated)
	}
}

func TestHandleMessageExecutesToolCalls(t *testing.T) {
	call := assistantclient.ToolCall{ID: "call_1", Type: "function"}
	call.Function.Name = "echo_kind"
	call.Function.Arguments = `{}`

	stub := &assistantStub{
		states: []assistantclient.Run{
			runState(assistantclient.RunInProgress),
			requiresActionState(call),
			runState(assistantclient.RunCompleted),
		},
		reply: "Done.",
	}

	registry := NewToolRegistry()
	registry.Register(Tool{
		Name:       "echo_kind",
		Parameters: objectSchema(map[string]interface{}{}),
		Handler: func(ctx context.Context, userID uuid.UUID, args json.RawMessage) (any, error) {
			return map[string]string{"ok": "yes"}, nil
		},
	})

	user := &domain.User{ID: uuid.New(), WhatsAppNumber: "2348100000001"}
	conv := newTestConversation(stub, &threadRepoStub{}, registry)

	reply, err := conv.HandleMessage(context.Background(), user, "send money")
	if err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if reply != "Done." {
		t.Fatalf("reply = %q", reply)
	}
	if len(stub.submitted) != 1 || len(stub.submitted[0]) != 1 {
		t.Fatalf("submitted outputs = %v", stub.submitted)
	}
	if stub.submitted[0][0].ToolCallID != "call_1" {
		t.Fatalf("tool_call_id = %q, want call_1", stub.submitted[0][0].ToolCallID)
	}
	if stub.submitted[0][0].Output != `{"ok":"yes"}` {
		t.Fatalf("output = %q", stub.submitted[0][0].Output)
	}
}

func TestHandleMessageApologizesOnFailedRun(t *testing.T) {
	stub := &assistantStub{
		states: []assistantclient.Run{runState(assistantclient.RunFailed)},
	}
	user := &domain.User{ID: uuid.New(), WhatsAppNumber: "2348100000001"}
	conv := newTestConversation(stub, &threadRepoStub{}, NewToolRegistry())

	reply, err := conv.HandleMessage(context.Background(), user, "hi")
	if err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if reply != ApologyReply {
		t.Fatalf("reply = %q, want apology", reply)
	}
}

func TestHandleMessageTimesOutStuckRun(t *testing.T) {
	stub := &assistantStub{
		states: []assistantclient.Run{runState(assistantclient.RunInProgress)},
	}
	user := &domain.User{ID: uuid.New(), WhatsAppNumber: "2348100000001"}

	conv := NewConversation(stub, "asst_1", NewToolRegistry(), &threadRepoStub{}, 20*time.Millisecond)
	conv.pollInterval = time.Millisecond

	reply, err := conv.HandleMessage(context.Background(), user, "hi")
	if err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if reply != ApologyReply {
		t.Fatalf("reply = %q, want apology after timeout", reply)
	}
	if !stub.cancelled {
		t.Fatal("expected the stuck run to be cancelled")
	}
}
