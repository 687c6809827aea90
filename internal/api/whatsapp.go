/**
 * @description
 * This file contains the WhatsApp webhook handlers: the GET verification
 * handshake Meta performs when the webhook URL is registered, and the POST
 * handler that receives inbound messages. Inbound handling acknowledges fast,
 * deduplicates redelivered message ids, routes unknown senders to onboarding,
 * and runs known senders' messages through the assistant conversation loop.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/dgraph-io/ristretto: TTL cache for message id deduplication.
 * - internal/app, internal/domain, internal/store: Service logic and models.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sofihq/sofi-backend/internal/store"
)

// whatsappWebhookPayload mirrors the Cloud API webhook envelope, trimmed to
// the fields we read.
type whatsappWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive struct {
						ButtonReply struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppVerifyHandler answers Meta's webhook verification handshake.
func (h *Handlers) WhatsAppVerifyHandler(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	verifyToken := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "subscribe" || verifyToken != h.whatsappVerifyToken {
		log.Printf("level=warn component=whatsapp_handler msg=\"webhook verification rejected\" mode=%q", mode)
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// WhatsAppInboundHandler receives inbound message webhooks. It always answers
// 200 quickly; the conversation runs in the background so Meta does not
// redeliver while the assistant thinks.
func (h *Handlers) WhatsAppInboundHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var payload whatsappWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("level=warn component=whatsapp_handler msg=\"unparsable webhook body\" error=%q", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				text := msg.Text.Body
				if msg.Type == "interactive" {
					text = msg.Interactive.ButtonReply.Title
					if text == "" {
						text = msg.Interactive.ButtonReply.ID
					}
				}
				if text == "" || msg.From == "" {
					continue
				}
				if !h.markMessageSeen(msg.ID) {
					log.Printf("level=info component=whatsapp_handler msg=\"duplicate message dropped\" message_id=%s", msg.ID)
					continue
				}
				messageID, from := msg.ID, msg.From
				h.enqueueInbound(from, func() {
					h.processInbound(messageID, from, text)
				})
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

// enqueueInbound runs fn in the background once every earlier message from
// the same sender has finished. Concurrent runs on one assistant thread are
// rejected by the threads protocol, so a sender's messages must not overlap.
func (h *Handlers) enqueueInbound(from string, fn func()) {
	h.sendersMu.Lock()
	prev := h.senderTails[from]
	done := make(chan struct{})
	h.senderTails[from] = done
	h.sendersMu.Unlock()

	go func() {
		defer func() {
			close(done)
			h.sendersMu.Lock()
			if h.senderTails[from] == done {
				delete(h.senderTails, from)
			}
			h.sendersMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// markMessageSeen records a message id in the dedup cache; it returns false
// when the id was already seen inside the TTL window.
func (h *Handlers) markMessageSeen(messageID string) bool {
	if h.seenMessages == nil || messageID == "" {
		return true
	}
	if _, found := h.seenMessages.Get(messageID); found {
		return false
	}
	h.seenMessages.SetWithTTL(messageID, struct{}{}, 1, 10*time.Minute)
	h.seenMessages.Wait()
	return true
}

// processInbound handles one inbound message end to end.
func (h *Handlers) processInbound(messageID, from, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	user, err := h.service.UserByWhatsAppNumber(ctx, from)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.inviteToOnboard(ctx, from)
			return
		}
		log.Printf("level=error component=whatsapp_handler msg=\"user lookup failed\" error=%q", err)
		return
	}

	// Read receipt and typing indicator are cosmetic; failures are logged and ignored.
	if err := h.messenger.MarkReadWithTyping(ctx, messageID); err != nil {
		log.Printf("level=warn component=whatsapp_handler msg=\"mark-read failed\" message_id=%s error=%q", messageID, err)
	}

	reply, err := h.conversation.HandleMessage(ctx, user, text)
	if err != nil {
		log.Printf("level=error component=whatsapp_handler msg=\"conversation failed\" user_id=%s error=%q", user.ID, err)
		reply = "Sorry, something went wrong on my end. Please try again."
	}

	if err := h.messenger.SendText(ctx, from, reply); err != nil {
		log.Printf("level=error component=whatsapp_handler msg=\"reply send failed\" user_id=%s error=%q", user.ID, err)
	}
}

// inviteToOnboard sends an unregistered sender a signed link to the
// registration form.
func (h *Handlers) inviteToOnboard(ctx context.Context, from string) {
	tok := signOnboardingToken(h.onboardingSecret, from, time.Now().Add(time.Hour))
	url := h.baseURL + "/onboard?token=" + tok
	body := "Hi! I'm Sofi, your banking assistant. You don't have an account yet. Tap below to open one in under a minute."
	if err := h.messenger.SendLinkButton(ctx, from, body, "Complete Registration", url); err != nil {
		log.Printf("level=warn component=whatsapp_handler msg=\"onboarding invite send failed\" error=%q", err)
	}
}
