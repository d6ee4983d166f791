package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sms-chat-agent/internal/domain"
	"sms-chat-agent/internal/envelope"
	"sms-chat-agent/internal/integrations/identity"
)

// resetPrompt is delivered after a session-reset command.
const resetPrompt = "Please ask a question."

type SessionStore interface {
	Get(ctx context.Context, sender string) (domain.ConversationContext, bool, error)
	Put(ctx context.Context, cc domain.ConversationContext) error
	DeleteAll(ctx context.Context, sender string) error
}

type CredentialFederator interface {
	Federate(ctx context.Context, subject string) (domain.FederatedCredentials, error)
}

type ChatBackend interface {
	Send(ctx context.Context, creds domain.FederatedCredentials, message string, cont *domain.Continuation) (domain.ChatExchange, error)
}

type MessageSender interface {
	SendText(ctx context.Context, destination, body string) error
}

// TurnService sequences one full message turn: parse, reset-or-continue,
// federate, exchange, persist, deliver. Each collaborator is a leaf with no
// knowledge of the others.
type TurnService struct {
	store     SessionStore
	federator CredentialFederator
	chat      ChatBackend
	sms       MessageSender
}

func NewTurnService(store SessionStore, federator CredentialFederator, chat ChatBackend, sms MessageSender) (*TurnService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if federator == nil {
		return nil, errors.New("usecase: credential federator must not be nil")
	}
	if chat == nil {
		return nil, errors.New("usecase: chat backend must not be nil")
	}
	if sms == nil {
		return nil, errors.New("usecase: message sender must not be nil")
	}
	return &TurnService{store: store, federator: federator, chat: chat, sms: sms}, nil
}

// ProcessBatch handles the records of one invocation strictly sequentially.
// One record's failure does not halt the rest, but the invocation as a
// whole fails if any record aborted.
func (s *TurnService) ProcessBatch(ctx context.Context, raws []string) error {
	aborted := 0
	for i, raw := range raws {
		if err := s.ProcessRecord(ctx, raw); err != nil {
			slog.Error("record aborted", "record", i, "err", err)
			aborted++
		}
	}
	if aborted > 0 {
		return fmt.Errorf("usecase: %d of %d records aborted", aborted, len(raws))
	}
	return nil
}

// ProcessRecord runs one inbound notification through a complete turn.
// Failures before an answer is obtained abort the record without sending
// any reply.
func (s *TurnService) ProcessRecord(ctx context.Context, raw string) error {
	turn, err := envelope.Parse(raw)
	if err != nil {
		return newError(ErrorMalformedEnvelope, "envelope_parse_error", err)
	}
	if IsRestart(turn.Body) {
		return s.resetSession(ctx, turn)
	}
	return s.continueConversation(ctx, turn)
}

// resetSession clears the sender's context and prompts for a fresh
// question. No chat backend call is made.
func (s *TurnService) resetSession(ctx context.Context, turn domain.ConversationTurn) error {
	if err := s.store.DeleteAll(ctx, turn.Sender); err != nil {
		return newError(ErrorStoreUnavailable, "context_delete_error", err)
	}
	if err := s.sms.SendText(ctx, turn.Sender, resetPrompt); err != nil {
		return newError(ErrorDeliveryFailed, "reset_prompt_send_error", err)
	}
	return nil
}

func (s *TurnService) continueConversation(ctx context.Context, turn domain.ConversationTurn) error {
	prior, found, err := s.store.Get(ctx, turn.Sender)
	if err != nil {
		return newError(ErrorStoreUnavailable, "context_read_error", err)
	}

	var cont *domain.Continuation
	if found {
		// Eagerly delete the old context so the store never holds a row
		// considered current while the replacement exchange is in flight.
		if err := s.store.DeleteAll(ctx, turn.Sender); err != nil {
			return newError(ErrorStoreUnavailable, "context_delete_error", err)
		}
		if prior.ConversationID != "" {
			cont = &domain.Continuation{
				ConversationID: prior.ConversationID,
				MessageID:      prior.MessageID,
			}
		}
	}

	creds, err := s.federator.Federate(ctx, turn.Sender)
	if err != nil {
		if errors.Is(err, identity.ErrIssuerUnreachable) {
			return newError(ErrorIssuerUnreachable, "issuer_token_error", err)
		}
		return newError(ErrorFederationRejected, "federation_error", err)
	}

	exchange, err := s.chat.Send(ctx, creds, turn.Body, cont)
	if err != nil {
		return newError(ErrorChatExhausted, "chat_backend_error", err)
	}

	// Persistence failure degrades the next turn's continuity, not this
	// turn's answer.
	if err := s.store.Put(ctx, domain.ConversationContext{
		Sender:         turn.Sender,
		ConversationID: exchange.ConversationID,
		MessageID:      exchange.MessageID,
		Timestamp:      now().UTC(),
	}); err != nil {
		slog.Error("failed to persist conversation context, next turn starts fresh",
			"sender", turn.Sender, "err", err)
	}

	if err := s.sms.SendText(ctx, turn.Sender, exchange.ReplyText); err != nil {
		return newError(ErrorDeliveryFailed, "reply_send_error", err)
	}
	return nil
}

var now = time.Now
