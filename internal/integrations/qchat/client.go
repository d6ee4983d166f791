// Package qchat invokes the managed conversational backend for one turn.
package qchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness/types"

	"sms-chat-agent/internal/domain"
)

const (
	// One initial call plus maxRetries re-attempts, backing off
	// baseDelay, 2*baseDelay, 4*baseDelay between them.
	maxRetries = 3
	baseDelay  = time.Second
)

// ErrBackendExhausted reports that the chat backend kept failing after the
// full retry budget. It wraps the last underlying error.
var ErrBackendExhausted = errors.New("qchat: chat backend exhausted")

// chatAPI is the minimal Q Business interface required by Client.
// *qbusiness.Client from aws-sdk-go-v2 satisfies this interface.
type chatAPI interface {
	ChatSync(ctx context.Context, in *qbusiness.ChatSyncInput, optFns ...func(*qbusiness.Options)) (*qbusiness.ChatSyncOutput, error)
}

// Client sends user messages to a Q Business application in retrieval mode.
type Client struct {
	api           chatAPI
	applicationID string

	sleep func(time.Duration)
}

// New creates a chat Client for the given application.
func New(api chatAPI, applicationID string) (*Client, error) {
	if api == nil {
		return nil, errors.New("qchat: api must not be nil")
	}
	if strings.TrimSpace(applicationID) == "" {
		return nil, errors.New("qchat: application id must not be empty")
	}
	return &Client{api: api, applicationID: applicationID, sleep: time.Sleep}, nil
}

// Send delivers one user message using the supplied per-turn credentials.
// A non-nil continuation resumes that conversation; otherwise the backend
// starts a new one. Failures are retried with exponential backoff using the
// same credentials and arguments; after the budget is spent the last error
// is wrapped in ErrBackendExhausted.
func (c *Client) Send(ctx context.Context, creds domain.FederatedCredentials, message string, cont *domain.Continuation) (domain.ChatExchange, error) {
	if strings.TrimSpace(message) == "" {
		return domain.ChatExchange{}, errors.New("qchat: message must not be empty")
	}

	in := &qbusiness.ChatSyncInput{
		ApplicationId: aws.String(c.applicationID),
		ChatMode:      types.ChatModeRetrievalMode,
		UserMessage:   aws.String(message),
	}
	if cont != nil {
		in.ConversationId = aws.String(cont.ConversationID)
		in.ParentMessageId = aws.String(cont.MessageID)
	}

	withCreds := func(o *qbusiness.Options) {
		o.Credentials = credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(baseDelay << (attempt - 1))
		}

		out, err := c.api.ChatSync(ctx, in, withCreds)
		if err != nil {
			lastErr = err
			continue
		}
		exchange, err := outputToExchange(out)
		if err != nil {
			lastErr = err
			continue
		}
		return exchange, nil
	}
	return domain.ChatExchange{}, fmt.Errorf("%w after %d attempts: %v", ErrBackendExhausted, maxRetries+1, lastErr)
}

func outputToExchange(out *qbusiness.ChatSyncOutput) (domain.ChatExchange, error) {
	if out == nil || out.SystemMessage == nil || out.ConversationId == nil || out.SystemMessageId == nil {
		return domain.ChatExchange{}, errors.New("qchat: response missing system message")
	}
	return domain.ChatExchange{
		ReplyText:      *out.SystemMessage,
		ConversationID: *out.ConversationId,
		MessageID:      *out.SystemMessageId,
	}, nil
}
