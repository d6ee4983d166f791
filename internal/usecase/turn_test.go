package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sms-chat-agent/internal/domain"
	"sms-chat-agent/internal/integrations/identity"
	"sms-chat-agent/internal/integrations/qchat"
)

const sender = "+15551234567"

type mockStore struct {
	ops *[]string

	stored   domain.ConversationContext
	found    bool
	getErr   error
	putErr   error
	delErr   error
	putCtx   domain.ConversationContext
	putCalls int
	delCalls int
}

func (m *mockStore) Get(_ context.Context, _ string) (domain.ConversationContext, bool, error) {
	*m.ops = append(*m.ops, "store.get")
	return m.stored, m.found, m.getErr
}

func (m *mockStore) Put(_ context.Context, cc domain.ConversationContext) error {
	*m.ops = append(*m.ops, "store.put")
	m.putCtx = cc
	m.putCalls++
	return m.putErr
}

func (m *mockStore) DeleteAll(_ context.Context, _ string) error {
	*m.ops = append(*m.ops, "store.deleteAll")
	m.delCalls++
	return m.delErr
}

type mockFederator struct {
	ops *[]string

	creds domain.FederatedCredentials
	err   error
	calls int
}

func (m *mockFederator) Federate(_ context.Context, _ string) (domain.FederatedCredentials, error) {
	*m.ops = append(*m.ops, "federate")
	m.calls++
	return m.creds, m.err
}

type mockChat struct {
	ops *[]string

	exchange domain.ChatExchange
	err      error
	calls    int
	creds    domain.FederatedCredentials
	message  string
	cont     *domain.Continuation
}

func (m *mockChat) Send(_ context.Context, creds domain.FederatedCredentials, message string, cont *domain.Continuation) (domain.ChatExchange, error) {
	*m.ops = append(*m.ops, "chat.send")
	m.calls++
	m.creds = creds
	m.message = message
	m.cont = cont
	return m.exchange, m.err
}

type mockSMS struct {
	ops *[]string

	err    error
	calls  int
	dest   string
	bodies []string
}

func (m *mockSMS) SendText(_ context.Context, destination, body string) error {
	*m.ops = append(*m.ops, "sms.send")
	m.calls++
	m.dest = destination
	m.bodies = append(m.bodies, body)
	return m.err
}

type fixture struct {
	ops       []string
	store     *mockStore
	federator *mockFederator
	chat      *mockChat
	sms       *mockSMS
	svc       *TurnService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.store = &mockStore{ops: &f.ops}
	f.federator = &mockFederator{ops: &f.ops, creds: domain.FederatedCredentials{AccessKeyID: "AKIA-test"}}
	f.chat = &mockChat{ops: &f.ops, exchange: domain.ChatExchange{
		ReplyText:      "Our policy is 30 days.",
		ConversationID: "conv-1",
		MessageID:      "msg-1",
	}}
	f.sms = &mockSMS{ops: &f.ops}

	svc, err := NewTurnService(f.store, f.federator, f.chat, f.sms)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func record(body string) string {
	return fmt.Sprintf(`{"originationNumber":%q,"messageBody":%q}`, sender, body)
}

func expectTurnError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var turnErr *Error
	require.ErrorAs(t, err, &turnErr)
	require.Equal(t, code, turnErr.Code)
	require.Equal(t, reason, turnErr.Reason)
}

func TestNewTurnService_ValidatesDependencies(t *testing.T) {
	f := newFixture(t)

	_, err := NewTurnService(nil, f.federator, f.chat, f.sms)
	require.Error(t, err)

	_, err = NewTurnService(f.store, nil, f.chat, f.sms)
	require.Error(t, err)

	_, err = NewTurnService(f.store, f.federator, nil, f.sms)
	require.Error(t, err)

	_, err = NewTurnService(f.store, f.federator, f.chat, nil)
	require.Error(t, err)
}

func TestProcessRecord_ResetCommand(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessRecord(context.Background(), record("Reset"))
	require.NoError(t, err)
	require.Equal(t, 1, f.store.delCalls)
	require.Equal(t, []string{resetPrompt}, f.sms.bodies)
	require.Equal(t, sender, f.sms.dest)
	require.Zero(t, f.chat.calls, "no chat call on the reset branch")
	require.Zero(t, f.federator.calls)
}

func TestProcessRecord_ResetDeletesEvenWithoutContext(t *testing.T) {
	f := newFixture(t)
	f.store.found = false

	err := f.svc.ProcessRecord(context.Background(), record(" restart "))
	require.NoError(t, err)
	require.Equal(t, 1, f.store.delCalls)
	require.Zero(t, f.chat.calls)
}

func TestProcessRecord_ResetDeleteFailure(t *testing.T) {
	f := newFixture(t)
	f.store.delErr = errors.New("table offline")

	err := f.svc.ProcessRecord(context.Background(), record("reset"))
	expectTurnError(t, err, ErrorStoreUnavailable, "context_delete_error")
	require.Zero(t, f.sms.calls, "no prompt when delete fails")
}

func TestProcessRecord_ResetPromptSendFailure(t *testing.T) {
	f := newFixture(t)
	f.sms.err = errors.New("carrier rejected")

	err := f.svc.ProcessRecord(context.Background(), record("reset"))
	expectTurnError(t, err, ErrorDeliveryFailed, "reset_prompt_send_error")
}

func TestProcessRecord_FreshConversation(t *testing.T) {
	f := newFixture(t)
	f.store.found = false

	err := f.svc.ProcessRecord(context.Background(), record("What is the return policy?"))
	require.NoError(t, err)
	require.Equal(t, 1, f.chat.calls)
	require.Nil(t, f.chat.cont, "no continuation anchor without a prior context")
	require.Equal(t, "What is the return policy?", f.chat.message)
	require.Equal(t, "AKIA-test", f.chat.creds.AccessKeyID)
	require.Zero(t, f.store.delCalls, "nothing to delete without a prior context")
	require.Equal(t, []string{"Our policy is 30 days."}, f.sms.bodies)
	require.Equal(t, sender, f.sms.dest)
}

func TestProcessRecord_RoundTripPersistsExchangeResult(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessRecord(context.Background(), record("What is the return policy?"))
	require.NoError(t, err)
	require.Equal(t, 1, f.store.putCalls)
	require.Equal(t, sender, f.store.putCtx.Sender)
	require.Equal(t, "conv-1", f.store.putCtx.ConversationID)
	require.Equal(t, "msg-1", f.store.putCtx.MessageID)
	require.False(t, f.store.putCtx.Timestamp.IsZero())
}

func TestProcessRecord_ContinuationUsesPriorContext(t *testing.T) {
	f := newFixture(t)
	f.store.found = true
	f.store.stored = domain.ConversationContext{
		Sender:         sender,
		ConversationID: "conv-old",
		MessageID:      "msg-old",
		Timestamp:      time.Now().Add(-time.Hour),
	}

	err := f.svc.ProcessRecord(context.Background(), record("Does it cover sale items?"))
	require.NoError(t, err)
	require.NotNil(t, f.chat.cont)
	require.Equal(t, "conv-old", f.chat.cont.ConversationID)
	require.Equal(t, "msg-old", f.chat.cont.MessageID)
}

func TestProcessRecord_PriorContextDeletedBeforeExchange(t *testing.T) {
	f := newFixture(t)
	f.store.found = true
	f.store.stored = domain.ConversationContext{ConversationID: "conv-old", MessageID: "msg-old"}

	err := f.svc.ProcessRecord(context.Background(), record("Does it cover sale items?"))
	require.NoError(t, err)
	require.Equal(t, []string{"store.get", "store.deleteAll", "federate", "chat.send", "store.put", "sms.send"}, f.ops)
}

func TestProcessRecord_PriorContextWithoutConversationID(t *testing.T) {
	f := newFixture(t)
	f.store.found = true
	f.store.stored = domain.ConversationContext{Sender: sender, MessageID: "msg-old"}

	err := f.svc.ProcessRecord(context.Background(), record("Hello again"))
	require.NoError(t, err)
	require.Equal(t, 1, f.store.delCalls)
	require.Nil(t, f.chat.cont)
}

func TestProcessRecord_ContextReadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = errors.New("table offline")

	err := f.svc.ProcessRecord(context.Background(), record("Hello"))
	expectTurnError(t, err, ErrorStoreUnavailable, "context_read_error")
	require.Zero(t, f.federator.calls)
	require.Zero(t, f.sms.calls)
}

func TestProcessRecord_EagerDeleteFailure(t *testing.T) {
	f := newFixture(t)
	f.store.found = true
	f.store.stored = domain.ConversationContext{ConversationID: "conv-old", MessageID: "msg-old"}
	f.store.delErr = errors.New("table offline")

	err := f.svc.ProcessRecord(context.Background(), record("Hello"))
	expectTurnError(t, err, ErrorStoreUnavailable, "context_delete_error")
	require.Zero(t, f.federator.calls)
	require.Zero(t, f.chat.calls)
}

func TestProcessRecord_FederationRejected(t *testing.T) {
	f := newFixture(t)
	f.federator.err = identity.ErrFederationRejected

	err := f.svc.ProcessRecord(context.Background(), record("Hello"))
	expectTurnError(t, err, ErrorFederationRejected, "federation_error")
	require.Zero(t, f.chat.calls)
	require.Zero(t, f.sms.calls, "no reply on pre-answer failure")
}

func TestProcessRecord_IssuerUnreachable(t *testing.T) {
	f := newFixture(t)
	f.federator.err = fmt.Errorf("%w: unexpected status 503", identity.ErrIssuerUnreachable)

	err := f.svc.ProcessRecord(context.Background(), record("Hello"))
	expectTurnError(t, err, ErrorIssuerUnreachable, "issuer_token_error")
	require.Zero(t, f.sms.calls)
}

func TestProcessRecord_ChatBackendExhausted(t *testing.T) {
	f := newFixture(t)
	f.chat.err = fmt.Errorf("%w after 4 attempts: backend down", qchat.ErrBackendExhausted)

	err := f.svc.ProcessRecord(context.Background(), record("Hello"))
	expectTurnError(t, err, ErrorChatExhausted, "chat_backend_error")
	require.Zero(t, f.store.putCalls)
	require.Zero(t, f.sms.calls, "no reply on pre-answer failure")
}

func TestProcessRecord_PersistFailureStillDelivers(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errors.New("write throttled")

	err := f.svc.ProcessRecord(context.Background(), record("What is the return policy?"))
	require.NoError(t, err)
	require.Equal(t, []string{"Our policy is 30 days."}, f.sms.bodies)
}

func TestProcessRecord_ReplySendFailure(t *testing.T) {
	f := newFixture(t)
	f.sms.err = errors.New("carrier rejected")

	err := f.svc.ProcessRecord(context.Background(), record("Hello"))
	expectTurnError(t, err, ErrorDeliveryFailed, "reply_send_error")
}

func TestProcessRecord_MalformedEnvelope(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessRecord(context.Background(), `{"messageBody":"no sender"}`)
	expectTurnError(t, err, ErrorMalformedEnvelope, "envelope_parse_error")
	require.Empty(t, f.ops, "no side effects for malformed input")
}

func TestProcessBatch_AllRecordsSucceed(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessBatch(context.Background(), []string{
		record("Hello"),
		record("reset"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.chat.calls)
	require.Equal(t, 2, f.sms.calls)
}

func TestProcessBatch_AbortDoesNotHaltSubsequentRecords(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ProcessBatch(context.Background(), []string{
		`not-json`,
		record("Hello"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 records aborted")
	require.Equal(t, 1, f.chat.calls, "the valid record is still processed")
}

func TestProcessBatch_Empty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.ProcessBatch(context.Background(), nil))
}
