package domain

import "time"

// FederatedCredentials are temporary, role-scoped credentials obtained by
// exchanging an identity token. They are valid for minutes, used for a
// single turn, and never persisted.
type FederatedCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expires         time.Time
}

// ChatExchange is the result of one successful chat backend call.
type ChatExchange struct {
	ReplyText      string
	ConversationID string
	MessageID      string
}
