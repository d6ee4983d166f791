// Package envelope decodes inbound two-way SMS notification payloads.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sms-chat-agent/internal/domain"
)

// ErrMalformed reports a notification payload missing required fields.
// Malformed input is not transient; callers must not retry.
var ErrMalformed = errors.New("envelope: malformed notification payload")

// payload is the two-way SMS notification shape published to the inbound
// topic by the SMS channel.
type payload struct {
	OriginationNumber string `json:"originationNumber"`
	MessageBody       string `json:"messageBody"`
}

// Parse extracts the sender identifier and message body from a raw inbound
// notification message. It returns ErrMalformed if the payload is not valid
// JSON or either required field is absent.
func Parse(raw string) (domain.ConversationTurn, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.ConversationTurn{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(p.OriginationNumber) == "" {
		return domain.ConversationTurn{}, fmt.Errorf("%w: missing originationNumber", ErrMalformed)
	}
	if strings.TrimSpace(p.MessageBody) == "" {
		return domain.ConversationTurn{}, fmt.Errorf("%w: missing messageBody", ErrMalformed)
	}
	return domain.ConversationTurn{
		Sender:     p.OriginationNumber,
		Body:       p.MessageBody,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
