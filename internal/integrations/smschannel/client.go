// Package smschannel delivers plain-text replies over the two-way SMS
// channel.
package smschannel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pinpointsmsvoicev2"
)

// smsAPI is the minimal SMS Voice v2 interface required by Client.
// *pinpointsmsvoicev2.Client from aws-sdk-go-v2 satisfies this interface.
type smsAPI interface {
	SendTextMessage(ctx context.Context, in *pinpointsmsvoicev2.SendTextMessageInput, optFns ...func(*pinpointsmsvoicev2.Options)) (*pinpointsmsvoicev2.SendTextMessageOutput, error)
}

// Client sends text messages from a fixed origination number.
type Client struct {
	api               smsAPI
	originationNumber string
}

// New creates a Client sending from the given origination number.
func New(api smsAPI, originationNumber string) (*Client, error) {
	if api == nil {
		return nil, errors.New("smschannel: api must not be nil")
	}
	if strings.TrimSpace(originationNumber) == "" {
		return nil, errors.New("smschannel: origination number must not be empty")
	}
	return &Client{api: api, originationNumber: originationNumber}, nil
}

// SendText delivers body to the destination number.
func (c *Client) SendText(ctx context.Context, destination, body string) error {
	if strings.TrimSpace(destination) == "" {
		return errors.New("smschannel: destination must not be empty")
	}
	if body == "" {
		return errors.New("smschannel: body must not be empty")
	}

	_, err := c.api.SendTextMessage(ctx, &pinpointsmsvoicev2.SendTextMessageInput{
		DestinationPhoneNumber: aws.String(destination),
		OriginationIdentity:    aws.String(c.originationNumber),
		MessageBody:            aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("smschannel: send text message: %w", err)
	}
	return nil
}
