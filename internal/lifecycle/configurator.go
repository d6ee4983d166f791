// Package lifecycle flips the two-way SMS configuration on the origination
// phone number during stack create and update.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pinpointsmsvoicev2"
)

// phoneNumberAPI is the minimal SMS Voice v2 interface required by
// Configurator.
type phoneNumberAPI interface {
	UpdatePhoneNumber(ctx context.Context, in *pinpointsmsvoicev2.UpdatePhoneNumberInput, optFns ...func(*pinpointsmsvoicev2.Options)) (*pinpointsmsvoicev2.UpdatePhoneNumberOutput, error)
}

// Properties configures two-way SMS on a phone number: inbound messages are
// published to the topic using the channel role.
type Properties struct {
	PhoneNumberID  string
	TopicARN       string
	ChannelRoleARN string
}

type Configurator struct {
	api phoneNumberAPI
}

func New(api phoneNumberAPI) (*Configurator, error) {
	if api == nil {
		return nil, errors.New("lifecycle: api must not be nil")
	}
	return &Configurator{api: api}, nil
}

// EnableTwoWay routes inbound SMS on the phone number to the configured
// topic. The call is idempotent; re-applying the same properties is safe.
func (c *Configurator) EnableTwoWay(ctx context.Context, props Properties) error {
	if strings.TrimSpace(props.PhoneNumberID) == "" {
		return errors.New("lifecycle: phone number id must not be empty")
	}
	if strings.TrimSpace(props.TopicARN) == "" {
		return errors.New("lifecycle: topic ARN must not be empty")
	}
	if strings.TrimSpace(props.ChannelRoleARN) == "" {
		return errors.New("lifecycle: channel role ARN must not be empty")
	}

	_, err := c.api.UpdatePhoneNumber(ctx, &pinpointsmsvoicev2.UpdatePhoneNumberInput{
		PhoneNumberId:             aws.String(props.PhoneNumberID),
		TwoWayEnabled:             aws.Bool(true),
		TwoWayChannelArn:          aws.String(props.TopicARN),
		TwoWayChannelRole:         aws.String(props.ChannelRoleARN),
		SelfManagedOptOutsEnabled: aws.Bool(false),
		DeletionProtectionEnabled: aws.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("lifecycle: update phone number: %w", err)
	}
	return nil
}
