// Command numberconfig is the CloudFormation custom-resource Lambda that
// enables two-way SMS on the origination phone number during stack create
// and update. Delete leaves the number untouched.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awspinpoint "github.com/aws/aws-sdk-go-v2/service/pinpointsmsvoicev2"
	"github.com/google/uuid"

	"sms-chat-agent/internal/lifecycle"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	configurator, err := lifecycle.New(awspinpoint.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create configurator", "err", err)
		os.Exit(1)
	}

	lambda.Start(cfn.LambdaWrap(handle(configurator)))
}

func handle(c *lifecycle.Configurator) cfn.CustomResourceFunction {
	return func(ctx context.Context, event cfn.Event) (string, map[string]interface{}, error) {
		physicalID := event.PhysicalResourceID
		if event.RequestType == cfn.RequestCreate {
			physicalID = "two-way-sms-config-" + uuid.NewString()
		} else if physicalID == "" {
			return "", nil, fmt.Errorf("numberconfig: request type %q without a physical resource id", event.RequestType)
		}

		switch event.RequestType {
		case cfn.RequestCreate, cfn.RequestUpdate:
			props := lifecycle.Properties{
				PhoneNumberID:  stringProperty(event, "OriginationNumberId"),
				TopicARN:       stringProperty(event, "ChatSNSTopicARN"),
				ChannelRoleARN: stringProperty(event, "SNSRoleARN"),
			}
			if err := c.EnableTwoWay(ctx, props); err != nil {
				return physicalID, nil, err
			}
		case cfn.RequestDelete:
			// Nothing to undo; the number outlives the stack.
		}
		return physicalID, nil, nil
	}
}

func stringProperty(event cfn.Event, key string) string {
	v, _ := event.ResourceProperties[key].(string)
	return v
}
