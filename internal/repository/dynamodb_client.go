package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"sms-chat-agent/internal/domain"
)

const (
	timestampIndex = "phoneNumber-timestamp-index"
	defaultTTL     = 7 * 24 * time.Hour

	// Transient store faults are retried a small fixed number of times
	// before the error is surfaced to the caller.
	maxAttempts = 3
	retryDelay  = 200 * time.Millisecond

	batchDeleteSize = 25
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// SessionStore defines the conversation context operations consumed by the
// turn orchestration layer.
type SessionStore interface {
	Get(ctx context.Context, sender string) (domain.ConversationContext, bool, error)
	Put(ctx context.Context, cc domain.ConversationContext) error
	DeleteAll(ctx context.Context, sender string) error
}

// Client wraps the DynamoDB conversation context table.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration

	sleep func(time.Duration)
}

// New creates a new session store Client. A non-positive ttl falls back to
// the default expiry window.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl, sleep: time.Sleep}, nil
}

// Get returns the most recent context for a sender. The second return value
// reports whether one exists; absence is not an error.
func (c *Client) Get(ctx context.Context, sender string) (domain.ConversationContext, bool, error) {
	if strings.TrimSpace(sender) == "" {
		return domain.ConversationContext{}, false, errors.New("repository: Get: sender is required")
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(timestampIndex),
		KeyConditionExpression: aws.String("phoneNumber = :sender"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sender": &types.AttributeValueMemberS{Value: sender},
		},
		// Newest context first.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	}

	var out *dynamodb.QueryOutput
	err := c.withRetry(ctx, func() error {
		var qerr error
		out, qerr = c.api.Query(ctx, in)
		return qerr
	})
	if err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: Get query: %w", err)
	}
	if len(out.Items) == 0 {
		return domain.ConversationContext{}, false, nil
	}

	cc, err := itemToContext(out.Items[0])
	if err != nil {
		return domain.ConversationContext{}, false, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	return cc, true, nil
}

// Put upserts the context for a sender. An existing row with the same key is
// replaced; the write is never rejected because a prior row exists.
func (c *Client) Put(ctx context.Context, cc domain.ConversationContext) error {
	if cc.Sender == "" || cc.MessageID == "" {
		return errors.New("repository: Put: sender and message id are required")
	}
	if cc.Timestamp.IsZero() {
		cc.Timestamp = time.Now().UTC()
	}
	if cc.TTL == 0 {
		cc.TTL = cc.Timestamp.Add(c.ttl).Unix()
	}

	err := c.withRetry(ctx, func() error {
		_, perr := c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(c.tableName),
			Item:      contextItem(cc),
		})
		return perr
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// DeleteAll removes every context row stored for a sender.
func (c *Client) DeleteAll(ctx context.Context, sender string) error {
	if strings.TrimSpace(sender) == "" {
		return errors.New("repository: DeleteAll: sender is required")
	}

	keys, err := c.allKeys(ctx, sender)
	if err != nil {
		return fmt.Errorf("repository: DeleteAll query keys: %w", err)
	}

	for start := 0; start < len(keys); start += batchDeleteSize {
		end := start + batchDeleteSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.deleteBatch(ctx, keys[start:end]); err != nil {
			return fmt.Errorf("repository: DeleteAll: %w", err)
		}
	}
	return nil
}

// allKeys pages through the partition and collects the primary key of every
// row belonging to the sender.
func (c *Client) allKeys(ctx context.Context, sender string) ([]map[string]types.AttributeValue, error) {
	var keys []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue

	for {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("phoneNumber = :sender"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sender": &types.AttributeValueMemberS{Value: sender},
			},
			ProjectionExpression: aws.String("phoneNumber, messageId"),
			ExclusiveStartKey:    startKey,
		}

		var out *dynamodb.QueryOutput
		err := c.withRetry(ctx, func() error {
			var qerr error
			out, qerr = c.api.Query(ctx, in)
			return qerr
		})
		if err != nil {
			return nil, err
		}

		keys = append(keys, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return keys, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// deleteBatch issues one BatchWriteItem for up to 25 keys, resubmitting
// unprocessed deletes under the same retry budget.
func (c *Client) deleteBatch(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	for attempt := 1; len(requests) > 0; attempt++ {
		var out *dynamodb.BatchWriteItemOutput
		err := c.withRetry(ctx, func() error {
			var werr error
			out, werr = c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{c.tableName: requests},
			})
			return werr
		})
		if err != nil {
			return err
		}

		requests = out.UnprocessedItems[c.tableName]
		if len(requests) == 0 {
			return nil
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("batch delete left %d unprocessed items", len(requests))
		}
		c.sleep(retryDelay)
	}
	return nil
}

// withRetry runs fn up to maxAttempts times with a short fixed delay between
// attempts. The last error is returned once the budget is exhausted.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			if ctx.Err() != nil {
				return err
			}
			c.sleep(retryDelay)
		}
	}
	return err
}

func contextItem(cc domain.ConversationContext) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"phoneNumber":    &types.AttributeValueMemberS{Value: cc.Sender},
		"messageId":      &types.AttributeValueMemberS{Value: cc.MessageID},
		"conversationId": &types.AttributeValueMemberS{Value: cc.ConversationID},
		"timestamp":      &types.AttributeValueMemberN{Value: strconv.FormatInt(cc.Timestamp.UnixMilli(), 10)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(cc.TTL, 10)},
	}
}

// itemToContext converts a DynamoDB attribute map to a ConversationContext.
func itemToContext(item map[string]types.AttributeValue) (domain.ConversationContext, error) {
	sender, err := strAttr(item, "phoneNumber")
	if err != nil {
		return domain.ConversationContext{}, err
	}
	messageID, err := strAttr(item, "messageId")
	if err != nil {
		return domain.ConversationContext{}, err
	}
	conversationID, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.ConversationContext{}, err
	}

	cc := domain.ConversationContext{
		Sender:         sender,
		MessageID:      messageID,
		ConversationID: conversationID,
	}
	if millis, err := intAttr(item, "timestamp"); err == nil {
		cc.Timestamp = time.UnixMilli(millis).UTC()
	}
	if ttl, err := intAttr(item, "ttl"); err == nil {
		cc.TTL = ttl
	}
	return cc, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
