package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"listing-wizard/internal/domain"
)

const (
	skPrefixMsg   = "MSG#"
	skMeta        = "META#"
	gsi1Name      = "GSI1"
	gsi1PKAll     = "SESSIONS"
	maxTransactOp = 100

	// sortKeyTime keeps every fraction digit so GSI1SK sorts in time order.
	sortKeyTime = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	ErrNotFound = errors.New("repository: session not found")
	ErrConflict = errors.New("repository: session was modified concurrently")
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table for wizard sessions.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// msgSK orders messages by their position in the log.
func msgSK(seq int) string {
	return fmt.Sprintf("%s%06d", skPrefixMsg, seq)
}

// CreateSession writes the meta record and the initial messages. It fails
// with ErrConflict if the session id is taken.
func (c *Client) CreateSession(ctx context.Context, conv domain.Conversation) error {
	if conv.SessionID == "" {
		return errors.New("repository: CreateSession: session id is required")
	}
	meta, err := metaItem(conv)
	if err != nil {
		return fmt.Errorf("repository: CreateSession: %w", err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(c.tableName),
			Item:                meta,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}}
	items = append(items, c.messagePuts(conv.SessionID, conv.Messages, 0)...)
	if err := c.transact(ctx, items); err != nil {
		return fmt.Errorf("repository: CreateSession: %w", err)
	}
	return nil
}

// GetSession reads the meta record and the full message log.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.Conversation, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, ErrNotFound
	}
	conv, err := itemToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetSession decode meta: %w", err)
	}

	msgs, err := c.messages(ctx, sessionID)
	if err != nil {
		return domain.Conversation{}, err
	}
	conv.Messages = msgs
	return conv, nil
}

// messages queries all MSG# items for a session in log order, following
// pagination.
func (c *Client) messages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var msgs []domain.Message
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: GetSession query messages: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: GetSession unmarshal message: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return msgs, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// UpdateSession replaces prev with next in one transaction. The meta put is
// conditioned on the stored version still being prev.Version; messages beyond
// prev.Messages are appended and earlier ones are never rewritten.
func (c *Client) UpdateSession(ctx context.Context, prev, next domain.Conversation) error {
	if prev.SessionID == "" || prev.SessionID != next.SessionID {
		return errors.New("repository: UpdateSession: session ids must match")
	}
	if len(next.Messages) < len(prev.Messages) {
		return errors.New("repository: UpdateSession: message log cannot shrink")
	}
	if next.Version != prev.Version+1 {
		return fmt.Errorf("repository: UpdateSession: next version %d must follow %d", next.Version, prev.Version)
	}
	meta, err := metaItem(next)
	if err != nil {
		return fmt.Errorf("repository: UpdateSession: %w", err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(c.tableName),
			Item:                meta,
			ConditionExpression: aws.String("#version = :prev"),
			ExpressionAttributeNames: map[string]string{
				"#version": "version",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prev": &types.AttributeValueMemberN{Value: strconv.Itoa(prev.Version)},
			},
		},
	}}
	items = append(items, c.messagePuts(next.SessionID, next.Messages[len(prev.Messages):], len(prev.Messages))...)
	if err := c.transact(ctx, items); err != nil {
		return fmt.Errorf("repository: UpdateSession: %w", err)
	}
	return nil
}

// ListRecentSessions returns session summaries, most recently updated first.
func (c *Client) ListRecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		return nil, errors.New("repository: ListRecentSessions: limit must be positive")
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("GSI1PK = :all"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":all": &types.AttributeValueMemberS{Value: gsi1PKAll},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListRecentSessions query: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(out.Items))
	for _, item := range out.Items {
		conv, err := itemToConversation(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecentSessions decode: %w", err)
		}
		summaries = append(summaries, conv.Summary())
	}
	return summaries, nil
}

func (c *Client) messagePuts(sessionID string, msgs []domain.Message, firstSeq int) []types.TransactWriteItem {
	items := make([]types.TransactWriteItem, 0, len(msgs))
	for i, m := range msgs {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                messageItem(sessionID, firstSeq+i, m),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	return items
}

func (c *Client) transact(ctx context.Context, items []types.TransactWriteItem) error {
	if len(items) > maxTransactOp {
		return fmt.Errorf("too many writes in one transaction: %d", len(items))
	}
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, r := range canceled.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %w", ErrConflict, err)
			}
		}
	}
	return err
}

func metaItem(conv domain.Conversation) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(conv.Data)
	if err != nil {
		return nil, fmt.Errorf("encode collected data: %w", err)
	}
	updated := conv.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: sessionPK(conv.SessionID)},
		"SK":           &types.AttributeValueMemberS{Value: skMeta},
		"GSI1PK":       &types.AttributeValueMemberS{Value: gsi1PKAll},
		"GSI1SK":       &types.AttributeValueMemberS{Value: gsi1SK(conv.UpdatedAt)},
		"sessionId":    &types.AttributeValueMemberS{Value: conv.SessionID},
		"language":     &types.AttributeValueMemberS{Value: string(conv.Language)},
		"currentStep":  numAttr(int(conv.CurrentStep)),
		"status":       &types.AttributeValueMemberS{Value: string(conv.Status)},
		"title":        &types.AttributeValueMemberS{Value: conv.Title},
		"data":         &types.AttributeValueMemberS{Value: string(data)},
		"tokensInput":  numAttr(conv.Usage.Input),
		"tokensOutput": numAttr(conv.Usage.Output),
		"tokensTotal":  numAttr(conv.Usage.Total),
		"provider":     &types.AttributeValueMemberS{Value: conv.Provider},
		"version":      numAttr(conv.Version),
		"createdAt":    &types.AttributeValueMemberS{Value: conv.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"updatedAt":    &types.AttributeValueMemberS{Value: updated},
	}, nil
}

func gsi1SK(t time.Time) string {
	return t.UTC().Format(sortKeyTime)
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	var conv domain.Conversation
	var err error
	if conv.SessionID, err = strAttr(item, "sessionId"); err != nil {
		return conv, err
	}
	step, err := intAttr(item, "currentStep")
	if err != nil {
		return conv, err
	}
	conv.CurrentStep = domain.Step(step)
	status, err := strAttr(item, "status")
	if err != nil {
		return conv, err
	}
	conv.Status = domain.Status(status)
	if conv.Version, err = intAttr(item, "version"); err != nil {
		return conv, err
	}

	lang, _ := strAttr(item, "language")
	conv.Language = domain.Language(lang)
	conv.Title, _ = strAttr(item, "title")
	conv.Provider, _ = strAttr(item, "provider")
	conv.Usage.Input, _ = intAttr(item, "tokensInput")
	conv.Usage.Output, _ = intAttr(item, "tokensOutput")
	conv.Usage.Total, _ = intAttr(item, "tokensTotal")
	if conv.CreatedAt, err = timeAttr(item, "createdAt"); err != nil {
		return conv, err
	}
	if conv.UpdatedAt, err = timeAttr(item, "updatedAt"); err != nil {
		return conv, err
	}

	if raw, _ := strAttr(item, "data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &conv.Data); err != nil {
			return conv, fmt.Errorf("repository: decode collected data: %w", err)
		}
	}
	return conv, nil
}

func messageItem(sessionID string, seq int, m domain.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(seq)},
		"role":      &types.AttributeValueMemberS{Value: m.Role},
		"text":      &types.AttributeValueMemberS{Value: m.Text},
		"step":      numAttr(int(m.Step)),
		"timestamp": &types.AttributeValueMemberS{Value: m.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
	if m.Usage != nil {
		item["tokensInput"] = numAttr(m.Usage.Input)
		item["tokensOutput"] = numAttr(m.Usage.Output)
		item["tokensTotal"] = numAttr(m.Usage.Total)
	}
	return item
}

// itemToMessage converts a DynamoDB attribute map to a Message.
func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	step, err := intAttr(item, "step")
	if err != nil {
		return domain.Message{}, err
	}
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{Role: role, Text: text, Step: domain.Step(step), Timestamp: ts}
	if _, ok := item["tokensTotal"]; ok {
		var u domain.TokenUsage
		u.Input, _ = intAttr(item, "tokensInput")
		u.Output, _ = intAttr(item, "tokensOutput")
		u.Total, _ = intAttr(item, "tokensTotal")
		msg.Usage = &u
	}
	return msg, nil
}

func numAttr(n int) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
