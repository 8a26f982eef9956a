package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"listing-wizard/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	queryOuts    []*dynamodb.QueryOutput
	queryErr     error
	txErr        error
	lastGetInput *dynamodb.GetItemInput
	queryInputs  []*dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	// Copy so pagination updates to the shared input are observable per call.
	cp := *in
	f.queryInputs = append(f.queryInputs, &cp)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryOuts) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryOuts[0]
	f.queryOuts = f.queryOuts[1:]
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleConversation() domain.Conversation {
	return domain.Conversation{
		SessionID:   "abc",
		Language:    domain.LanguageEN,
		CurrentStep: domain.StepPropertyType,
		Status:      domain.StatusActive,
		Title:       "I want to rent out my flat",
		Data:        domain.CollectedData{Transaction: domain.TransactionRent},
		Messages: []domain.Message{
			{Role: domain.RoleAssistant, Text: "Welcome", Step: domain.StepTransaction, Timestamp: t0},
		},
		Version:   1,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestCreateSession_WritesMetaAndMessages(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.CreateSession(context.Background(), sampleConversation()))

	items := db.lastTxInput.TransactItems
	require.Len(t, items, 2)

	meta := items[0].Put
	require.Equal(t, "attribute_not_exists(PK)", aws.ToString(meta.ConditionExpression))
	require.Equal(t, &types.AttributeValueMemberS{Value: "SESSION#abc"}, meta.Item["PK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: skMeta}, meta.Item["SK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: gsi1PKAll}, meta.Item["GSI1PK"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "1"}, meta.Item["version"])

	msg := items[1].Put
	require.Equal(t, &types.AttributeValueMemberS{Value: "MSG#000000"}, msg.Item["SK"])
	require.Contains(t, aws.ToString(msg.ConditionExpression), "attribute_not_exists")
}

func TestCreateSession_DuplicateIsConflict(t *testing.T) {
	code := "ConditionalCheckFailed"
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code}},
	}}
	c := mustNewClient(t, db)

	err := c.CreateSession(context.Background(), sampleConversation())
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateSession_MissingID(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	conv := sampleConversation()
	conv.SessionID = ""
	require.Error(t, c.CreateSession(context.Background(), conv))
}

func TestUpdateSession_AppendsOnlyNewMessages(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	prev := sampleConversation()
	next := prev
	next.Version = 2
	next.CurrentStep = domain.StepFeatures
	next.Messages = append(append([]domain.Message(nil), prev.Messages...),
		domain.Message{Role: domain.RoleUser, Text: "apartment", Step: domain.StepPropertyType, Timestamp: t0},
		domain.Message{
			Role: domain.RoleAssistant, Text: "Describe it", Step: domain.StepFeatures, Timestamp: t0,
			Usage: &domain.TokenUsage{Input: 3, Output: 4, Total: 7},
		},
	)

	require.NoError(t, c.UpdateSession(context.Background(), prev, next))

	items := db.lastTxInput.TransactItems
	require.Len(t, items, 3)
	meta := items[0].Put
	require.Equal(t, "#version = :prev", aws.ToString(meta.ConditionExpression))
	require.Equal(t, &types.AttributeValueMemberN{Value: "1"}, meta.ExpressionAttributeValues[":prev"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "2"}, meta.Item["version"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "MSG#000001"}, items[1].Put.Item["SK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "MSG#000002"}, items[2].Put.Item["SK"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "7"}, items[2].Put.Item["tokensTotal"])
}

func TestUpdateSession_StaleVersionIsConflict(t *testing.T) {
	code := "ConditionalCheckFailed"
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: &code}},
	}}
	c := mustNewClient(t, db)
	prev := sampleConversation()
	next := prev
	next.Version = 2

	err := c.UpdateSession(context.Background(), prev, next)
	require.ErrorIs(t, err, ErrConflict)
}

func TestUpdateSession_OtherTransactErrorIsNotConflict(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("throttled")}
	c := mustNewClient(t, db)
	prev := sampleConversation()
	next := prev
	next.Version = 2

	err := c.UpdateSession(context.Background(), prev, next)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "UpdateSession")
}

func TestUpdateSession_RejectsBadInput(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	prev := sampleConversation()

	shrunk := prev
	shrunk.Version = 2
	shrunk.Messages = nil
	require.Error(t, c.UpdateSession(context.Background(), prev, shrunk))

	sameVersion := prev
	require.Error(t, c.UpdateSession(context.Background(), prev, sameVersion))

	other := prev
	other.SessionID = "xyz"
	other.Version = 2
	require.Error(t, c.UpdateSession(context.Background(), prev, other))
}

func TestGetSession_RoundTripsMetaAndPaginatedMessages(t *testing.T) {
	conv := sampleConversation()
	conv.Usage = domain.TokenUsage{Input: 10, Output: 20, Total: 30}
	conv.Provider = "gemini"
	meta, err := metaItem(conv)
	require.NoError(t, err)

	second := domain.Message{
		Role: domain.RoleUser, Text: "rent", Step: domain.StepTransaction, Timestamp: t0.Add(time.Second),
	}
	db := &fakeDynamo{
		getOut: &dynamodb.GetItemOutput{Item: meta},
		queryOuts: []*dynamodb.QueryOutput{
			{
				Items:            []map[string]types.AttributeValue{messageItem("abc", 0, conv.Messages[0])},
				LastEvaluatedKey: map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "SESSION#abc"}},
			},
			{Items: []map[string]types.AttributeValue{messageItem("abc", 1, second)}},
		},
	}
	c := mustNewClient(t, db)

	got, err := c.GetSession(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", got.SessionID)
	require.Equal(t, domain.StepPropertyType, got.CurrentStep)
	require.Equal(t, domain.TransactionRent, got.Data.Transaction)
	require.Equal(t, conv.Usage, got.Usage)
	require.Equal(t, "gemini", got.Provider)
	require.Equal(t, 1, got.Version)
	require.True(t, t0.Equal(got.CreatedAt))
	require.Len(t, got.Messages, 2)
	require.Equal(t, "rent", got.Messages[1].Text)
	require.Nil(t, got.Messages[0].Usage)

	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))
	require.Len(t, db.queryInputs, 2)
	require.Nil(t, db.queryInputs[0].ExclusiveStartKey)
	require.NotNil(t, db.queryInputs[1].ExclusiveStartKey)
}

func TestGetSession_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	_, err := c.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetSession_GetItemError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, err := c.GetSession(context.Background(), "abc")
	require.ErrorContains(t, err, "GetSession")
}

func TestGetSession_MalformedMeta(t *testing.T) {
	meta, err := metaItem(sampleConversation())
	require.NoError(t, err)
	meta["version"] = &types.AttributeValueMemberS{Value: "one"}

	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: meta}})
	_, err = c.GetSession(context.Background(), "abc")
	require.ErrorContains(t, err, "decode meta")
}

func TestGetSession_QueryError(t *testing.T) {
	meta, err := metaItem(sampleConversation())
	require.NoError(t, err)
	c := mustNewClient(t, &fakeDynamo{
		getOut:   &dynamodb.GetItemOutput{Item: meta},
		queryErr: errors.New("boom"),
	})
	_, err = c.GetSession(context.Background(), "abc")
	require.ErrorContains(t, err, "query messages")
}

func TestListRecentSessions(t *testing.T) {
	older := sampleConversation()
	newer := sampleConversation()
	newer.SessionID = "def"
	newer.UpdatedAt = t0.Add(time.Hour)
	newerItem, err := metaItem(newer)
	require.NoError(t, err)
	olderItem, err := metaItem(older)
	require.NoError(t, err)

	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{newerItem, olderItem}},
	}}
	c := mustNewClient(t, db)

	got, err := c.ListRecentSessions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "def", got[0].SessionID)

	in := db.queryInputs[0]
	require.Equal(t, gsi1Name, aws.ToString(in.IndexName))
	require.False(t, aws.ToBool(in.ScanIndexForward))
	require.Equal(t, int32(5), aws.ToInt32(in.Limit))
}

func TestListRecentSessions_InvalidLimit(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	_, err := c.ListRecentSessions(context.Background(), 0)
	require.Error(t, err)
}

func TestMsgSK_SortsLexically(t *testing.T) {
	require.Less(t, msgSK(9), msgSK(10))
	require.Less(t, msgSK(99), msgSK(100))
}

func TestGSI1SK_SortsInTimeOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(100 * time.Millisecond),
		base.Add(120 * time.Millisecond),
		base.Add(123 * time.Millisecond),
		base.Add(time.Second),
	}
	for i := 1; i < len(times); i++ {
		require.Less(t, gsi1SK(times[i-1]), gsi1SK(times[i]))
	}

	item, err := metaItem(domain.Conversation{SessionID: "s-1", UpdatedAt: base.Add(120 * time.Millisecond)})
	require.NoError(t, err)
	require.Equal(t, &types.AttributeValueMemberS{Value: "2026-03-01T12:00:00.120000000Z"}, item["GSI1SK"])
}
