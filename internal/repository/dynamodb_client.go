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

	"realestate-bot/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client archives resolved turns in a single DynamoDB table. The archive is
// write-mostly; nothing reads it back into the live conversation history.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// senderPK returns the DynamoDB partition key for a sender.
func senderPK(senderKey string) string {
	return "SENDER#" + senderKey
}

// turnSK orders turns chronologically within a sender partition.
func turnSK(ts time.Time, turnID string) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano) + "#" + turnID
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// RecordTurn writes the turn item and bumps the sender's META counters in
// one transaction. A turn id is written at most once.
func (c *Client) RecordTurn(ctx context.Context, rec domain.TurnRecord) error {
	if rec.SenderKey == "" || rec.TurnID == "" {
		return errors.New("repository: RecordTurn: sender key and turn id are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.now()
	}
	ttl := strconv.FormatInt(c.ttlValue(), 10)

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(rec, ttl),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(c.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: senderPK(rec.SenderKey)},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("SET displayName = :name, lastActivity = :la, #ttl = :ttl ADD turns :one"),
					ExpressionAttributeNames: map[string]string{
						"#ttl": "ttl",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":name": &types.AttributeValueMemberS{Value: rec.DisplayName},
						":la":   &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
						":ttl":  &types.AttributeValueMemberN{Value: ttl},
						":one":  &types.AttributeValueMemberN{Value: "1"},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	return nil
}

// SenderStats returns the aggregate counters for a sender. A sender with no
// archived turns yields zero stats and no error.
func (c *Client) SenderStats(ctx context.Context, senderKey string) (domain.SenderStats, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: senderPK(senderKey)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SenderStats{}, fmt.Errorf("repository: SenderStats get item: %w", err)
	}
	stats := domain.SenderStats{SenderKey: senderKey}
	if out == nil || len(out.Item) == 0 {
		return stats, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return domain.SenderStats{}, fmt.Errorf("repository: SenderStats decode turns: %w", err)
	}
	stats.Turns = turns
	stats.DisplayName, _ = strAttr(out.Item, "displayName")
	if la, _ := strAttr(out.Item, "lastActivity"); la != "" {
		if ts, perr := time.Parse(time.RFC3339Nano, la); perr == nil {
			stats.LastActivity = ts
		}
	}
	return stats, nil
}

// RecentTurns returns up to limit of the sender's latest turns, oldest first.
func (c *Client) RecentTurns(ctx context.Context, senderKey string, limit int) ([]domain.TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: senderPK(senderKey)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so LIMIT favors the most recent turns.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentTurns query: %w", err)
	}

	recs := make([]domain.TurnRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentTurns unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func turnItem(rec domain.TurnRecord, ttl string) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: senderPK(rec.SenderKey)},
		"SK":          &types.AttributeValueMemberS{Value: turnSK(rec.CreatedAt, rec.TurnID)},
		"turnId":      &types.AttributeValueMemberS{Value: rec.TurnID},
		"sender":      &types.AttributeValueMemberS{Value: rec.SenderKey},
		"displayName": &types.AttributeValueMemberS{Value: rec.DisplayName},
		"question":    &types.AttributeValueMemberS{Value: rec.Question},
		"answer":      &types.AttributeValueMemberS{Value: rec.Answer},
		"fragments":   &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Fragments)},
		"status":      &types.AttributeValueMemberS{Value: rec.Status},
		"createdAt":   &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":         &types.AttributeValueMemberN{Value: ttl},
	}
	if rec.FailureCode != "" {
		item["failureCode"] = &types.AttributeValueMemberS{Value: rec.FailureCode}
		item["failureReason"] = &types.AttributeValueMemberS{Value: rec.FailureReason}
	}
	if len(rec.PropertyIDs) > 0 {
		ids := make([]types.AttributeValue, 0, len(rec.PropertyIDs))
		for _, id := range rec.PropertyIDs {
			ids = append(ids, &types.AttributeValueMemberS{Value: id})
		}
		item["propertyIds"] = &types.AttributeValueMemberL{Value: ids}
	}
	return item
}

func itemToTurn(item map[string]types.AttributeValue) (domain.TurnRecord, error) {
	turnID, err := strAttr(item, "turnId")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	sender, err := strAttr(item, "sender")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.TurnRecord{}, err
	}
	rec := domain.TurnRecord{
		TurnID:    turnID,
		SenderKey: sender,
		Question:  question,
	}
	rec.DisplayName, _ = strAttr(item, "displayName") // allow empty
	rec.Answer, _ = strAttr(item, "answer")
	rec.Status, _ = strAttr(item, "status")
	rec.Fragments, _ = intAttr(item, "fragments")
	rec.FailureCode, _ = strAttr(item, "failureCode")
	rec.FailureReason, _ = strAttr(item, "failureReason")
	if created, _ := strAttr(item, "createdAt"); created != "" {
		if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			rec.CreatedAt = ts
		}
	}
	if l, ok := item["propertyIds"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				rec.PropertyIDs = append(rec.PropertyIDs, s.Value)
			}
		}
	}
	return rec, nil
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
