package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoAPI is the subset of the DynamoDB client the store uses.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// dynamoItem is the stored shape. PK carries the cache key.
type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	Payload   []byte `dynamodbav:"Payload"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

// DynamoStore keeps entries in a DynamoDB table with a string hash key PK.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a store over tableName.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return newDynamoStore(client, tableName)
}

func newDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (*Entry, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting item from DynamoDB: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) Put(ctx context.Context, key string, payload []byte) error {
	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:        key,
		Payload:   payload,
		UpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	items, err := s.scan(ctx, prefix, true)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: it.Key}},
		})
		if err != nil {
			return n, fmt.Errorf("deleting item from DynamoDB: %w", err)
		}
		n++
	}
	return n, nil
}

func (s *DynamoStore) Latest(ctx context.Context, prefix string) (*Entry, error) {
	items, err := s.scan(ctx, prefix, false)
	if err != nil {
		return nil, err
	}
	var latest *Entry
	for i := range items {
		if latest == nil || newer(items[i], *latest) {
			latest = &items[i]
		}
	}
	return latest, nil
}

// scan pages through every item whose PK begins with prefix. keysOnly skips
// the payload attribute.
func (s *DynamoStore) scan(ctx context.Context, prefix string, keysOnly bool) ([]Entry, error) {
	in := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}
	if prefix != "" {
		in.FilterExpression = aws.String("begins_with(PK, :p)")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: prefix},
		}
	}
	if keysOnly {
		in.ProjectionExpression = aws.String("PK, UpdatedAt")
	}

	var entries []Entry
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scanning DynamoDB: %w", err)
		}
		for _, item := range out.Items {
			e, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, *e)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func decodeItem(item map[string]types.AttributeValue) (*Entry, error) {
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	e := &Entry{Key: it.PK, Payload: it.Payload}
	if ts, err := time.Parse(time.RFC3339Nano, it.UpdatedAt); err == nil {
		e.UpdatedAt = ts
	}
	return e, nil
}
