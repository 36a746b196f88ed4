package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	partitionKey = "pk"

	documentKeyViewers = "viewers"

	dynamoDBOperationTimeout = 5 * time.Second
)

// ErrEmptyViewerID is returned when a write is attempted without a viewer ID.
var ErrEmptyViewerID = errors.New("empty viewer id")

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Document is the single presence item kept in the table.
type Document struct {
	ViewerIDs   []string `dynamodbav:"viewerIds,stringset,omitempty"`
	ViewerCount int      `dynamodbav:"viewerCount"`
	UpdatedAt   int64    `dynamodbav:"updatedAt"`
}

// Store writes the connected-viewer set to DynamoDB.
type Store struct {
	logger    *zap.Logger
	client    DynamoDBAPI
	tableName string
}

func NewStore(logger *zap.Logger, client DynamoDBAPI, tableName string) *Store {
	return &Store{
		logger:    logger,
		client:    client,
		tableName: tableName,
	}
}

func (s *Store) AddViewer(ctx context.Context, id string, viewers int, at time.Time) error {
	return s.updateViewers(ctx, "ADD", id, viewers, at)
}

func (s *Store) RemoveViewer(ctx context.Context, id string, viewers int, at time.Time) error {
	return s.updateViewers(ctx, "DELETE", id, viewers, at)
}

func (s *Store) updateViewers(ctx context.Context, action, id string, viewers int, at time.Time) error {
	if id == "" {
		return ErrEmptyViewerID
	}

	ctx, cancel := context.WithTimeout(ctx, dynamoDBOperationTimeout)
	defer cancel()

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.viewersKey(),
		UpdateExpression: aws.String(fmt.Sprintf("SET viewerCount = :count, updatedAt = :ts %s viewerIds :id", action)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":    &types.AttributeValueMemberSS{Value: []string{id}},
			":count": &types.AttributeValueMemberN{Value: strconv.Itoa(viewers)},
			":ts":    &types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixMilli(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("update viewers item: %w", err)
	}
	s.logger.Debug("presence updated",
		zap.String("action", action),
		zap.String("viewerID", id),
		zap.Int("viewers", viewers))
	return nil
}

// Clear replaces the document with an empty one. Viewer sessions never
// survive a restart, so anything left from a previous process is stale.
func (s *Store) Clear(ctx context.Context, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dynamoDBOperationTimeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(Document{UpdatedAt: at.UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal viewers document: %w", err)
	}
	item[partitionKey] = &types.AttributeValueMemberS{Value: documentKeyViewers}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put viewers item: %w", err)
	}
	s.logger.Info("presence document cleared", zap.String("table", s.tableName))
	return nil
}

// Get reads the mirrored document. A missing document reads as empty.
func (s *Store) Get(ctx context.Context) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, dynamoDBOperationTimeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key:            s.viewersKey(),
	})
	if err != nil {
		return Document{}, fmt.Errorf("get viewers item: %w", err)
	}
	if len(result.Item) == 0 {
		return Document{}, nil
	}

	var doc Document
	if err := attributevalue.UnmarshalMap(result.Item, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal viewers document: %w", err)
	}
	return doc, nil
}

func (s *Store) viewersKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: documentKeyViewers},
	}
}
