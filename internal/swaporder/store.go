package swaporder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
)

// Condition expressions used by the store. Save refuses to overwrite a stale version or a
// terminal record, so concurrent commands against one order serialize on the version.
const (
	createCondition = "attribute_not_exists(order_id)"
	saveCondition   = "version = :expected AND NOT (#s IN (:completed, :cancelled))"
)

var (
	// ErrVersionConflict means another command committed first; reload and re-apply.
	ErrVersionConflict = errors.New("swap order version conflict")
	// ErrOrderExists is returned by Create when the order id is taken.
	ErrOrderExists = errors.New("swap order already exists")
)

// Store encapsulates operations on the swap orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new swap orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order at version 1.
func (s *Store) Create(ctx context.Context, o *SwapOrder) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.nowFunc()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	o.Version = 1

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal swap order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(createCondition),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrOrderExists
		}
		return fmt.Errorf("put swap order: %w", err)
	}
	return nil
}

// Get fetches an order with a strongly consistent read. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*SwapOrder, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o SwapOrder
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal swap order: %w", err)
	}
	return &o, nil
}

// Save writes o if the stored version still equals expectedVersion and the stored record is
// not terminal. On success o.Version is expectedVersion+1. Returns ErrVersionConflict if the
// condition failed.
func (s *Store) Save(ctx context.Context, o *SwapOrder, expectedVersion int64) error {
	if err := o.Validate(); err != nil {
		return err
	}
	next := *o
	next.Version = expectedVersion + 1

	item, err := attributevalue.MarshalMap(&next)
	if err != nil {
		return fmt.Errorf("marshal swap order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(saveCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected":  &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
			":completed": &types.AttributeValueMemberS{Value: string(StatusCompleted)},
			":cancelled": &types.AttributeValueMemberS{Value: string(StatusCancelled)},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put swap order: %w", err)
	}
	o.Version = next.Version
	return nil
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
