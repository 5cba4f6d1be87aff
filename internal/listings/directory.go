package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-bookswap-orderflow/internal/aws"
)

// ErrListingNotFound is returned when a listing id is unknown.
var ErrListingNotFound = errors.New("listing not found")

// Listing is the subset of a book listing the swap service reads.
type Listing struct {
	ListingID string `dynamodbav:"listing_id"`
	OwnerID   string `dynamodbav:"owner_id"`
	Title     string `dynamodbav:"title,omitempty"`
}

// Directory reads listing ownership from the listings table owned by the catalogue service.
type Directory struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDirectory returns a Directory over tableName.
func NewDirectory(client aws.DynamoDBAPI, tableName string) *Directory {
	return &Directory{client: client, tableName: tableName}
}

// OwnerOf returns the user id that currently owns listingID.
func (d *Directory) OwnerOf(ctx context.Context, listingID string) (string, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &d.tableName,
		Key: map[string]types.AttributeValue{
			"listing_id": &types.AttributeValueMemberS{Value: listingID},
		},
		ProjectionExpression: awsString("listing_id, owner_id"),
	})
	if err != nil {
		return "", fmt.Errorf("get listing %s: %w", listingID, err)
	}
	if len(out.Item) == 0 {
		return "", ErrListingNotFound
	}
	var l Listing
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return "", fmt.Errorf("unmarshal listing: %w", err)
	}
	if l.OwnerID == "" {
		return "", fmt.Errorf("listing %s has no owner", listingID)
	}
	return l.OwnerID, nil
}

func awsString(s string) *string { return &s }
