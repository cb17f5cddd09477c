package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PutItemAPI is the subset of the DynamoDB client the anchor uses
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type anchorItem struct {
	RecordKey  string    `dynamodbav:"record_key"`
	Kind       string    `dynamodbav:"kind"`
	RecordID   string    `dynamodbav:"record_id"`
	Digest     string    `dynamodbav:"digest"`
	Payload    string    `dynamodbav:"payload"`
	RecordedAt time.Time `dynamodbav:"recorded_at"`
	AnchoredAt time.Time `dynamodbav:"anchored_at"`
}

// DynamoAnchor appends records to a DynamoDB table keyed by kind and id.
// Items are written with attribute_not_exists so an anchored record is
// never overwritten; re-anchoring the same record yields the same receipt.
type DynamoAnchor struct {
	client PutItemAPI
	table  string
	now    func() time.Time
}

func NewDynamoAnchor(client PutItemAPI, table string) *DynamoAnchor {
	return &DynamoAnchor{client: client, table: table, now: time.Now}
}

func (a *DynamoAnchor) Anchor(ctx context.Context, rec Record) (string, error) {
	digest, err := rec.Digest()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return "", fmt.Errorf("encode anchor payload: %w", err)
	}

	key := rec.Kind + "#" + rec.ID
	item, err := attributevalue.MarshalMap(anchorItem{
		RecordKey:  key,
		Kind:       rec.Kind,
		RecordID:   rec.ID,
		Digest:     digest,
		Payload:    string(payload),
		RecordedAt: rec.At.UTC(),
		AnchoredAt: a.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal anchor item: %w", err)
	}

	receipt := fmt.Sprintf("dynamodb:%s/%s@%s", a.table, key, digest)
	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(a.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(record_key)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return receipt, nil
		}
		return "", fmt.Errorf("put anchor item: %w", err)
	}
	return receipt, nil
}
