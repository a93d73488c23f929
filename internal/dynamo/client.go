// Package dynamo provides DynamoDB-backed stores for entitlement records and
// payment history, compatible with the item layout of the existing users and
// payment-history tables.
package dynamo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tourism/internal/types"
)

// DynamoAPI is the subset of *dynamodb.Client used by the stores.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// NewClient builds a DynamoDB client. A non-empty endpoint overrides the
// regional endpoint (DynamoDB Local, LocalStack).
func NewClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// jst is the zone legacy rows were written in without an offset.
var jst = time.FixedZone("JST", 9*60*60)

// legacyLayouts are the offset-less ISO formats found in older items.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 and offset-less ISO timestamps. Offset-less
// values are read as JST. Unparseable input returns false.
func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, raw, jst); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringAttr(item map[string]ddbtypes.AttributeValue, name string) string {
	switch v := item[name].(type) {
	case *ddbtypes.AttributeValueMemberS:
		return v.Value
	case *ddbtypes.AttributeValueMemberN:
		return v.Value
	default:
		return ""
	}
}

// counterAttr reads a usage counter, coercing missing, non-numeric and
// negative values to zero.
func counterAttr(item map[string]ddbtypes.AttributeValue, name string) int {
	raw := stringAttr(item, name)
	if strings.Contains(raw, ".") {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			return int(f)
		}
		return 0
	}
	return types.ParseCounter(raw)
}

func timeAttr(item map[string]ddbtypes.AttributeValue, name string) *time.Time {
	t, ok := parseTime(stringAttr(item, name))
	if !ok {
		return nil
	}
	return &t
}

func sAttr(v string) ddbtypes.AttributeValue {
	return &ddbtypes.AttributeValueMemberS{Value: v}
}

func nAttr(v int64) ddbtypes.AttributeValue {
	return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
