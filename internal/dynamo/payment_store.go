package dynamo

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tourism/internal/types"
)

// Payment history attribute names. The table is keyed by (userId, paymentId)
// where paymentId is the Stripe checkout session ID.
const (
	attrPayUserID    = "userId"
	attrPayID        = "paymentId"
	attrPayIntentID  = "paymentIntentId"
	attrPayAmount    = "amount"
	attrPayCurrency  = "currency"
	attrPayPlanType  = "planType"
	attrPayStatus    = "status"
	attrPayProvider  = "provider"
	attrPayCreatedAt = "createdAt"
	attrPayUpdatedAt = "updatedAt"
)

// PaymentStore writes captured checkout sessions to the payment history table.
type PaymentStore struct {
	client DynamoAPI
	table  string
}

// NewPaymentStore creates a PaymentStore for table.
func NewPaymentStore(client DynamoAPI, table string) *PaymentStore {
	return &PaymentStore{client: client, table: table}
}

// RecordPayment stores p unless the session was already recorded, in which
// case it returns (false, nil).
func (s *PaymentStore) RecordPayment(ctx context.Context, p types.PaymentRecord) (bool, error) {
	created := formatTime(p.CreatedAt)
	item := map[string]ddbtypes.AttributeValue{
		attrPayUserID:    sAttr(p.UserID),
		attrPayID:        sAttr(p.SessionID),
		attrPayAmount:    nAttr(p.Amount),
		attrPayCurrency:  sAttr(p.Currency),
		attrPayPlanType:  sAttr(p.PlanKey),
		attrPayStatus:    sAttr(string(p.Status)),
		attrPayProvider:  sAttr(p.Provider),
		attrPayCreatedAt: sAttr(created),
		attrPayUpdatedAt: sAttr(created),
	}
	if p.PaymentIntentID != "" {
		item[attrPayIntentID] = sAttr(p.PaymentIntentID)
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pid)"),
		ExpressionAttributeNames: map[string]string{
			"#pid": attrPayID,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeUpstreamStore, "failed to record payment", err)
	}
	return true, nil
}

// ListByUser returns up to limit payments for userID, newest first.
func (s *PaymentStore) ListByUser(ctx context.Context, userID string, limit int) ([]types.PaymentRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var (
		out   []types.PaymentRecord
		start map[string]ddbtypes.AttributeValue
	)
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#uid = :uid"),
			ExpressionAttributeNames: map[string]string{
				"#uid": attrPayUserID,
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":uid": sAttr(userID),
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamStore, "failed to list payments", err)
		}
		for _, item := range resp.Items {
			out = append(out, decodePayment(item))
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		start = resp.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func decodePayment(item map[string]ddbtypes.AttributeValue) types.PaymentRecord {
	p := types.PaymentRecord{
		ID:              stringAttr(item, attrPayID),
		UserID:          stringAttr(item, attrPayUserID),
		SessionID:       stringAttr(item, attrPayID),
		PaymentIntentID: stringAttr(item, attrPayIntentID),
		PlanKey:         stringAttr(item, attrPayPlanType),
		Amount:          int64(counterAttr(item, attrPayAmount)),
		Currency:        stringAttr(item, attrPayCurrency),
		Status:          types.PaymentStatus(stringAttr(item, attrPayStatus)),
		Provider:        stringAttr(item, attrPayProvider),
	}
	if t := timeAttr(item, attrPayCreatedAt); t != nil {
		p.CreatedAt = *t
	}
	return p
}
