package dynamo

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"tourism/internal/types"
)

// Users table attribute names.
const (
	attrUserID       = "user_id"
	attrUserType     = "user_type"
	attrExpiry       = "premium_expiry"
	attrMonthlyCount = "monthly_analysis_count"
	attrTotalCount   = "total_analysis_count"
	attrCreatedAt    = "created_at"
	attrUpdatedAt    = "updated_at"
)

// EntitlementStore keeps entitlement records in the users table, keyed by user_id.
// It implements entitlement.Store.
//
// Counters are only ever changed with an ADD update expression so concurrent
// increments are never lost. Reads are strongly consistent.
type EntitlementStore struct {
	client DynamoAPI
	table  string
	logger *slog.Logger
}

// NewEntitlementStore creates an EntitlementStore for table.
func NewEntitlementStore(client DynamoAPI, table string, logger *slog.Logger) *EntitlementStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementStore{client: client, table: table, logger: logger}
}

// Get returns the record for userID, or (nil, nil) if the item does not exist.
func (s *EntitlementStore) Get(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]ddbtypes.AttributeValue{attrUserID: sAttr(userID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStore, "failed to get entitlement item", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeRecord(userID, out.Item), nil
}

func decodeRecord(userID string, item map[string]ddbtypes.AttributeValue) *types.EntitlementRecord {
	rec := &types.EntitlementRecord{
		UserID:            userID,
		PlanType:          types.PlanType(stringAttr(item, attrUserType)),
		PremiumExpiresAt:  timeAttr(item, attrExpiry),
		MonthlyUsageCount: counterAttr(item, attrMonthlyCount),
		TotalUsageCount:   counterAttr(item, attrTotalCount),
	}
	if t := timeAttr(item, attrCreatedAt); t != nil {
		rec.CreatedAt = *t
	}
	if t := timeAttr(item, attrUpdatedAt); t != nil {
		rec.UpdatedAt = *t
	}
	rec.Sanitize()
	return rec
}

// PutIfAbsent writes rec guarded by attribute_not_exists(user_id).
// A failed condition means another request created the item first.
func (s *EntitlementStore) PutIfAbsent(ctx context.Context, rec *types.EntitlementRecord) error {
	item := map[string]ddbtypes.AttributeValue{
		attrUserID:       sAttr(rec.UserID),
		attrUserType:     sAttr(string(types.ParsePlanType(string(rec.PlanType)))),
		attrMonthlyCount: nAttr(int64(max(rec.MonthlyUsageCount, 0))),
		attrTotalCount:   nAttr(int64(max(rec.TotalUsageCount, 0))),
		attrCreatedAt:    sAttr(formatTime(rec.CreatedAt)),
		attrUpdatedAt:    sAttr(formatTime(rec.UpdatedAt)),
	}
	if rec.PremiumExpiresAt != nil {
		item[attrExpiry] = sAttr(formatTime(*rec.PremiumExpiresAt))
	} else {
		item[attrExpiry] = &ddbtypes.AttributeValueMemberNULL{Value: true}
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#uid)"),
		ExpressionAttributeNames: map[string]string{
			"#uid": attrUserID,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil
		}
		return types.NewAppError(types.ErrCodeUpstreamStore, "failed to create entitlement item", err)
	}
	return nil
}

// Update applies m with a single UpdateItem call. A missing item is created
// with created_at and a free plan filled in.
//
// Legacy items may hold a counter as a string, which ADD rejects. Such items
// have their counters rewritten as numbers and the update is tried once more.
func (s *EntitlementStore) Update(ctx context.Context, userID string, m types.RecordMutation) error {
	err := s.update(ctx, userID, m)
	if err != nil && m.UsageIncrement != 0 && isTypeMismatch(err) {
		s.logger.WarnContext(ctx, "usage counter has a non-numeric type, repairing",
			"user_id", userID, "code", types.ErrCodeInternalMalformedRecord, "error", err)
		if err = s.repairCounters(ctx, userID); err == nil {
			err = s.update(ctx, userID, m)
		}
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStore, "failed to update entitlement item", err)
	}
	return nil
}

func (s *EntitlementStore) update(ctx context.Context, userID string, m types.RecordMutation) error {
	expr, names, values := buildUpdate(m)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       map[string]ddbtypes.AttributeValue{attrUserID: sAttr(userID)},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// repairCounters rewrites both counters as numbers holding their coerced
// values. The write is conditioned on the raw values it read, so a concurrent
// repair or increment wins and this one is dropped.
func (s *EntitlementStore) repairCounters(ctx context.Context, userID string) error {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]ddbtypes.AttributeValue{attrUserID: sAttr(userID)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return err
	}

	names := map[string]string{"#monthly": attrMonthlyCount, "#total": attrTotalCount}
	values := map[string]ddbtypes.AttributeValue{
		":monthly": nAttr(int64(counterAttr(out.Item, attrMonthlyCount))),
		":total":   nAttr(int64(counterAttr(out.Item, attrTotalCount))),
	}
	var cond []string
	for placeholder, attr := range map[string]string{"#monthly": attrMonthlyCount, "#total": attrTotalCount} {
		if raw, ok := out.Item[attr]; ok {
			key := ":old" + strings.TrimPrefix(placeholder, "#")
			values[key] = raw
			cond = append(cond, placeholder+" = "+key)
		} else {
			cond = append(cond, "attribute_not_exists("+placeholder+")")
		}
	}
	sort.Strings(cond)

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       map[string]ddbtypes.AttributeValue{attrUserID: sAttr(userID)},
		UpdateExpression:          aws.String("SET #monthly = :monthly, #total = :total"),
		ConditionExpression:       aws.String(strings.Join(cond, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil && !isConditionFailed(err) {
		return err
	}
	return nil
}

// buildUpdate renders a RecordMutation as an update expression.
func buildUpdate(m types.RecordMutation) (string, map[string]string, map[string]ddbtypes.AttributeValue) {
	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	names := map[string]string{
		"#updated": attrUpdatedAt,
		"#created": attrCreatedAt,
		"#type":    attrUserType,
	}
	values := map[string]ddbtypes.AttributeValue{
		":updated": sAttr(formatTime(updatedAt)),
	}
	set := []string{
		"#updated = :updated",
		"#created = if_not_exists(#created, :updated)",
	}
	var remove []string

	if m.Plan != nil {
		set = append(set, "#type = :type")
		values[":type"] = sAttr(string(m.Plan.Type))
		names["#expiry"] = attrExpiry
		if m.Plan.ExpiresAt != nil {
			set = append(set, "#expiry = :expiry")
			values[":expiry"] = sAttr(formatTime(*m.Plan.ExpiresAt))
		} else {
			remove = append(remove, "#expiry")
		}
	} else {
		set = append(set, "#type = if_not_exists(#type, :free)")
		values[":free"] = sAttr(string(types.PlanTypeFree))
	}

	expr := "SET " + strings.Join(set, ", ")
	if m.UsageIncrement != 0 {
		names["#monthly"] = attrMonthlyCount
		names["#total"] = attrTotalCount
		values[":inc"] = nAttr(int64(m.UsageIncrement))
		expr += " ADD #monthly :inc, #total :inc"
	}
	if len(remove) > 0 {
		expr += " REMOVE " + strings.Join(remove, ", ")
	}
	return expr, names, values
}

// isTypeMismatch reports DynamoDB's rejection of ADD on a non-numeric attribute.
func isTypeMismatch(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ValidationException" {
		return false
	}
	return strings.Contains(apiErr.ErrorMessage(), "incorrect data type")
}

func isConditionFailed(err error) bool {
	var ccf *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
