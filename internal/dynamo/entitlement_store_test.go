package dynamo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tourism/internal/entitlement"
	"tourism/internal/types"
)

var _ entitlement.Store = (*EntitlementStore)(nil)

var testNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func TestEntitlementStore_Get_DecodesItem(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)

	client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return aws.ToString(in.TableName) == "users" && aws.ToBool(in.ConsistentRead)
	})).Return(&dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
		"user_id":                sAttr("u1"),
		"user_type":              sAttr("premium_7days"),
		"premium_expiry":         sAttr("2026-04-12T09:00:00Z"),
		"monthly_analysis_count": nAttr(3),
		"total_analysis_count":   nAttr(17),
		"created_at":             sAttr("2026-01-01T00:00:00Z"),
	}}, nil)

	rec, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, types.PlanTypePremium7Days, rec.PlanType)
	require.NotNil(t, rec.PremiumExpiresAt)
	assert.Equal(t, time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC), *rec.PremiumExpiresAt)
	assert.Equal(t, 3, rec.MonthlyUsageCount)
	assert.Equal(t, 17, rec.TotalUsageCount)
	client.AssertExpectations(t)
}

func TestEntitlementStore_Get_LegacyAndMalformedValues(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)

	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
		"user_id":                sAttr("u1"),
		"user_type":              sAttr("premium_20days"),
		"premium_expiry":         sAttr("2026-04-12T18:00:00.123456"),
		"monthly_analysis_count": sAttr("three"),
		"total_analysis_count":   nAttr(-2),
	}}, nil)

	rec, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, rec.PremiumExpiresAt)
	assert.Equal(t, time.Date(2026, 4, 12, 9, 0, 0, 123456000, time.UTC), *rec.PremiumExpiresAt)
	assert.Zero(t, rec.MonthlyUsageCount)
	assert.Zero(t, rec.TotalUsageCount)
}

func TestEntitlementStore_Get_UnknownPlanAndNullExpiry(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)

	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
		"user_id":        sAttr("u1"),
		"user_type":      sAttr("premium"),
		"premium_expiry": &ddbtypes.AttributeValueMemberNULL{Value: true},
	}}, nil)

	rec, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, types.PlanTypeFree, rec.PlanType)
	assert.Nil(t, rec.PremiumExpiresAt)
}

func TestEntitlementStore_Get_Missing(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	rec, err := store.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEntitlementStore_Get_Error(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)
	client.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	_, err := store.Get(context.Background(), "u1")
	assert.True(t, types.HasCode(err, types.ErrCodeUpstreamStore))
}

func TestEntitlementStore_PutIfAbsent(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		typ, _ := in.Item["user_type"].(*ddbtypes.AttributeValueMemberS)
		cnt, _ := in.Item["monthly_analysis_count"].(*ddbtypes.AttributeValueMemberN)
		return aws.ToString(in.ConditionExpression) == "attribute_not_exists(#uid)" &&
			typ != nil && typ.Value == "free" && cnt != nil && cnt.Value == "0"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	require.NoError(t, store.PutIfAbsent(context.Background(), types.NewFreeRecord("u1", testNow)))
	client.AssertExpectations(t)
}

func TestEntitlementStore_PutIfAbsent_AlreadyExists(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)
	client.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &ddbtypes.ConditionalCheckFailedException{Message: aws.String("exists")})

	assert.NoError(t, store.PutIfAbsent(context.Background(), types.NewFreeRecord("u1", testNow)))
}

func TestEntitlementStore_PutIfAbsent_Error(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)
	client.On("PutItem", mock.Anything, mock.Anything).Return(nil, errors.New("network"))

	err := store.PutIfAbsent(context.Background(), types.NewFreeRecord("u1", testNow))
	assert.True(t, types.HasCode(err, types.ErrCodeUpstreamStore))
}

func TestBuildUpdate_Increment(t *testing.T) {
	expr, names, values := buildUpdate(types.RecordMutation{UsageIncrement: 1, UpdatedAt: testNow})

	assert.True(t, strings.HasPrefix(expr, "SET "))
	assert.Contains(t, expr, "ADD #monthly :inc, #total :inc")
	assert.Contains(t, expr, "#type = if_not_exists(#type, :free)")
	assert.NotContains(t, expr, "REMOVE")
	assert.Equal(t, "monthly_analysis_count", names["#monthly"])
	assert.Equal(t, &ddbtypes.AttributeValueMemberN{Value: "1"}, values[":inc"])
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "2026-04-10T12:00:00Z"}, values[":updated"])
}

func TestBuildUpdate_Grant(t *testing.T) {
	expiry := testNow.Add(7 * 24 * time.Hour)
	expr, names, values := buildUpdate(types.RecordMutation{
		Plan:      &types.PlanChange{Type: types.PlanTypePremium7Days, ExpiresAt: &expiry},
		UpdatedAt: testNow,
	})

	assert.Contains(t, expr, "#type = :type")
	assert.Contains(t, expr, "#expiry = :expiry")
	assert.NotContains(t, expr, "ADD")
	assert.Equal(t, "premium_expiry", names["#expiry"])
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "premium_7days"}, values[":type"])
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "2026-04-17T12:00:00Z"}, values[":expiry"])
}

func TestBuildUpdate_Downgrade(t *testing.T) {
	expr, _, values := buildUpdate(types.RecordMutation{
		Plan:      &types.PlanChange{Type: types.PlanTypeFree},
		UpdatedAt: testNow,
	})

	assert.Contains(t, expr, "REMOVE #expiry")
	assert.NotContains(t, expr, "ADD")
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "free"}, values[":type"])
	_, hasExpiry := values[":expiry"]
	assert.False(t, hasExpiry)
}

func TestEntitlementStore_Update(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		key, _ := in.Key["user_id"].(*ddbtypes.AttributeValueMemberS)
		return key != nil && key.Value == "u1" && strings.Contains(aws.ToString(in.UpdateExpression), "ADD")
	})).Return(&dynamodb.UpdateItemOutput{}, nil)

	require.NoError(t, store.Update(context.Background(), "u1", types.RecordMutation{UsageIncrement: 1, UpdatedAt: testNow}))
	client.AssertExpectations(t)
}

func TestEntitlementStore_Update_Error(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)
	client.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := store.Update(context.Background(), "u1", types.RecordMutation{UsageIncrement: 1, UpdatedAt: testNow})
	assert.True(t, types.HasCode(err, types.ErrCodeUpstreamStore))
}

func TestEntitlementStore_Update_RepairsStringCounters(t *testing.T) {
	client := new(mockDynamo)
	var logs bytes.Buffer
	store := NewEntitlementStore(client, "users", slog.New(slog.NewJSONHandler(&logs, nil)))
	isIncrement := func(in *dynamodb.UpdateItemInput) bool {
		return strings.Contains(aws.ToString(in.UpdateExpression), "ADD")
	}
	mismatch := &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: "An operand in the update expression has an incorrect data type",
	}

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(isIncrement)).Return(nil, mismatch).Once()
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
		"user_id":                sAttr("u1"),
		"monthly_analysis_count": sAttr("2"),
		"total_analysis_count":   nAttr(9),
	}}, nil).Once()
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		if isIncrement(in) {
			return false
		}
		monthly, _ := in.ExpressionAttributeValues[":monthly"].(*ddbtypes.AttributeValueMemberN)
		old, _ := in.ExpressionAttributeValues[":oldmonthly"].(*ddbtypes.AttributeValueMemberS)
		return monthly != nil && monthly.Value == "2" && old != nil && old.Value == "2" &&
			aws.ToString(in.ConditionExpression) == "#monthly = :oldmonthly AND #total = :oldtotal"
	})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()
	client.On("UpdateItem", mock.Anything, mock.MatchedBy(isIncrement)).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

	require.NoError(t, store.Update(context.Background(), "u1", types.RecordMutation{UsageIncrement: 1, UpdatedAt: testNow}))
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "UpdateItem", 3)
	assert.Contains(t, logs.String(), string(types.ErrCodeInternalMalformedRecord))
}

func TestEntitlementStore_Update_OtherValidationErrorsAreNotRepaired(t *testing.T) {
	client := new(mockDynamo)
	store := NewEntitlementStore(client, "users", nil)
	client.On("UpdateItem", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "item size too large"}).Once()

	err := store.Update(context.Background(), "u1", types.RecordMutation{UsageIncrement: 1, UpdatedAt: testNow})
	assert.True(t, types.HasCode(err, types.ErrCodeUpstreamStore))
	client.AssertNotCalled(t, "GetItem", mock.Anything, mock.Anything)
}

func TestParseTime(t *testing.T) {
	got, ok := parseTime("2026-04-10T21:00:00+09:00")
	require.True(t, ok)
	assert.Equal(t, testNow, got)

	got, ok = parseTime("2026-04-10T21:00:00")
	require.True(t, ok)
	assert.Equal(t, testNow, got)

	_, ok = parseTime("next tuesday")
	assert.False(t, ok)

	_, ok = parseTime("")
	assert.False(t, ok)
}
