// Package metrics publishes API and entitlement metrics to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tourism/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector is what the HTTP chassis and the entitlement engine report to.
type Collector interface {
	RecordRequest(method, endpoint string, status int, duration time.Duration)
	ObserveDecision(ctx context.Context, d types.Decision)
}

var (
	_ Collector = (*CloudWatchMetrics)(nil)
	_ Collector = Nop{}
)

// CloudWatchMetrics emits:
//   - APIRequestCount, APILatency: dims {Method, Endpoint, Status}
//   - EntitlementDecision: dims {PlanState, Result}
//
// Publishing failures are logged and never surface to callers.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	timeout   time.Duration
}

// NewCloudWatchMetrics creates a collector publishing to namespace
// (types.MetricNamespace when empty).
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger, timeout: 2 * time.Second}
}

// RecordRequest emits a count and a latency datum for one HTTP request.
// endpoint should be the route pattern, not the raw path.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, strconv.Itoa(status)),
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	}, "endpoint", endpoint, "status", status)
}

// ObserveDecision emits one EntitlementDecision datum.
func (m *CloudWatchMetrics) ObserveDecision(ctx context.Context, d types.Decision) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricEntitlementDecision),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimPlanState, string(d.PlanState)),
			dim(types.DimResult, d.Outcome()),
		},
	}}, "plan_state", string(d.PlanState), "result", d.Outcome())
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum, attrs ...any) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to publish metric", append([]any{"error", err.Error()}, attrs...)...)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Nop discards everything. Used when metrics are disabled and in local mode.
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) ObserveDecision(context.Context, types.Decision) {}
