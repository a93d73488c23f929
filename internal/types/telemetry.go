package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPIRequestCount     = "APIRequestCount"
	MetricAPILatency          = "APILatency"
	MetricEntitlementDecision = "EntitlementDecision"

	// Dimension Keys
	DimEndpoint  = "Endpoint"
	DimMethod    = "Method"
	DimStatus    = "Status"
	DimPlanState = "PlanState"
	DimResult    = "Result"

	// Metric Namespace
	MetricNamespace = "TourismAssistant"
)
