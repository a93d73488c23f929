package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// LambdaHandler translates API Gateway proxy events into calls on the router.
// The proxy request context, including authorizer claims, is available to
// handlers through the api-proxy GetAPIGatewayContextFromContext.
type LambdaHandler struct {
	adapter *httpadapter.HandlerAdapter
}

// NewLambdaHandler wraps h for lambda.Start.
func NewLambdaHandler(h http.Handler) *LambdaHandler {
	return &LambdaHandler{adapter: httpadapter.New(h)}
}

// Handle is the Lambda entrypoint for API Gateway REST proxy integration.
func (l *LambdaHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if req.RequestContext.RequestID != "" && !hasHeader(req, "X-Request-Id") {
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		req.Headers["X-Request-Id"] = req.RequestContext.RequestID
	}
	return l.adapter.ProxyWithContext(ctx, req)
}

func hasHeader(req events.APIGatewayProxyRequest, name string) bool {
	for k := range req.Headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	for k := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
