package core

import (
	"errors"
	"net/http"
	"strings"

	apiproxy "github.com/awslabs/aws-lambda-go-api-proxy/core"

	"tourism/internal/types"
)

// HeaderUserID and HeaderUserEmail carry the caller identity in local mode.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
)

// ErrNoCredentials means the request carries no identity at all.
var ErrNoCredentials = errors.New("no credentials on request")

// Authenticator resolves the caller of a request. Token verification itself
// happens upstream (API Gateway Cognito authorizer); implementations only
// read the identity that was established there.
type Authenticator interface {
	Authenticate(r *http.Request) (*types.Actor, error)
}

// AuthorizerAuthenticator reads the Cognito claims that API Gateway places
// on the proxy request context.
type AuthorizerAuthenticator struct{}

// Authenticate returns the actor for the "sub" claim.
func (AuthorizerAuthenticator) Authenticate(r *http.Request) (*types.Actor, error) {
	reqCtx, ok := apiproxy.GetAPIGatewayContextFromContext(r.Context())
	if !ok {
		return nil, ErrNoCredentials
	}
	claims, ok := reqCtx.Authorizer["claims"].(map[string]any)
	if !ok {
		return nil, ErrNoCredentials
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, ErrNoCredentials
	}
	email, _ := claims["email"].(string)
	return &types.Actor{ID: sub, Type: types.ActorTypeUser, Email: email, Source: types.ActorSourceAuthorizer}, nil
}

// HeaderAuthenticator trusts the X-User-Id header. Only wired when
// APP_ENV=local, where there is no authorizer in front of the service.
type HeaderAuthenticator struct{}

// Authenticate returns the actor named by X-User-Id.
func (HeaderAuthenticator) Authenticate(r *http.Request) (*types.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return nil, ErrNoCredentials
	}
	return &types.Actor{
		ID:     id,
		Type:   types.ActorTypeUser,
		Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		Source: types.ActorSourceHeader,
	}, nil
}

// ChainAuthenticator tries each Authenticator in order and returns the first
// actor found.
type ChainAuthenticator []Authenticator

func (c ChainAuthenticator) Authenticate(r *http.Request) (*types.Actor, error) {
	for _, a := range c {
		actor, err := a.Authenticate(r)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		return actor, err
	}
	return nil, ErrNoCredentials
}

// AuthMiddleware resolves the caller and injects it into the request context
// along with a logger carrying user_id. Requests without an identity get
// 401 auth_token_missing; identities the Authenticator rejects get
// 401 auth_token_invalid.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication is not configured", nil))
			return
		}

		actor, err := s.Authenticator.Authenticate(r)
		switch {
		case errors.Is(err, ErrNoCredentials):
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
			return
		case err != nil || actor == nil:
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid credentials", err))
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		logger := types.LoggerFromContext(ctx, s.Logger).With("user_id", actor.ID)
		ctx = types.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
