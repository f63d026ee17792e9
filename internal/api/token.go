package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/auth"
)

// TokenData is the issued bearer token payload.
type TokenData struct {
	Token     string `json:"token" doc:"Bearer token for subsequent requests"`
	ExpiresAt string `json:"expiresAt" example:"2025-01-27T22:30:00Z" doc:"Token expiry, RFC 3339"`
}

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/api/auth/token",
		Summary:     "Issue Token",
		Description: "Exchange basic-auth credentials for a signed bearer token",
		Tags:        []string{"auth"},
		Errors:      []int{401, 503},
		// The credentials being exchanged are the security here; the
		// global middleware skips operations without requirements.
		Security: []map[string][]string{},
	}, func(ctx context.Context, input *struct {
		Authorization string `header:"Authorization" doc:"Basic credentials"`
	}) (*Response[TokenData], error) {
		svc := s.options.Auth
		if svc == nil || !svc.Enabled() {
			return nil, newErrorEnvelope(http.StatusServiceUnavailable, "auth",
				"Authentication disabled",
				"Set ADMIN_USERNAME and ADMIN_PASSWORD to enable token auth")
		}

		username, password, err := auth.DecodeBasic(input.Authorization)
		if err != nil {
			return nil, newErrorEnvelope(http.StatusUnauthorized, "auth",
				"Authentication required", "Provide basic-auth credentials")
		}
		if err := svc.CheckCredentials(username, password); err != nil {
			return nil, newErrorEnvelope(http.StatusUnauthorized, "auth",
				"Invalid credentials", "Username or password is wrong")
		}

		token, expiresAt := svc.IssueToken()
		return respond(TokenData{
			Token:     token,
			ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		}), nil
	})
}
