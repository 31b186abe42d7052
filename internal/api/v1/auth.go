package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/helpdesk/internal/auth"
)

type IssueTokenInput struct {
	Body struct {
		APIKey  string `json:"api_key" minLength:"1" maxLength:"128" doc:"Admin API key"` //nolint:gosec // G117: credential exchange DTO
		Subject string `json:"subject" minLength:"1" maxLength:"255" doc:"Name recorded in the token subject"`
		Role    string `json:"role" enum:"admin,viewer" default:"viewer" doc:"Role granted by the token"`
	}
}

type IssueTokenOutput struct {
	Body struct {
		AccessToken string    `json:"access_token"` //nolint:gosec // G117: auth response DTO
		ExpiresAt   time.Time `json:"expires_at"`
	}
}

// RegisterAuthRoutes exchanges an admin API key for a short-lived JWT.
// These routes must be mounted outside the Auth middleware.
func RegisterAuthRoutes(api huma.API, keys APIKeyVerifier, jwtSecret string, ttl time.Duration) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Exchange an API key for an access token",
		Tags:        []string{"Auth"},
	}, func(_ context.Context, input *IssueTokenInput) (*IssueTokenOutput, error) {
		if keys == nil {
			return nil, huma.Error501NotImplemented("no API keys are configured")
		}
		if err := keys.Verify(input.Body.APIKey); err != nil {
			return nil, huma.Error401Unauthorized("invalid API key")
		}

		token, err := auth.IssueToken(jwtSecret, input.Body.Subject, input.Body.Role, ttl)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to issue token", err)
		}

		out := &IssueTokenOutput{}
		out.Body.AccessToken = token
		out.Body.ExpiresAt = time.Now().Add(ttl)
		return out, nil
	})
}
