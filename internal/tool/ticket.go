package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const CreateTicketName = "create_ticket"

// DefaultTicketEndpoint is the Linear GraphQL API.
const DefaultTicketEndpoint = "https://api.linear.app/graphql"

// ErrTicketRejected is returned when the tracker answers but refuses to create the issue.
var ErrTicketRejected = errors.New("tool: ticket rejected by tracker") //nolint:gochecknoglobals // sentinel error

// TicketConfig configures access to the issue tracker. Either APIKey or the
// client credentials triple must be set.
type TicketConfig struct {
	Endpoint     string
	TeamID       string
	APIKey       string //nolint:gosec // G117: tracker credential config
	ClientID     string
	ClientSecret string //nolint:gosec // G117: tracker credential config
	TokenURL     string
	Scopes       []string
}

// NewTicketHTTPClient returns an HTTP client that authenticates tracker
// requests, using OAuth2 client credentials when configured and a static
// bearer token otherwise.
func NewTicketHTTPClient(ctx context.Context, cfg TicketConfig) *http.Client {
	if cfg.ClientID != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		return cc.Client(ctx)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	}))
}

// Ticket is an issue created in the tracker.
type Ticket struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
}

// CreateTicketInput is the input of the create_ticket tool.
type CreateTicketInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"` // urgent, high, medium, low
}

// TicketClient creates issues through a Linear-compatible GraphQL API.
type TicketClient struct {
	endpoint   string
	teamID     string
	httpClient *http.Client
}

// NewTicketClient creates a TicketClient. An empty endpoint uses DefaultTicketEndpoint.
func NewTicketClient(endpoint, teamID string, httpClient *http.Client) *TicketClient {
	if endpoint == "" {
		endpoint = DefaultTicketEndpoint
	}
	return &TicketClient{endpoint: endpoint, teamID: teamID, httpClient: httpClient}
}

const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue { id identifier url }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type issueCreateResponse struct {
	Data struct {
		IssueCreate struct {
			Success bool    `json:"success"`
			Issue   *Ticket `json:"issue"`
		} `json:"issueCreate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Create files a new issue.
func (c *TicketClient) Create(ctx context.Context, in CreateTicketInput) (*Ticket, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("tool.TicketClient.Create: %w: title is required", ErrInvalidInput)
	}

	input := map[string]any{
		"teamId":      c.teamID,
		"title":       in.Title,
		"description": in.Description,
	}
	if p, ok := priorityValue(in.Priority); ok {
		input["priority"] = p
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     issueCreateMutation,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return nil, fmt.Errorf("tool.TicketClient.Create: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tool.TicketClient.Create: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool.TicketClient.Create: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("tool.TicketClient.Create: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool.TicketClient.Create: %w: status %d: %s", ErrTicketRejected, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out issueCreateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("tool.TicketClient.Create: decode: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("tool.TicketClient.Create: %w: %s", ErrTicketRejected, out.Errors[0].Message)
	}
	if !out.Data.IssueCreate.Success || out.Data.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("tool.TicketClient.Create: %w: success=false", ErrTicketRejected)
	}

	return out.Data.IssueCreate.Issue, nil
}

// Register adds create_ticket to r.
func (c *TicketClient) Register(r *Registry) {
	r.Register(Tool{
		Name:        CreateTicketName,
		Description: "File a bug ticket for the engineering team once the problem is understood. Include reproduction steps and what was already checked.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Short summary of the problem"},
				"description": {"type": "string", "description": "Markdown body with symptoms, evidence and reporter"},
				"priority": {"type": "string", "enum": ["urgent", "high", "medium", "low"]}
			},
			"required": ["title", "description"]
		}`),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var in CreateTicketInput
			if err := decodeInput(raw, &in); err != nil {
				return "", err
			}
			ticket, err := c.Create(ctx, in)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(ticket)
			if err != nil {
				return "", fmt.Errorf("tool.TicketClient: marshal: %w", err)
			}
			return string(b), nil
		},
	})
}

// ParseTicket decodes a successful create_ticket result.
func ParseTicket(content string) (*Ticket, bool) {
	var t Ticket
	if err := json.Unmarshal([]byte(content), &t); err != nil || t.ID == "" {
		return nil, false
	}
	return &t, true
}

func priorityValue(p string) (int, bool) {
	switch strings.ToLower(p) {
	case "urgent":
		return 1, true
	case "high":
		return 2, true
	case "medium":
		return 3, true
	case "low":
		return 4, true
	default:
		return 0, false
	}
}
