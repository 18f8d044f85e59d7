package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultEndpoint = "https://api.github.com/graphql"

	OwnerUser = "user"
	OwnerOrg  = "org"

	requestTimeout = 60 * time.Second
	userAgent      = "coursesync"
)

const projectQueryTemplate = `
query($login: String!, $number: Int!) {
  %s(login: $login) {
    projectV2(number: $number) {
      title
      items(first: 100) {
        nodes {
          content {
            __typename
            ... on DraftIssue { title }
            ... on Issue { title url }
            ... on PullRequest { title url }
          }
          fieldValues(first: 50) {
            nodes {
              __typename
              ... on ProjectV2ItemFieldTextValue { text field { ... on ProjectV2FieldCommon { name } } }
              ... on ProjectV2ItemFieldDateValue { date field { ... on ProjectV2FieldCommon { name } } }
              ... on ProjectV2ItemFieldNumberValue { number field { ... on ProjectV2FieldCommon { name } } }
              ... on ProjectV2ItemFieldSingleSelectValue { name field { ... on ProjectV2SingleSelectField { name } } }
            }
          }
        }
      }
    }
  }
}`

var ErrProjectNotFound = errors.New("cannot access project; for a user project you may need a PAT with read:project in PROJECTS_TOKEN")

type (
	graphQLRequest struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}

	graphQLResponse struct {
		Data   json.RawMessage `json:"data"`
		Errors []GraphQLIssue  `json:"errors"`
	}

	GraphQLIssue struct {
		Message string `json:"message"`
		Type    string `json:"type,omitempty"`
		Path    []any  `json:"path,omitempty"`
	}

	projectOwner struct {
		ProjectV2 *Project `json:"projectV2"`
	}

	projectData struct {
		User         *projectOwner `json:"user"`
		Organization *projectOwner `json:"organization"`
	}
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("github api status %d", e.StatusCode)
	if hint := e.Hint(); hint != "" {
		msg += ": " + hint
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Hint suggests a fix for the status codes that are usually a setup problem.
func (e *APIError) Hint() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "token is missing, invalid or expired"
	case http.StatusForbidden:
		return "token lacks the read:project scope or the rate limit was hit"
	case http.StatusNotFound:
		return "endpoint not found, check the graphql endpoint URL"
	default:
		return ""
	}
}

// GraphQLError carries the errors returned alongside a 200 response.
type GraphQLError struct {
	Issues []GraphQLIssue
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	return "github graphql errors: " + strings.Join(msgs, "; ")
}

type ProjectFetcher interface {
	FetchProject(ctx context.Context, owner, ownerType string, number int) (*Project, error)
}

type APIClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewAPIClient(endpoint, token string) *APIClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &APIClient{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// fetches the project board with its items and field values
func (c *APIClient) FetchProject(ctx context.Context, owner, ownerType string, number int) (*Project, error) {
	root := "user"
	if ownerType == OwnerOrg {
		root = "organization"
	}

	var data projectData
	err := c.query(ctx, fmt.Sprintf(projectQueryTemplate, root), map[string]any{
		"login":  owner,
		"number": number,
	}, &data)
	if err != nil {
		return nil, err
	}

	holder := data.User
	if ownerType == OwnerOrg {
		holder = data.Organization
	}
	if holder == nil || holder.ProjectV2 == nil {
		return nil, ErrProjectNotFound
	}

	return holder.ProjectV2, nil
}

// sends one graphql query and decodes its data into out
func (c *APIClient) query(ctx context.Context, query string, variables map[string]any, out any) error {
	reqBody, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{StatusCode: res.StatusCode, Body: excerpt(body)}
	}

	var apiRes graphQLResponse
	if err := json.Unmarshal(body, &apiRes); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}

	if len(apiRes.Errors) > 0 {
		return &GraphQLError{Issues: apiRes.Errors}
	}

	if len(apiRes.Data) == 0 || string(apiRes.Data) == "null" {
		return fmt.Errorf("error decoding response: empty data")
	}
	if err := json.Unmarshal(apiRes.Data, out); err != nil {
		return fmt.Errorf("error decoding response data: %w", err)
	}

	return nil
}

// keeps error messages readable when the body is an html page
func excerpt(body []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
