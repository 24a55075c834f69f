// Package github implements the approval engine's GitHub collaborator
// against the REST API: review listing, approval submission, label
// application, and per-repository configuration loading. All requests go
// through a retrying transport; callers decide what a failure means.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/approvebot/pkg/approve"
)

const (
	githubAPI = "https://api.github.com"
	// maxResponseSize limits API response size to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024 // 10MB
	// maxErrorBodySize limits error response body reading for debugging.
	maxErrorBodySize = 1024
	// tokenPreviewPrefixLen is the number of characters to show at the start of a masked token.
	tokenPreviewPrefixLen = 4
	// tokenPreviewSuffixLen is the number of characters to show at the end of a masked token.
	tokenPreviewSuffixLen = 4
	// tokenPreviewMinLen is the minimum token length to show a preview.
	tokenPreviewMinLen = 8
	// perPage is the page size used for paginated list endpoints.
	perPage = 100

	// HTTP client configuration constants.
	requestTimeout      = 30 * time.Second
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeoutSec  = 90

	// repoConfigPath is where repositories keep their auto-approval rule file.
	repoConfigPath = ".github/autoapproval.yml"

	// defaultApprovalComment is the review body submitted with approvals
	// unless WithApprovalComment overrides it.
	defaultApprovalComment = "Auto-approved: the description carries an auto-approve reason."
)

// Error represents an error response from the GitHub API.
type Error struct {
	Status     string
	Body       string
	URL        string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("github API error: %s", e.Status)
}

// Client talks to the GitHub REST API. It satisfies approve.GitHub.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	configCache *configCache
	token       string
	api         string
	comment     string
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURL points the client at a different API endpoint, for GitHub
// Enterprise or tests. The URL must not end with a slash.
func WithBaseURL(api string) Option {
	return func(c *Client) {
		if api != "" {
			c.api = strings.TrimSuffix(api, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client. The transport is wrapped with
// retry logic if not already wrapped.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient.Transport == nil {
			httpClient.Transport = &RetryTransport{Base: http.DefaultTransport}
		} else if _, ok := httpClient.Transport.(*RetryTransport); !ok {
			httpClient.Transport = &RetryTransport{Base: httpClient.Transport}
		}
		c.httpClient = httpClient
	}
}

// WithApprovalComment overrides the review body submitted with approvals.
func WithApprovalComment(comment string) Option {
	return func(c *Client) {
		if comment != "" {
			c.comment = comment
		}
	}
}

// NewClient creates a new Client with the given GitHub token.
func NewClient(token string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeoutSec * time.Second,
	}
	c := &Client{
		httpClient: &http.Client{
			Transport: &RetryTransport{Base: transport},
			Timeout:   requestTimeout,
		},
		logger:      slog.Default(),
		configCache: newConfigCache(),
		token:       token,
		api:         githubAPI,
		comment:     defaultApprovalComment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maskToken returns a log-safe preview of a token.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) > tokenPreviewMinLen {
		return token[:tokenPreviewPrefixLen] + "..." + token[len(token)-tokenPreviewSuffixLen:]
	}
	return "***"
}

// nextPage extracts the next page number from a Link header, 0 when there
// are no further pages.
func nextPage(linkHeader string) int {
	for _, link := range strings.Split(linkHeader, ",") {
		parts := strings.Split(strings.TrimSpace(link), ";")
		if len(parts) != 2 || strings.TrimSpace(parts[1]) != `rel="next"` {
			continue
		}
		u, err := url.Parse(strings.Trim(parts[0], "<>"))
		if err != nil {
			return 0
		}
		page, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil {
			return 0
		}
		return page
	}
	return 0
}

// response wraps the pagination state of a GitHub API response.
type response struct {
	NextPage int
}

// do performs one GitHub API request. A non-nil payload is sent as JSON; a
// non-nil v receives the decoded response body.
func (c *Client) do(ctx context.Context, method, path string, payload, v any) (*response, error) {
	apiURL := c.api + path

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "GitHub API request starting",
		"method", method,
		"url", apiURL,
		"token", maskToken(c.token))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.ErrorContext(ctx, "GitHub API request failed", "url", apiURL, "error", err, "elapsed", elapsed)
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.DebugContext(ctx, "failed to close response body", "error", closeErr, "url", apiURL)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr != nil {
			errBody = []byte("failed to read response body")
		}
		c.logger.ErrorContext(ctx, "GitHub API error",
			"status", resp.Status,
			"method", method,
			"url", apiURL,
			"body", string(errBody),
			"rate_remaining", resp.Header.Get("X-Ratelimit-Remaining"))
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(errBody),
			URL:        apiURL,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "GitHub API response received",
		"status", resp.Status,
		"url", apiURL,
		"elapsed", elapsed,
		"rate_remaining", resp.Header.Get("X-Ratelimit-Remaining"))

	if v != nil && len(data) > 0 {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decoding response from %s: %w", apiURL, err)
		}
	}

	return &response{NextPage: nextPage(resp.Header.Get("Link"))}, nil
}

// githubUser represents a GitHub user.
type githubUser struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// githubReview represents a GitHub review.
type githubReview struct {
	User        *githubUser `json:"user"`
	SubmittedAt time.Time   `json:"submitted_at"`
	State       string      `json:"state"`
}

// githubPullRequest represents a GitHub pull request.
type githubPullRequest struct {
	UpdatedAt time.Time   `json:"updated_at"`
	CreatedAt time.Time   `json:"created_at"`
	User      *githubUser `json:"user"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Number int `json:"number"`
}

// githubContents represents a file fetched via the contents API.
type githubContents struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// reviewRequest is the payload for creating a pull request review.
type reviewRequest struct {
	Event string `json:"event"`
	Body  string `json:"body,omitempty"`
}

// labelRequest is the payload for adding labels to an issue.
type labelRequest struct {
	Labels []string `json:"labels"`
}

// ListReviews returns every review currently recorded on the pull request,
// following pagination.
func (c *Client) ListReviews(ctx context.Context, pr *approve.PullRequest) ([]approve.Review, error) {
	var reviews []approve.Review
	page := 1
	for {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews?page=%d&per_page=%d",
			pr.Owner, pr.Repo, pr.Number, page, perPage)
		var fetched []*githubReview
		resp, err := c.do(ctx, http.MethodGet, path, nil, &fetched)
		if err != nil {
			return nil, fmt.Errorf("fetching reviews: %w", err)
		}
		for _, review := range fetched {
			if review.User == nil {
				continue
			}
			reviews = append(reviews, approve.Review{
				Author: review.User.Login,
				State:  review.State,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}
	c.logger.DebugContext(ctx, "fetched reviews",
		"owner", pr.Owner, "repo", pr.Repo, "pr", pr.Number, "count", len(reviews))
	return reviews, nil
}

// SubmitApproval records an approving review with the configured comment.
func (c *Client) SubmitApproval(ctx context.Context, pr *approve.PullRequest) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", pr.Owner, pr.Repo, pr.Number)
	payload := reviewRequest{Event: "APPROVE", Body: c.comment}
	if _, err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("submitting approval: %w", err)
	}
	c.logger.InfoContext(ctx, "approval submitted",
		"owner", pr.Owner, "repo", pr.Repo, "pr", pr.Number)
	return nil
}

// ApplyLabels attaches labels to the pull request. The labels must already
// exist in the repository; GitHub rejects unknown names.
func (c *Client) ApplyLabels(ctx context.Context, pr *approve.PullRequest, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", pr.Owner, pr.Repo, pr.Number)
	if _, err := c.do(ctx, http.MethodPost, path, labelRequest{Labels: labels}, nil); err != nil {
		return fmt.Errorf("applying labels: %w", err)
	}
	c.logger.InfoContext(ctx, "labels applied",
		"owner", pr.Owner, "repo", pr.Repo, "pr", pr.Number, "labels", labels)
	return nil
}

// RepoConfig loads the repository's auto-approval rule file, consulting a
// short-lived in-memory cache first. Repositories without the file yield
// (nil, nil), and that absence is cached too.
func (c *Client) RepoConfig(ctx context.Context, pr *approve.PullRequest) (*approve.RepoConfig, error) {
	if cfg, ok := c.configCache.get(pr.Owner, pr.Repo); ok {
		return cfg, nil
	}

	path := fmt.Sprintf("/repos/%s/%s/contents/%s", pr.Owner, pr.Repo, repoConfigPath)
	var contents githubContents
	if _, err := c.do(ctx, http.MethodGet, path, nil, &contents); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.configCache.set(pr.Owner, pr.Repo, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("fetching repository config: %w", err)
	}

	// The contents API base64-encodes file bodies with embedded newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding repository config: %w", err)
	}
	var cfg approve.RepoConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing repository config: %w", err)
	}

	c.configCache.set(pr.Owner, pr.Repo, &cfg)
	c.logger.DebugContext(ctx, "repository config fetched",
		"owner", pr.Owner, "repo", pr.Repo, "path", repoConfigPath)
	return &cfg, nil
}

// PullRequest fetches a point-in-time snapshot of a pull request.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*approve.PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	var fetched githubPullRequest
	if _, err := c.do(ctx, http.MethodGet, path, nil, &fetched); err != nil {
		return nil, fmt.Errorf("fetching pull request: %w", err)
	}

	pr := &approve.PullRequest{
		Owner:     owner,
		Repo:      repo,
		Number:    fetched.Number,
		Title:     fetched.Title,
		Body:      fetched.Body,
		CreatedAt: fetched.CreatedAt,
		UpdatedAt: fetched.UpdatedAt,
	}
	if fetched.User != nil {
		pr.Author = fetched.User.Login
	}
	for _, label := range fetched.Labels {
		pr.Labels = append(pr.Labels, label.Name)
	}
	return pr, nil
}
