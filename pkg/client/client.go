package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/terra-clan/memgame/internal/models"
)

// Client is a Go SDK for the memgame server. It keeps the login cookie
// between calls and does not follow redirects.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Its cookie jar and redirect
// policy are replaced.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken authenticates with a bearer token instead of a login cookie
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new memgame client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	// cookiejar.New never fails with nil options
	jar, _ := cookiejar.New(nil)
	c.httpClient.Jar = jar
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return c
}

// APIError is returned for every non-successful response
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Location is set when the server answered with a redirect
	Location string
}

func (e *APIError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("HTTP %d: redirected to %s", e.StatusCode, e.Location)
	}
	return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type response struct {
	status   int
	location string
	body     []byte
}

// Register creates an account and logs in
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.postForRedirect(ctx, "/register", models.RegisterRequest{
		Username:  username,
		Password1: password,
		Password2: password,
	})
}

// Login logs in with username and password
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.postForRedirect(ctx, "/", models.LoginRequest{
		Username: username,
		Password: password,
	})
}

// Logout ends the current login
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/logout", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusSeeOther {
		return pageError(resp)
	}
	return nil
}

// Levels lists the playable levels
func (c *Client) Levels(ctx context.Context) ([]models.LevelInfo, error) {
	var data struct {
		Levels []models.LevelInfo `json:"levels"`
		Total  int                `json:"total"`
	}
	if err := c.getPage(ctx, "/select-level", &data); err != nil {
		return nil, err
	}
	return data.Levels, nil
}

// StartGame opens a round of a level, by slug or name
func (c *Client) StartGame(ctx context.Context, level string) (*models.StartGameResponse, error) {
	var data models.StartGameResponse
	if err := c.getPage(ctx, "/game/"+url.PathEscape(level), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Move reports a move of an open round
func (c *Client) Move(ctx context.Context, sessionID int64) error {
	body, err := json.Marshal(models.MoveRequest{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/game/move", bytes.NewReader(body))
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return gameError(resp)
	}
	return nil
}

// EndGame reports the result of a round
func (c *Client) EndGame(ctx context.Context, sessionID int64, req models.EndGameRequest) (*models.EndGameResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/game/end/%d", sessionID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, gameError(resp)
	}

	var result models.EndGameResponse
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// Profile returns the player's statistics and history
func (c *Client) Profile(ctx context.Context) (*models.ProfileResponse, error) {
	var data models.ProfileResponse
	if err := c.getPage(ctx, "/profile", &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return pageError(resp)
	}
	return nil
}

func (c *Client) postForRedirect(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if resp.status != http.StatusSeeOther {
		return pageError(resp)
	}
	return nil
}

func (c *Client) getPage(ctx context.Context, path string, dst interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return pageError(resp)
	}

	result := envelope[json.RawMessage]{}
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if err := json.Unmarshal(result.Data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func pageError(resp *response) error {
	apiErr := &APIError{StatusCode: resp.status, Location: resp.location}

	var result envelope[json.RawMessage]
	if json.Unmarshal(resp.body, &result) == nil && result.Error != nil {
		apiErr.Code = result.Error.Code
		apiErr.Message = result.Error.Message
	}
	return apiErr
}

func gameError(resp *response) error {
	apiErr := &APIError{StatusCode: resp.status, Location: resp.location}

	var result models.StatusResponse
	if json.Unmarshal(resp.body, &result) == nil && result.Status != "" {
		apiErr.Code = result.Status
		apiErr.Message = result.Message
		return apiErr
	}
	// auth failures use the page envelope
	return pageError(resp)
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*response, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     respBody,
	}, nil
}
