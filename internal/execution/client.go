package execution

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

	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the public JDoodle execute API.
	DefaultEndpoint    = "https://api.jdoodle.com/v1/execute"
	defaultTimeout     = 20 * time.Second
	versionIndexLatest = "0"
	maxResponseBytes   = 4 << 20
)

var (
	ErrInvalidClientConfig = errors.New("execution: invalid client config")
	ErrInvalidRequest      = errors.New("execution: language and script are required")

	errMissingClientID     = errors.New("client id is required")
	errMissingClientSecret = errors.New("client secret is required")
)

// ClientConfig configures the remote execution client.
type ClientConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Request is one program to run remotely.
type Request struct {
	Script   string
	Language string
	Stdin    string
}

// Result is the upstream answer. Memory and CPU time are passed through as
// the service reports them, which is sometimes a number and sometimes a string.
type Result struct {
	Output     string          `json:"output"`
	Memory     json.RawMessage `json:"memory"`
	CPUTime    json.RawMessage `json:"cpuTime"`
	StatusCode int             `json:"statusCode"`
}

// UpstreamError reports a non-2xx answer from the execution service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("execution service returned %d: %s", e.StatusCode, e.Message)
}

// Client proxies programs to the remote execution service.
type Client struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

type upstreamRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Script       string `json:"script"`
	Language     string `json:"language"`
	VersionIndex string `json:"versionIndex"`
	Stdin        string `json:"stdin"`
}

type upstreamErrorBody struct {
	Error string `json:"error"`
}

// NewClient validates credentials and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingClientID)
	}
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingClientSecret)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Execute runs the program and returns the upstream result. Non-2xx answers
// surface as *UpstreamError; transport failures are returned as is.
func (c *Client) Execute(ctx context.Context, request Request) (Result, error) {
	if strings.TrimSpace(request.Language) == "" || strings.TrimSpace(request.Script) == "" {
		return Result{}, ErrInvalidRequest
	}

	body, err := json.Marshal(upstreamRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Script:       request.Script,
		Language:     request.Language,
		VersionIndex: versionIndexLatest,
		Stdin:        request.Stdin,
	})
	if err != nil {
		return Result{}, err
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return Result{}, err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return Result{}, err
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		message := fmt.Sprintf("Request failed with status code %d", response.StatusCode)
		var decoded upstreamErrorBody
		if json.Unmarshal(payload, &decoded) == nil && strings.TrimSpace(decoded.Error) != "" {
			message = decoded.Error
		}
		c.logger.Warn("execution service rejected request",
			zap.String("language", request.Language),
			zap.Int("status", response.StatusCode),
			zap.String("message", message))
		return Result{}, &UpstreamError{StatusCode: response.StatusCode, Message: message}
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("decode execution response: %w", err)
	}
	c.logger.Debug("program executed",
		zap.String("language", request.Language),
		zap.Int("status_code", result.StatusCode))
	return result, nil
}
