package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"arriendo/internal/config"
	"arriendo/internal/domain"
	"arriendo/internal/logging"
	"arriendo/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// HTTPError is a non-2xx answer of the visits API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == models.CodeRateLimit
}

// AsHTTPError unwraps err into an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// Client calls the availability and visits endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
	logger   *zerolog.Logger
}

var _ domain.VisitsAPI = (*Client)(nil)

// New constructs a client with baseURL, API key and extra header.
func New(baseURL, apiKey, apiExtra string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewFromConfig builds a client from the api section of the config.
func NewFromConfig(cfg config.APIClientConfig) *Client {
	return New(cfg.BaseURL, cfg.APIKey, cfg.APIExtra, cfg.Timeout())
}

// UseRedisCache configures optional Redis caching for availability reads.
// Cache failures are logged and never fail a read.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration, logger *zerolog.Logger) {
	c.redis = redisClient
	c.cacheTTL = ttl
	c.logger = logging.Component(logger, "api_client")
}

// GetAvailability fetches the slots of a listing in [q.Start, q.End).
// Timestamps are sent as RFC 3339 in the listing timezone.
func (c *Client) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (*models.AvailabilityResponse, error) {
	loc := models.Santiago()
	params := url.Values{}
	params.Set("listingId", q.ListingID)
	params.Set("start", q.Start.In(loc).Format(time.RFC3339))
	params.Set("end", q.End.In(loc).Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/api/availability?%s", c.baseURL, params.Encode())

	cacheKey := fmt.Sprintf("availability:%s:%d:%d", q.ListingID, q.Start.Unix(), q.End.Unix())
	var resp models.AvailabilityResponse

	if !q.NoCache && c.readCache(ctx, cacheKey, &resp) {
		return &resp, nil
	}

	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return &resp, nil
}

// CreateVisit posts a booking. The request is sent once; retries are left to the caller.
func (c *Client) CreateVisit(ctx context.Context, req models.CreateVisitRequest, idempotencyKey string) (*models.VisitResponse, error) {
	endpoint := fmt.Sprintf("%s/api/visits", c.baseURL)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = idempotencyKey
	}
	var resp models.VisitResponse
	headers := map[string]string{models.IdempotencyHeader: idempotencyKey}
	if err := c.doPost(ctx, endpoint, req, headers, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Availability cache read failed")
		}
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Availability cache write failed")
	}
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	he := &HTTPError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		he.Code = er.Code
		he.Message = er.Error
	}
	if he.Message == "" {
		he.Message = http.StatusText(resp.StatusCode)
	}
	return he
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
