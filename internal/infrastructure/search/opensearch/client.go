// Package opensearch indexes completed report entries and searches them.
package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/FCE-Intelligence/internal/config"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeInvalidConfig, "invalid opensearch configuration")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "opensearch connection failed")
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// Client owns the connection to the cluster and names the indices used by
// this service.
type Client struct {
	client  *opensearch.Client
	prefix  string
	logger  logging.Logger
	healthy atomic.Bool
}

// NewClient builds a client for cfg and pings the cluster once.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	c, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err).WithDetail("addresses=" + strings.Join(cfg.Addresses, ","))
	}
	c.logger.Info("OpenSearch client connected", logging.Strings("addresses", cfg.Addresses))
	return c, nil
}

func newClient(cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create opensearch client")
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = config.DefaultOpenSearchPrefix
	}
	return &Client{client: client, prefix: prefix, logger: logger.Named("opensearch")}, nil
}

// Ping checks the connection and records the result for IsHealthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping failed", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeSearchError, "opensearch ping failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.New(errors.ErrCodeSearchError, "ping returned error status").
			WithDetail(fmt.Sprintf("status=%d", resp.StatusCode))
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the outcome of the last Ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// IndexName prefixes name with the configured index prefix.
func (c *Client) IndexName(name string) string {
	return c.prefix + "-" + name
}

func (c *Client) transport() opensearchapi.Transport {
	return c.client
}

func (c *Client) Close() error {
	c.logger.Info("OpenSearch client closed")
	return nil
}

// ValidateConfig checks the parts of cfg the client depends on.
func ValidateConfig(cfg config.OpenSearchConfig) error {
	if len(cfg.Addresses) == 0 {
		return ErrInvalidConfig.WithDetail("no addresses")
	}
	for _, a := range cfg.Addresses {
		if !strings.HasPrefix(a, "http://") && !strings.HasPrefix(a, "https://") {
			return ErrInvalidConfig.WithDetail("address must include a scheme: " + a)
		}
	}
	if (cfg.User == "") != (cfg.Password == "") {
		return ErrInvalidConfig.WithDetail("user and password must be set together")
	}
	return nil
}

// responseError turns an error response into an AppError carrying the
// cluster's error type and reason when it sent them.
func responseError(resp *opensearchapi.Response, msg string) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	detail := fmt.Sprintf("status=%d", resp.StatusCode)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Type != "" {
		detail += fmt.Sprintf(" type=%s reason=%s", body.Error.Type, body.Error.Reason)
	}
	return errors.New(errors.ErrCodeSearchError, msg).WithDetail(detail)
}
