package ich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnexpectedStatus 上游返回非 200 状态码
var ErrUnexpectedStatus = errors.New("unexpected upstream status")

// 默认的公开数据地址
const (
	DefaultStationsURL = "https://data.geo.admin.ch/ch.bfe.ladestellen-elektromobilitaet/data/oicp/ch.bfe.ladestellen-elektromobilitaet.json"
	DefaultStatusURL   = "https://data.geo.admin.ch/ch.bfe.ladestellen-elektromobilitaet/status/oicp/ch.bfe.ladestellen-elektromobilitaet.json"
)

// Options 客户端配置
type Options struct {
	StationsURL string
	StatusURL   string
	Timeout     time.Duration
	MaxFailures uint32        // 连续失败多少次后熔断
	OpenTimeout time.Duration // 熔断后多久进入半开
}

// Client 开放数据拉取客户端，只负责取回原始 JSON
type Client struct {
	httpClient  *http.Client
	stationsURL string
	statusURL   string
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

// NewClient 创建客户端
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.StationsURL == "" {
		opts.StationsURL = DefaultStationsURL
	}
	if opts.StatusURL == "" {
		opts.StatusURL = DefaultStatusURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 3
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		stationsURL: opts.StationsURL,
		statusURL:   opts.StatusURL,
		logger:      logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ich-tanke-strom",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// FetchStations 拉取静态充电站数据
func (c *Client) FetchStations(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, c.stationsURL)
}

// FetchStatuses 拉取实时状态数据
func (c *Client) FetchStatuses(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, c.statusURL)
}

// BreakerState 当前熔断器状态
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body.([]byte), nil
}

// doRequest 执行 GET 请求并读取完整响应体
func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "StationGazer/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUnexpectedStatus, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.Debug("Fetched upstream feed",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)),
	)
	return body, nil
}
