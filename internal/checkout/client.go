package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "ChainCart/internal/errors"
)

const (
	stagingBaseURL    = "https://staging.crossmint.com"
	productionBaseURL = "https://www.crossmint.com"
	ordersPath        = "/api/2022-06-09/orders"
)

// Environment 区分测试与生产环境。
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// Config 描述访问结账服务所需的参数。
type Config struct {
	APIKey string
	// Environment 为空时根据 API Key 前缀推断。
	Environment Environment
	// BaseURL 非空时覆盖环境对应的地址。
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 是结账服务的 HTTP 客户端。
type Client struct {
	apiKey      string
	environment Environment
	baseURL     string
	httpClient  *http.Client
}

// NewClient 创建客户端，API Key 缺失属于启动阶段的致命错误。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeMissingCredential, "CROSSMINT_API_KEY is not set")
	}

	env := cfg.Environment
	if env == "" {
		env = EnvironmentFromKey(apiKey)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		switch env {
		case EnvironmentProduction:
			baseURL = productionBaseURL
		case EnvironmentStaging:
			baseURL = stagingBaseURL
		default:
			return nil, xerrors.New(xerrors.CodeInitializationFailure, "未知的结账环境: "+string(env))
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// 未配置超时时不限制请求时长，由调用方通过 ctx 取消。
		httpClient = newHTTPClient(cfg.Timeout)
	}

	return &Client{apiKey: apiKey, environment: env, baseURL: baseURL, httpClient: httpClient}, nil
}

// EnvironmentFromKey 根据密钥前缀推断环境，例如 sk_production_ 与 sk_staging_。
func EnvironmentFromKey(apiKey string) Environment {
	if strings.Contains(strings.ToLower(apiKey), "production") {
		return EnvironmentProduction
	}
	return EnvironmentStaging
}

// Environment returns the environment the client talks to.
func (c *Client) Environment() Environment {
	return c.environment
}

// CreateOrder 创建订单，响应中携带待签名的支付交易。
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var created struct {
		ClientSecret string `json:"clientSecret"`
		Order        Order  `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, ordersPath, req, &created); err != nil {
		return nil, err
	}
	if created.Order.OrderID == "" {
		return nil, xerrors.New(xerrors.CodeCheckoutFailure, "结账服务未返回订单 ID")
	}
	return &created.Order, nil
}

// GetOrder 查询订单当前状态。
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "订单 ID 不能为空")
	}
	var order Order
	if err := c.do(ctx, http.MethodGet, ordersPath+"/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeCheckoutFailure, err, "序列化结账请求失败")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeCheckoutFailure, err, "构建结账请求失败")
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeCheckoutFailure, err, "请求结账服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.New(xerrors.CodeCheckoutFailure,
			fmt.Sprintf("结账服务返回错误状态 %d: %s", resp.StatusCode, errorMessage(raw)),
			xerrors.WithMetadata("status", fmt.Sprint(resp.StatusCode)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeCheckoutFailure, err, "解析结账响应失败")
	}
	return nil
}

// errorMessage 优先提取 {"message": ...} 或 {"error": ...} 中的说明。
func errorMessage(raw []byte) string {
	var decoded struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if decoded.Message != "" {
			return decoded.Message
		}
		if s, ok := decoded.Error.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(raw))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return &http.Client{}
	}
	return &http.Client{Timeout: timeout}
}
