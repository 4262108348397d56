package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/prompt"
)

// 环境变量名称与原有部署保持一致。
const (
	EnvConfigPath     = "CHAINCART_CONFIG"
	EnvChain          = "CHAINCART_CHAIN"
	EnvLogLevel       = "CHAINCART_LOG_LEVEL"
	EnvPrivateKey     = "WALLET_PRIVATE_KEY"
	EnvRPCURL         = "RPC_PROVIDER_URL"
	EnvCheckoutAPIKey = "CROSSMINT_API_KEY"
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
	EnvOpenAIModel    = "OPENAI_MODEL"
	EnvOpenAIBaseURL  = "OPENAI_BASE_URL"
)

// DefaultMaxSteps 是单轮对话中模型推理与工具调用的步数上限。
const DefaultMaxSteps = 10

// Config 描述了 ChainCart 启动阶段需要加载的全部配置。
type Config struct {
	LLM      LLMConfig      `json:"llm"`
	Wallet   WalletConfig   `json:"wallet"`
	Checkout CheckoutConfig `json:"checkout"`
	Policy   prompt.Policy  `json:"policy"`
	Orders   OrdersConfig   `json:"orders"`
	Log      LogConfig      `json:"log"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	MaxSteps       int    `json:"max_steps"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// WalletConfig 描述签名钱包与链的选择。
type WalletConfig struct {
	Chain      string `json:"chain"`
	ChainsFile string `json:"chains_file"`
	PrivateKey string `json:"private_key"`
	RPCURL     string `json:"rpc_url"`
}

// CheckoutConfig 描述结账服务的访问参数。
type CheckoutConfig struct {
	APIKey         string `json:"api_key"`
	Environment    string `json:"environment"`
	BaseURL        string `json:"base_url"`
	Locale         string `json:"locale"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// OrdersConfig 控制已完成订单的记录与通知，默认仅保存在内存中。
type OrdersConfig struct {
	Driver   string         `json:"driver"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// MySQLConfig 描述 MySQL 订单日志的连接信息。
type MySQLConfig struct {
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig 描述 Redis 订单日志的连接信息。
type RedisConfig struct {
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	Key        string `json:"key"`
	MaxEntries int64  `json:"max_entries"`
}

// RabbitMQConfig 描述订单完成事件的投递目标，URL 为空时不发送通知。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// LogConfig 控制结构化日志输出。
type LogConfig struct {
	Level      string   `json:"level"`
	Format     string   `json:"format"`
	Outputs    []string `json:"outputs"`
	MaxSizeMB  int      `json:"max_size_mb"`
	MaxBackups int      `json:"max_backups"`
	MaxAgeDays int      `json:"max_age_days"`
}

// Load 解析可选的 JSON 配置文件，然后叠加环境变量并补全默认值。
// path 为空时只使用环境变量。
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	baseDir := "."
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败")
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析配置失败")
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(lookup)
	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(target *string, key string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}

	set(&c.Wallet.PrivateKey, EnvPrivateKey)
	set(&c.Wallet.RPCURL, EnvRPCURL)
	set(&c.Wallet.Chain, EnvChain)
	set(&c.Checkout.APIKey, EnvCheckoutAPIKey)
	set(&c.LLM.Model, EnvOpenAIModel)
	set(&c.LLM.BaseURL, EnvOpenAIBaseURL)
	set(&c.Log.Level, EnvLogLevel)

	if strings.TrimSpace(c.LLM.APIKey) == "" {
		keyEnv := c.LLM.APIKeyEnv
		if keyEnv == "" {
			keyEnv = EnvOpenAIAPIKey
		}
		set(&c.LLM.APIKey, keyEnv)
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxSteps <= 0 {
		c.LLM.MaxSteps = DefaultMaxSteps
	}

	if c.Wallet.Chain == "" {
		c.Wallet.Chain = "base"
	}
	c.Wallet.Chain = strings.ToLower(c.Wallet.Chain)
	if c.Wallet.ChainsFile != "" && !filepath.IsAbs(c.Wallet.ChainsFile) {
		c.Wallet.ChainsFile = filepath.Join(baseDir, c.Wallet.ChainsFile)
	}

	if c.Checkout.Locale == "" {
		c.Checkout.Locale = "en-US"
	}

	c.Policy = c.Policy.WithDefaults()

	if c.Orders.Driver == "" {
		c.Orders.Driver = "memory"
	}
	c.Orders.Driver = strings.ToLower(c.Orders.Driver)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i, out := range c.Log.Outputs {
		switch strings.ToLower(out) {
		case "stdout", "stderr", "discard", "none":
			continue
		}
		if !filepath.IsAbs(out) {
			c.Log.Outputs[i] = filepath.Join(baseDir, out)
		}
	}
}

// Validate 检查启动所必需的凭据，缺失任意一项都属于致命错误。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Checkout.APIKey) == "" {
		return xerrors.New(xerrors.CodeMissingCredential, EnvCheckoutAPIKey+" is not set")
	}
	if strings.TrimSpace(c.Wallet.PrivateKey) == "" {
		return xerrors.New(xerrors.CodeMissingCredential, EnvPrivateKey+" is not set")
	}
	if c.LLM.Provider != "openai" {
		return xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("未知的大模型 provider: %s", c.LLM.Provider))
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		keyEnv := c.LLM.APIKeyEnv
		if keyEnv == "" {
			keyEnv = EnvOpenAIAPIKey
		}
		return xerrors.New(xerrors.CodeMissingCredential, keyEnv+" is not set")
	}
	switch c.Orders.Driver {
	case "memory", "mysql", "redis":
	default:
		return xerrors.New(xerrors.CodeInitializationFailure, "未知的订单存储驱动: "+c.Orders.Driver)
	}
	return nil
}

// String 返回隐藏了密钥的配置摘要，便于写入日志。
func (c *Config) String() string {
	return "llm=" + c.LLM.Provider + "/" + c.LLM.Model +
		" chain=" + c.Wallet.Chain +
		" checkout_key=" + mask(c.Checkout.APIKey) +
		" wallet_key=" + mask(c.Wallet.PrivateKey) +
		" orders=" + c.Orders.Driver +
		" max_steps=" + strconv.Itoa(c.LLM.MaxSteps)
}

func mask(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
