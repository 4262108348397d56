package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChainCart/internal/agent"
	"ChainCart/internal/checkout"
	"ChainCart/internal/config"
	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/llm/openai"
	"ChainCart/internal/orders"
	"ChainCart/internal/storage/mysql"
	"ChainCart/internal/storage/redis"
	"ChainCart/internal/tools"
	"ChainCart/internal/web3/provider"
	"ChainCart/pkg/logger"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// main 是 ChainCart 终端购物助手的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Stdin, os.Stdout, os.Stderr)
	_ = logger.Sync()
	if code := exitCode(err); code != 0 {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(code)
	}
}

// exitCode 将运行结果映射为进程退出码：致命的启动错误返回 1，其余失败返回 2。
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case xerrors.IsFatal(err):
		return 1
	default:
		return 2
	}
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	// .env 不存在时直接使用进程环境变量。
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	log := logger.Named("main")
	log.Info("配置加载完成", "config", cfg.String())

	wallet, err := provider.OpenConfigured(ctx, cfg.Wallet.ChainsFile, cfg.Wallet.Chain, cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey)
	if err != nil {
		return err
	}
	defer wallet.Close()
	log.Info("钱包已连接", "chain", wallet.Chain().Name, "address", wallet.Address())

	checkoutClient, err := checkout.NewClient(checkout.Config{
		APIKey:      cfg.Checkout.APIKey,
		Environment: checkout.Environment(cfg.Checkout.Environment),
		BaseURL:     cfg.Checkout.BaseURL,
		Timeout:     seconds(cfg.Checkout.TimeoutSeconds),
	})
	if err != nil {
		return err
	}

	recorder, err := createRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Warn("关闭订单记录失败", "error", err)
		}
	}()

	toolset, err := tools.NewShoppingSet(tools.ShoppingDeps{
		Wallet:   wallet,
		Checkout: checkoutClient,
		Orders:   recorder,
		Locale:   cfg.Checkout.Locale,
	})
	if err != nil {
		return err
	}

	generator, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: seconds(cfg.LLM.TimeoutSeconds),
	})
	if err != nil {
		return err
	}
	log.Info("大模型客户端已就绪", "model", generator.Model())

	ag := agent.New(generator,
		agent.WithTools(toolset),
		agent.WithPolicy(cfg.Policy),
		agent.WithMaxSteps(cfg.LLM.MaxSteps),
		agent.WithInput(stdin),
		agent.WithOutput(stdout),
		agent.WithErrorOutput(stderr),
		agent.WithLogger(logger.Named("agent")),
	)

	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stdout, "\033[H\033[2J")
	}
	return ag.Run(ctx)
}

// createRecorder 根据配置选择订单日志与通知渠道。
func createRecorder(ctx context.Context, cfg *config.Config) (*orders.Recorder, error) {
	var journal orders.Journal
	switch cfg.Orders.Driver {
	case "", "memory":
		journal = orders.NewMemoryJournal()
	case "mysql":
		mysqlCfg := cfg.Orders.MySQL
		store, err := mysql.NewOrderJournal(ctx, mysql.Config{
			DSN:             mysqlCfg.DSN,
			MaxOpenConns:    mysqlCfg.MaxOpenConns,
			MaxIdleConns:    mysqlCfg.MaxIdleConns,
			ConnMaxLifetime: seconds(mysqlCfg.ConnMaxLifetimeSeconds),
		})
		if err != nil {
			return nil, err
		}
		journal = store
	case "redis":
		redisCfg := cfg.Orders.Redis
		store, err := redis.NewOrderJournal(ctx, redis.Config{
			Address:    redisCfg.Address,
			Password:   redisCfg.Password,
			DB:         redisCfg.DB,
			Key:        redisCfg.Key,
			MaxEntries: redisCfg.MaxEntries,
		})
		if err != nil {
			return nil, err
		}
		journal = store
	default:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未知的订单存储驱动: "+cfg.Orders.Driver)
	}

	opts := []orders.RecorderOption{orders.WithLogger(logger.Named("orders"))}
	if cfg.Orders.RabbitMQ.URL != "" {
		notifier, err := orders.NewRabbitMQNotifier(orders.RabbitMQConfig{
			URL:     cfg.Orders.RabbitMQ.URL,
			Queue:   cfg.Orders.RabbitMQ.Queue,
			Durable: cfg.Orders.RabbitMQ.Durable,
		})
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
		opts = append(opts, orders.WithNotifier(notifier))
	}
	return orders.NewRecorder(journal, opts...), nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
