package redis

import (
	"context"
	"encoding/json"
	"strings"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/orders"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKey        = "chaincart:orders"
	defaultMaxEntries = 1000
	defaultRecentSize = 20
)

// Config 描述 Redis 订单日志的连接参数。
type Config struct {
	Address    string
	Password   string
	DB         int
	Key        string
	MaxEntries int64
}

// listClient 是订单日志用到的 Redis 命令子集。
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Close() error
}

// OrderJournal 以 JSON 形式把订单压入 Redis list，最新的在表头。
type OrderJournal struct {
	client     listClient
	key        string
	maxEntries int64
}

// NewOrderJournal 连接 Redis 并返回订单日志。
func NewOrderJournal(ctx context.Context, cfg Config) (*OrderJournal, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败",
			xerrors.WithMetadata("address", cfg.Address))
	}
	return newOrderJournal(client, cfg), nil
}

func newOrderJournal(client listClient, cfg Config) *OrderJournal {
	key := cfg.Key
	if key == "" {
		key = defaultKey
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &OrderJournal{client: client, key: key, maxEntries: maxEntries}
}

// Record 写入订单并裁剪列表长度。
func (j *OrderJournal) Record(ctx context.Context, order orders.Order) error {
	payload, err := json.Marshal(order.Normalize())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化订单失败")
	}
	if err := j.client.LPush(ctx, j.key, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 失败")
	}
	if err := j.client.LTrim(ctx, j.key, 0, j.maxEntries-1).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "裁剪 Redis 订单列表失败")
	}
	return nil
}

// Recent 返回最近的订单，无法解析的条目会被跳过。
func (j *OrderJournal) Recent(ctx context.Context, limit int) ([]orders.Order, error) {
	if limit <= 0 {
		limit = defaultRecentSize
	}
	items, err := j.client.LRange(ctx, j.key, 0, int64(limit)-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 订单失败")
	}
	out := make([]orders.Order, 0, len(items))
	for _, item := range items {
		var order orders.Order
		if err := json.Unmarshal([]byte(item), &order); err != nil {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

// Close 关闭 Redis 连接。
func (j *OrderJournal) Close() error {
	if j == nil || j.client == nil {
		return nil
	}
	return j.client.Close()
}
