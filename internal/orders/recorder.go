package orders

import (
	"context"
	"log/slog"
	"time"

	xerrors "ChainCart/internal/errors"
)

const defaultRecordTimeout = 5 * time.Second

// Recorder 把订单写入日志并发送通知，失败只记录日志。
type Recorder struct {
	journal  Journal
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// RecorderOption 定义 Recorder 的可选配置。
type RecorderOption func(*Recorder)

// WithNotifier 配置订单完成事件的通知渠道。
func WithNotifier(n Notifier) RecorderOption {
	return func(r *Recorder) {
		r.notifier = n
	}
}

// WithLogger 指定日志输出。
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout 限制单次记录的耗时。
func WithTimeout(timeout time.Duration) RecorderOption {
	return func(r *Recorder) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewRecorder 创建 Recorder，journal 为空时使用内存日志。
func NewRecorder(journal Journal, opts ...RecorderOption) *Recorder {
	if journal == nil {
		journal = NewMemoryJournal()
	}
	r := &Recorder{
		journal: journal,
		logger:  slog.New(slog.DiscardHandler),
		timeout: defaultRecordTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Record 保存订单并发出通知，返回补全后的订单。
func (r *Recorder) Record(ctx context.Context, order Order) Order {
	order = order.Normalize()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.journal.Record(ctx, order); err != nil {
		r.logger.Log(ctx, xerrors.LogLevel(err), "记录订单失败", "order_id", order.OrderID, "error", err)
	}
	if r.notifier != nil {
		if err := r.notifier.Publish(ctx, order); err != nil {
			r.logger.Log(ctx, xerrors.LogLevel(err), "发送订单通知失败", "order_id", order.OrderID, "error", err)
		}
	}
	r.logger.Info("订单已记录", "order_id", order.OrderID, "tx_hash", order.TxHash, "method", order.PaymentMethod)
	return order
}

// Recent 返回最近的订单。
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Order, error) {
	return r.journal.Recent(ctx, limit)
}

// Close 关闭日志与通知渠道。
func (r *Recorder) Close() error {
	var firstErr error
	if r.notifier != nil {
		if err := r.notifier.Close(); err != nil {
			firstErr = err
		}
	}
	if err := r.journal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
