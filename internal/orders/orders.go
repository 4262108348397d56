// Package orders records completed checkout orders and optionally announces
// them on a message queue. Recording never blocks or fails a purchase.
package orders

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Order 是一笔已提交支付的订单。
type Order struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	Locator        string    `json:"locator"`
	RecipientEmail string    `json:"recipient_email"`
	PaymentMethod  string    `json:"payment_method"`
	Currency       string    `json:"currency"`
	PayerAddress   string    `json:"payer_address"`
	TxHash         string    `json:"tx_hash"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Normalize 补全本地 ID 与时间戳。
func (o Order) Normalize() Order {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return o
}

// Journal 持久化订单记录。
type Journal interface {
	Record(ctx context.Context, order Order) error
	Recent(ctx context.Context, limit int) ([]Order, error)
	Close() error
}

// Notifier 对外广播订单完成事件。
type Notifier interface {
	Publish(ctx context.Context, order Order) error
	Close() error
}

const memoryCapacity = 512

// MemoryJournal 在进程内保存最近的订单，是默认的日志实现。
type MemoryJournal struct {
	mu     sync.RWMutex
	orders []Order
}

// NewMemoryJournal 创建内存订单日志。
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Record 将订单放到最前面，超过容量时丢弃最旧的记录。
func (m *MemoryJournal) Record(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append([]Order{order.Normalize()}, m.orders...)
	if len(m.orders) > memoryCapacity {
		m.orders = m.orders[:memoryCapacity]
	}
	return nil
}

// Recent 按时间倒序返回最近的订单。
func (m *MemoryJournal) Recent(_ context.Context, limit int) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.orders) {
		limit = len(m.orders)
	}
	out := make([]Order, limit)
	copy(out, m.orders[:limit])
	return out, nil
}

// Close 实现 Journal。
func (m *MemoryJournal) Close() error { return nil }
