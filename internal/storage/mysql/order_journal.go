package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/orders"

	mysqldrv "github.com/go-sql-driver/mysql"
)

const (
	insertOrderSQL = `INSERT INTO orders
    (id, order_id, locator, recipient_email, payment_method, currency, payer_address, tx_hash, status, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	recentOrdersSQL = `SELECT id, order_id, locator, recipient_email, payment_method, currency, payer_address, tx_hash, status, created_at
    FROM orders ORDER BY created_at DESC, id DESC LIMIT ?`

	errDuplicateEntry = 1062
	defaultRecentSize = 20
)

// OrderJournal 将订单记录写入 MySQL 的 orders 表。
type OrderJournal struct {
	db *sql.DB
}

// NewOrderJournal 打开连接池并执行迁移。
func NewOrderJournal(ctx context.Context, cfg Config) (*OrderJournal, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &OrderJournal{db: db}, nil
}

// Record 写入一条订单记录。同一 order_id 重复写入时视为成功。
func (j *OrderJournal) Record(ctx context.Context, order orders.Order) error {
	order = order.Normalize()
	_, err := j.db.ExecContext(ctx, insertOrderSQL,
		order.ID,
		order.OrderID,
		order.Locator,
		order.RecipientEmail,
		order.PaymentMethod,
		order.Currency,
		order.PayerAddress,
		order.TxHash,
		order.Status,
		order.CreatedAt.UTC(),
	)
	if err != nil {
		var mysqlErr *mysqldrv.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存订单记录失败")
	}
	return nil
}

// Recent 按创建时间倒序返回订单。
func (j *OrderJournal) Recent(ctx context.Context, limit int) ([]orders.Order, error) {
	if limit <= 0 {
		limit = defaultRecentSize
	}
	rows, err := j.db.QueryContext(ctx, recentOrdersSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询订单记录失败")
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var (
			o         orders.Order
			createdAt time.Time
		)
		if err := rows.Scan(&o.ID, &o.OrderID, &o.Locator, &o.RecipientEmail, &o.PaymentMethod,
			&o.Currency, &o.PayerAddress, &o.TxHash, &o.Status, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析订单记录失败")
		}
		o.CreatedAt = createdAt.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历订单记录失败")
	}
	return out, nil
}

// Close 关闭连接池。
func (j *OrderJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
