package orders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	xerrors "ChainCart/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述订单事件队列的连接参数。
type RabbitMQConfig struct {
	URL     string
	Queue   string
	Durable bool
}

// OrderEvent 是投递到队列的消息体。
type OrderEvent struct {
	Type  string `json:"type"`
	Order Order  `json:"order"`
}

// EventOrderCompleted 是订单完成事件的类型名。
const EventOrderCompleted = "order.completed"

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQNotifier 使用 RabbitMQ 发布订单完成事件。
type RabbitMQNotifier struct {
	conn  *amqp.Connection
	ch    amqpPublisher
	queue string
}

// NewRabbitMQNotifier 连接 RabbitMQ 并声明队列。
func NewRabbitMQNotifier(cfg RabbitMQConfig) (*RabbitMQNotifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "chaincart.orders"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败")
	}
	return &RabbitMQNotifier{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 将订单事件投递到队列。
func (n *RabbitMQNotifier) Publish(ctx context.Context, order Order) error {
	if n == nil || n.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 通知未初始化")
	}
	body, err := json.Marshal(OrderEvent{Type: EventOrderCompleted, Order: order})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化订单事件失败")
	}
	err = n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    order.ID,
		Timestamp:    time.Now().UTC(),
		Type:         EventOrderCompleted,
		Body:         body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布订单事件失败")
	}
	return nil
}

// Close 关闭 RabbitMQ 连接。
func (n *RabbitMQNotifier) Close() error {
	if n == nil {
		return nil
	}
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
