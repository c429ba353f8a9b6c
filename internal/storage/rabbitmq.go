package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"recruit-go/internal/config"
	"recruit-go/internal/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const amqpAppID = "recruit-go"

// RabbitMQ 批量上传事件的发布和消费
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	cfg         *config.RabbitMQConfig

	declareMu sync.Mutex
	declared  map[string]bool // exchange:<name>, queue:<name>, bind:<exchange>:<queue>:<key>
}

// NewRabbitMQ 连接 RabbitMQ 并验证可以打开通道
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{conn: conn, cfg: cfg, declared: make(map[string]bool)}
	mq.channelPool.New = func() any {
		ch, err := conn.Channel()
		if err != nil {
			logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
			return nil
		}
		return ch
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	logger.Info().Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch, _ := r.channelPool.Get().(*amqp.Channel)
	if ch == nil || ch.IsClosed() {
		newCh, err := r.conn.Channel()
		if err != nil {
			logger.Error().Err(err).Msg("创建新RabbitMQ通道失败")
			return nil
		}
		return newCh
	}
	return ch
}

// 已关闭的通道直接丢弃
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// SetupBatchEvents 声明批量事件的 topic 交换机，并在配置了队列时绑定 batch.upload.#
func (r *RabbitMQ) SetupBatchEvents() error {
	if err := r.EnsureExchange(r.cfg.BatchEventsExchange, amqp.ExchangeTopic, true); err != nil {
		return err
	}
	if r.cfg.BatchEventsQueue == "" {
		return nil
	}
	if err := r.EnsureQueue(r.cfg.BatchEventsQueue, true); err != nil {
		return err
	}
	return r.BindQueue(r.cfg.BatchEventsQueue, r.cfg.BatchEventsExchange, "batch.upload.#")
}

// declareOnce 每个拓扑对象在连接生命周期内只声明一次
func (r *RabbitMQ) declareOnce(key string, declare func(ch *amqp.Channel) error) error {
	r.declareMu.Lock()
	defer r.declareMu.Unlock()
	if r.declared[key] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if err := declare(ch); err != nil {
		return err
	}
	r.declared[key] = true
	logger.Info().Str("object", key).Msg("RabbitMQ拓扑已声明")
	return nil
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}
	return r.declareOnce("exchange:"+exchangeName, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(exchangeName, exchangeType, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明exchange失败: %w", err)
		}
		return nil
	})
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	return r.declareOnce("queue:"+queueName, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queueName, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明队列失败: %w", err)
		}
		return nil
	})
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	key := fmt.Sprintf("bind:%s:%s:%s", exchangeName, queueName, routingKey)
	return r.declareOnce(key, func(ch *amqp.Channel) error {
		if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
			return fmt.Errorf("绑定队列到exchange失败: %w", err)
		}
		return nil
	})
}

// PublishMessage 发布消息，当前 span 的上下文写入消息头
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	return ch.PublishWithContext(ctx, exchangeName, routingKey, false, false,
		newPublishing(ctx, message, persistent, time.Now()))
}

func newPublishing(ctx context.Context, body []byte, persistent bool, now time.Time) amqp.Publishing {
	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, amqpHeaderCarrier(headers))
	return amqp.Publishing{
		Headers:      headers,
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		AppId:        amqpAppID,
		Timestamp:    now,
		Body:         body,
	}
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// StartConsumer 启动消费者，handler 返回 false 时消息被拒绝且不重新入队。关闭返回的通道即可停止。
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan<- struct{}, error) {
	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}
	deliveries, err := ch.Consume(queueName, amqpAppID+"-"+queueName, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	stopCh := make(chan struct{})
	go func() {
		// 消费通道不归还到池中
		defer ch.Close()
		log := logger.Logger.With().Str("queue", queueName).Logger()
		log.Info().Int("prefetch", prefetchCount).Msg("RabbitMQ消费者已启动")
		defer log.Info().Msg("RabbitMQ消费者已停止")

		for {
			select {
			case <-stopCh:
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("RabbitMQ通道已关闭")
					return
				}
				if handler(d.Body) {
					if err := d.Ack(false); err != nil {
						log.Error().Err(err).Str("message_id", d.MessageId).Msg("确认消息失败")
					}
				} else if err := d.Nack(false, false); err != nil {
					log.Error().Err(err).Str("message_id", d.MessageId).Msg("拒绝消息失败")
				}
			}
		}
	}()
	return stopCh, nil
}

// amqpHeaderCarrier 让 otel propagator 读写 amqp 消息头
type amqpHeaderCarrier amqp.Table

var _ propagation.TextMapCarrier = amqpHeaderCarrier(nil)

func (c amqpHeaderCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c amqpHeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c amqpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
