package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/permgate/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 主题
const (
	TopicAuthzInvalidate = "authz.invalidate"
)

// Message 广播消息
type Message struct {
	Topic     string    `json:"topic"`
	NodeID    string    `json:"nodeId"` // 发送者节点ID
	Payload   []byte    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler 消息处理器
type Handler func(ctx context.Context, msg *Message)

// Broadcaster 基于 Redis 发布订阅的进程间广播器
type Broadcaster struct {
	client  *redis.Client
	channel string
	nodeID  string

	mu          sync.RWMutex
	subscribers map[string][]Handler

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建广播器
func New(client *redis.Client, channel string) *Broadcaster {
	return &Broadcaster{
		client:      client,
		channel:     channel,
		nodeID:      uuid.NewString(),
		subscribers: make(map[string][]Handler),
	}
}

// NodeID 当前节点ID
func (b *Broadcaster) NodeID() string {
	return b.nodeID
}

// Subscribe 订阅 topic，只接收其他节点发出的消息
func (b *Broadcaster) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish 广播到其他节点
func (b *Broadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(&Message{
		Topic:     topic,
		NodeID:    b.nodeID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// PublishJSON 广播 JSON 消息
func (b *Broadcaster) PublishJSON(ctx context.Context, topic string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return b.Publish(ctx, topic, payload)
}

// Start 订阅频道并启动接收协程，订阅确认后返回
func (b *Broadcaster) Start(ctx context.Context) error {
	if b.pubsub != nil {
		return errors.New("broadcaster already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.pubsub = pubsub
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.loop(runCtx, pubsub.Channel())

	logger.Info("广播器已启动",
		zap.String("channel", b.channel),
		zap.String("node_id", b.nodeID),
	)
	return nil
}

func (b *Broadcaster) loop(ctx context.Context, ch <-chan *redis.Message) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Warn("广播消息解析失败", zap.String("channel", raw.Channel), zap.Error(err))
				continue
			}
			b.handleMessage(ctx, &msg)
		}
	}
}

// handleMessage 处理消息，忽略自己发出的消息
func (b *Broadcaster) handleMessage(ctx context.Context, msg *Message) {
	if msg.NodeID == b.nodeID {
		return
	}

	b.mu.RLock()
	handlers := b.subscribers[msg.Topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, msg)
	}
}

// Stop 停止广播器
func (b *Broadcaster) Stop() error {
	if b.pubsub == nil {
		return nil
	}
	b.cancel()
	err := b.pubsub.Close()
	<-b.done
	b.pubsub = nil
	return err
}
