// Package events 预订变更事件的异步出站
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"apartel/internal/models"
	"apartel/pkg/logger"
	"apartel/pkg/queue"

	"github.com/sirupsen/logrus"
)

// 事件类型
const (
	TypeBookingCreated = "booking.created"
	TypeBookingUpdated = "booking.updated"
)

// BookingEvent 预订变更事件
type BookingEvent struct {
	Type       string         `json:"type"`
	TenantID   string         `json:"tenantId"`
	Booking    models.Booking `json:"booking"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Publisher 事件发布者，Publish 不得阻塞调用方
type Publisher interface {
	Publish(event BookingEvent)
}

// Sink 事件的最终投递目标
type Sink interface {
	Send(ctx context.Context, event BookingEvent) error
	Close() error
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Publish(BookingEvent) {}

// AsyncPublisher 缓冲通道 + 工作池，队列满时丢弃事件并记录日志
type AsyncPublisher struct {
	sink    Sink
	events  chan BookingEvent
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncPublisher 创建并启动异步发布者
func NewAsyncPublisher(sink Sink, buffer, workers int) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 1000
	}
	if workers <= 0 {
		workers = 1
	}

	p := &AsyncPublisher{
		sink:    sink,
		events:  make(chan BookingEvent, buffer),
		timeout: 5 * time.Second,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.GetLogger().Infof("事件发布工作池已启动: workers=%d buffer=%d", workers, buffer)
	return p
}

func (p *AsyncPublisher) worker(id int) {
	defer p.wg.Done()

	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.sink.Send(ctx, event)
		cancel()
		if err != nil {
			logger.GetLogger().WithFields(logrus.Fields{
				"worker":    id,
				"type":      event.Type,
				"tenant_id": event.TenantID,
				"booking":   event.Booking.ID,
			}).Warnf("事件投递失败: %v", err)
		}
	}
}

// Publish 非阻塞入队
func (p *AsyncPublisher) Publish(event BookingEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.events <- event:
	default:
		logger.GetLogger().WithFields(logrus.Fields{
			"type":      event.Type,
			"tenant_id": event.TenantID,
			"booking":   event.Booking.ID,
		}).Warn("事件队列已满，丢弃事件")
	}
}

// Close 停止接收新事件，等待队列中的事件投递完毕后关闭 sink
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	p.wg.Wait()
	return p.sink.Close()
}

// ========== Sinks ==========

// KafkaSink 写入 Kafka，消息键为租户ID
type KafkaSink struct {
	producer *queue.KafkaProducer
}

// NewKafkaSink 创建 Kafka 投递目标
func NewKafkaSink(producer *queue.KafkaProducer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Send(ctx context.Context, event BookingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	return s.producer.Write(ctx, event.TenantID, data, map[string]string{
		"event_type": event.Type,
		"tenant_id":  event.TenantID,
	})
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// RedisSink 发布到 Redis 频道
type RedisSink struct {
	queue   *queue.RedisQueue
	channel string
}

// NewRedisSink 创建 Redis 投递目标
func NewRedisSink(q *queue.RedisQueue, channel string) *RedisSink {
	return &RedisSink{queue: q, channel: channel}
}

func (s *RedisSink) Send(ctx context.Context, event BookingEvent) error {
	return s.queue.PublishMessage(ctx, s.channel, event)
}

// Close 连接由调用方管理
func (s *RedisSink) Close() error {
	return nil
}

// LogSink 仅写日志，未配置消息中间件时使用
type LogSink struct{}

func (LogSink) Send(ctx context.Context, event BookingEvent) error {
	logger.GetLogger().WithFields(logrus.Fields{
		"type":      event.Type,
		"tenant_id": event.TenantID,
		"booking":   event.Booking.ID,
		"unit":      event.Booking.UnitID,
	}).Info("预订事件")
	return nil
}

func (LogSink) Close() error { return nil }
