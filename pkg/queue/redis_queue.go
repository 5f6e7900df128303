package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue Redis 消息出站：发布订阅用于实时通知，列表用于可靠消费
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewRedisQueue 创建Redis队列实例
func NewRedisQueue(config *Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return NewRedisQueueWithClient(client, config.Prefix)
}

// NewRedisQueueWithClient 使用已有客户端创建队列
func NewRedisQueueWithClient(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "apartel"
	}
	return &RedisQueue{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping 测试Redis连接
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// GetClient 获取Redis客户端（用于分布式锁等高级操作）
func (q *RedisQueue) GetClient() *redis.Client {
	return q.client
}

// Prefix 键前缀
func (q *RedisQueue) Prefix() string {
	return q.prefix
}

// PublishMessage 发布消息到指定频道，同时写入同名列表供离线消费者补偿
func (q *RedisQueue) PublishMessage(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Publish(ctx, q.channelKey(channel), data)
	pipe.LPush(ctx, q.listKey(channel), data)
	pipe.LTrim(ctx, q.listKey(channel), 0, 9999)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	return nil
}

// SubscribeChannel 订阅指定频道
func (q *RedisQueue) SubscribeChannel(ctx context.Context, channel string) *redis.PubSub {
	return q.client.Subscribe(ctx, q.channelKey(channel))
}

// channelKey 获取频道键名
func (q *RedisQueue) channelKey(channel string) string {
	return fmt.Sprintf("%s:channel:%s", q.prefix, channel)
}

// listKey 获取列表键名
func (q *RedisQueue) listKey(channel string) string {
	return fmt.Sprintf("%s:events:%s", q.prefix, channel)
}
