package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"serial-gateway/internal/utils"
)

// ==================== 常量定义 ====================

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500

	frameListKeyFormat      = "%s:frames"
	transitionListKeyFormat = "%s:transitions"
	rxCounterKeyFormat      = "%s:stats:rx"
	txCounterKeyFormat      = "%s:stats:tx"
	dropCounterKeyFormat    = "%s:stats:transitions"

	// 帧方向
	DirectionIn  = "in"
	DirectionOut = "out"
)

// ==================== 数据结构 ====================

// FrameRecord 一条串口帧记录
type FrameRecord struct {
	Direction string `json:"direction"`  // in / out
	Payload   string `json:"payload"`    // Hex 编码的帧内容
	Size      int    `json:"size"`       // 帧字节数
	CreatedAt int64  `json:"created_at"` // Unix 毫秒时间戳
}

// TransitionRecord 一条连接状态变更记录
type TransitionRecord struct {
	Connected bool  `json:"connected"`
	CreatedAt int64 `json:"created_at"`
}

// Stats 帧统计
type Stats struct {
	FramesIn    int64 `json:"frames_in"`
	FramesOut   int64 `json:"frames_out"`
	Transitions int64 `json:"transitions"`
}

// RedisStore 串口流量的 Redis 热存储
// 最近的帧和状态变更保存在定长列表里，计数器单独累加
type RedisStore struct {
	client       *redis.Client
	namespace    string
	maxKeep      int64
	ttl          time.Duration
	timeProvider func() time.Time
}

// NewRedisStore 创建 Redis 存储实例
func NewRedisStore(client *redis.Client, namespace string, maxKeep int64, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		maxKeep:   maxKeep,
		ttl:       ttl,
	}
}

// SetTimeProvider 设置时间提供函数（主要用于测试）
func (store *RedisStore) SetTimeProvider(provider func() time.Time) {
	store.timeProvider = provider
}

// ==================== 核心方法 ====================

// RecordFrame 保存一条帧记录并累加方向计数
func (store *RedisStore) RecordFrame(ctx context.Context, direction string, payload []byte) error {
	record := FrameRecord{
		Direction: direction,
		Payload:   utils.BytesToHex(payload),
		Size:      len(payload),
		CreatedAt: store.now().UnixMilli(),
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal frame record failed: %w", err)
	}

	listKey := store.frameListKey()
	counterKey := store.counterKey(direction)

	pipeline := store.client.Pipeline()
	pipeline.LPush(ctx, listKey, encoded)
	pipeline.LTrim(ctx, listKey, 0, store.maxKeep-1)
	pipeline.Expire(ctx, listKey, store.ttl)
	pipeline.Incr(ctx, counterKey)

	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("save frame record failed: %w", err)
	}
	return nil
}

// RecordTransition 保存一条连接状态变更记录
func (store *RedisStore) RecordTransition(ctx context.Context, connected bool) error {
	record := TransitionRecord{
		Connected: connected,
		CreatedAt: store.now().UnixMilli(),
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal transition record failed: %w", err)
	}

	listKey := store.transitionListKey()

	pipeline := store.client.Pipeline()
	pipeline.LPush(ctx, listKey, encoded)
	pipeline.LTrim(ctx, listKey, 0, store.maxKeep-1)
	pipeline.Expire(ctx, listKey, store.ttl)
	pipeline.Incr(ctx, fmt.Sprintf(dropCounterKeyFormat, store.namespace))

	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("save transition record failed: %w", err)
	}
	return nil
}

// RecentFrames 查询最近的帧记录，按时间倒序
func (store *RedisStore) RecentFrames(ctx context.Context, limit int64) ([]FrameRecord, error) {
	limit = normalizeQueryLimit(limit)

	rows, err := store.client.LRange(ctx, store.frameListKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("query frames failed: %w", err)
	}

	frames := make([]FrameRecord, 0, len(rows))
	for _, row := range rows {
		var record FrameRecord
		if err := json.Unmarshal([]byte(row), &record); err != nil {
			continue // 跳过损坏的记录
		}
		frames = append(frames, record)
	}
	return frames, nil
}

// RecentTransitions 查询最近的连接状态变更，按时间倒序
func (store *RedisStore) RecentTransitions(ctx context.Context, limit int64) ([]TransitionRecord, error) {
	limit = normalizeQueryLimit(limit)

	rows, err := store.client.LRange(ctx, store.transitionListKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("query transitions failed: %w", err)
	}

	transitions := make([]TransitionRecord, 0, len(rows))
	for _, row := range rows {
		var record TransitionRecord
		if err := json.Unmarshal([]byte(row), &record); err != nil {
			continue
		}
		transitions = append(transitions, record)
	}
	return transitions, nil
}

// QueryStats 查询帧统计计数
func (store *RedisStore) QueryStats(ctx context.Context) (Stats, error) {
	var stats Stats

	values, err := store.client.MGet(ctx,
		fmt.Sprintf(rxCounterKeyFormat, store.namespace),
		fmt.Sprintf(txCounterKeyFormat, store.namespace),
		fmt.Sprintf(dropCounterKeyFormat, store.namespace),
	).Result()
	if err != nil {
		return stats, fmt.Errorf("query stats failed: %w", err)
	}

	stats.FramesIn = parseCounter(values[0])
	stats.FramesOut = parseCounter(values[1])
	stats.Transitions = parseCounter(values[2])
	return stats, nil
}

// ==================== 内部辅助 ====================

func (store *RedisStore) now() time.Time {
	if store.timeProvider != nil {
		return store.timeProvider()
	}
	return time.Now()
}

func (store *RedisStore) frameListKey() string {
	return fmt.Sprintf(frameListKeyFormat, store.namespace)
}

func (store *RedisStore) transitionListKey() string {
	return fmt.Sprintf(transitionListKeyFormat, store.namespace)
}

func (store *RedisStore) counterKey(direction string) string {
	if direction == DirectionOut {
		return fmt.Sprintf(txCounterKeyFormat, store.namespace)
	}
	return fmt.Sprintf(rxCounterKeyFormat, store.namespace)
}

// normalizeQueryLimit 约束查询条数，避免一次拉取过大数据集
func normalizeQueryLimit(limit int64) int64 {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

// parseCounter 解析 MGET 返回的计数值，缺失时为 0
func parseCounter(value interface{}) int64 {
	text, ok := value.(string)
	if !ok {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(text, "%d", &n); err != nil {
		return 0
	}
	return n
}
