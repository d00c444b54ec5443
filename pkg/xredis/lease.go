package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MasterLease 多实例部署时的"主节点"租约。
// 抢到租约的实例负责跑定时任务，其他实例空转等待。
// 租约带 TTL，持有者挂掉后锁会自动过期，别的节点接管。
type MasterLease struct {
	rdb *redis.Client
	id  string // 当前节点的唯一ID
}

func NewMasterLease(rdb *redis.Client) *MasterLease {
	// UUID + 纳秒时间戳，保证多实例不撞车
	id := fmt.Sprintf("%s-%d", uuid.New().String(), time.Now().Nanosecond())
	return &MasterLease{
		rdb: rdb,
		id:  id,
	}
}

// TryAcquire 尝试抢占租约
// SETNX: 如果 Key 不存在则设置成功，否则失败
// 如果锁已经是自己的，顺手续期
func (m *MasterLease) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	success, err := m.rdb.SetNX(ctx, key, m.id, ttl).Result()
	if err != nil {
		return false, err
	}
	if success {
		return true, nil
	}

	// 没抢到：检查锁是不是自己的（持有者续期）
	val, err := m.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if val == m.id {
		m.rdb.Expire(ctx, key, ttl)
		return true, nil
	}

	return false, nil
}

// NodeID 当前节点标识，打日志用
func (m *MasterLease) NodeID() string {
	return m.id
}
