package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 订单号、提现单号都由它生成：全局唯一、趋势递增，不暴露业务量。
// ============================================================================

const (
	epoch          = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

const (
	PrefixOrder      = "ORD"
	PrefixWithdrawal = "WDR"
)

var ErrInvalidWorkerID = fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() time.Time
}

// New 创建生成器，多实例部署时每个实例使用不同的 workerID
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Snowflake{workerID: workerID, now: time.Now}, nil
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// NextNo 生成业务单号
// 格式：前缀 + 年月日时分秒 + 雪花ID，例如 ORD20240115143052_123456789012
func (s *Snowflake) NextNo(prefix string) string {
	id := s.Generate()
	return fmt.Sprintf("%s%s_%d", prefix, s.now().Format("20060102150405"), id)
}

// OrderNo 生成订单号
func (s *Snowflake) OrderNo() string {
	return s.NextNo(PrefixOrder)
}

// WithdrawalNo 生成提现单号，同时作为打款渠道的幂等参考号
func (s *Snowflake) WithdrawalNo() string {
	return s.NextNo(PrefixWithdrawal)
}

// ParseTime 从 ID 中还原生成时间
func ParseTime(id int64) (time.Time, error) {
	if id < 0 {
		return time.Time{}, errors.New("非法ID")
	}
	ms := (id >> timestampShift) + epoch
	return time.UnixMilli(ms), nil
}
