package service

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delayer 模拟网络延迟。每个服务方法在返回前调用一次。
type Delayer interface {
	Delay(ctx context.Context) error
}

// RandomDelayer 在 [Min, Max] 之间均匀随机等待
type RandomDelayer struct {
	Min time.Duration
	Max time.Duration
}

// Delay 等待随机时长，ctx 取消时提前返回
func (d RandomDelayer) Delay(ctx context.Context) error {
	wait := d.Min
	if d.Max > d.Min {
		wait += time.Duration(rand.Int64N(int64(d.Max-d.Min) + 1))
	}
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoDelay 不等待，只检查 ctx
type NoDelay struct{}

// Delay 实现 Delayer
func (NoDelay) Delay(ctx context.Context) error {
	return ctx.Err()
}
