// Package sweeper 周期性清扫过期支付会话
//
// 独立于请求流量运行：每个周期调用一次编排器的 SweepExpired，
// 把越过 OTP 截止时间仍在等待验证的会话兜底终结掉
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tuitionpay/pkg/logger"
	"tuitionpay/pkg/payment"
)

// 默认配置
const (
	// DefaultInterval 默认清扫周期
	DefaultInterval = 60 * time.Second
	// sweepTimeout 单轮清扫的超时上限
	sweepTimeout = 30 * time.Second
	// shutdownTimeout 优雅关闭的等待上限
	shutdownTimeout = 30 * time.Second
)

// Sweeper 过期会话清扫器
type Sweeper struct {
	service  *payment.Service
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper 创建清扫器
func NewSweeper(service *payment.Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动清扫协程
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	logger.InfoString("清扫", "启动", fmt.Sprintf("清扫周期 %s", s.interval))
}

// run 清扫主循环
func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			logger.InfoString("清扫", "停止", "清扫协程退出")
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce 执行一轮清扫，单轮失败只记日志，不影响后续周期
func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	swept, err := s.service.SweepExpired(ctx)
	if err != nil {
		logger.ErrorString("清扫", "执行", err.Error())
		return
	}
	if swept > 0 {
		logger.InfoString("清扫", "完成", fmt.Sprintf("终结了 %d 个过期会话", swept))
	}
}

// Stop 优雅关闭清扫器
func (s *Sweeper) Stop() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoString("清扫", "停止", "清扫器已优雅退出")
	case <-time.After(shutdownTimeout):
		logger.WarnString("清扫", "停止", "等待清扫器退出超时")
	}
}
