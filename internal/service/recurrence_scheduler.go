package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RecurrenceScheduler 定期执行到期的循环规则
type RecurrenceScheduler struct {
	recurrences RecurrenceService
	interval    time.Duration
	actor       string
	logger      logrus.FieldLogger
	stopChan    chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
}

// NewRecurrenceScheduler 创建调度器, interval <= 0 时使用 1 小时
func NewRecurrenceScheduler(recurrences RecurrenceService, interval time.Duration, actor string, logger logrus.FieldLogger) *RecurrenceScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if actor == "" {
		actor = CronActor
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RecurrenceScheduler{
		recurrences: recurrences,
		interval:    interval,
		actor:       actor,
		logger:      logger,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start 启动调度器, 启动时立即执行一次
func (s *RecurrenceScheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop 停止调度器并等待当前执行结束
func (s *RecurrenceScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

// Interval 执行间隔
func (s *RecurrenceScheduler) Interval() time.Duration {
	return s.interval
}

func (s *RecurrenceScheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce 执行一轮, 错误只记录日志
func (s *RecurrenceScheduler) RunOnce(ctx context.Context) *RecurrenceRunResult {
	result, err := s.recurrences.RunDueRecurrences(ctx, s.actor)
	if err != nil {
		s.logger.WithError(err).Error("recurrence pass failed")
	}
	return result
}
