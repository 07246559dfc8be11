package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Collector 定期采集连接池、阶段分布和积压指标
type Collector struct {
	db       *gorm.DB
	interval time.Duration
	logger   logrus.FieldLogger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器, logger 可为 nil
func NewCollector(db *gorm.DB, interval time.Duration, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// CollectOnce 立即采集一次, 单项失败只记录日志
func (c *Collector) CollectOnce() {
	if err := UpdateDatabaseConnections(c.db); err != nil {
		c.logger.WithError(err).Debug("failed to collect connection metrics")
	}
	if c.db == nil {
		return
	}
	db := c.db.WithContext(c.ctx)
	if err := UpdateTaskDistribution(db); err != nil {
		c.logger.WithError(err).Debug("failed to collect stage metrics")
	}
	if err := UpdateBacklog(db, time.Now().UTC()); err != nil {
		c.logger.WithError(err).Debug("failed to collect backlog metrics")
	}
}

func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}
