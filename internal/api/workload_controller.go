package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/service"
)

// WorkloadController 团队负载与统计
type WorkloadController struct {
	workload   service.WorkloadService
	statistics service.StatisticsService
}

// NewWorkloadController 创建负载控制器
func NewWorkloadController(workload service.WorkloadService, statistics service.StatisticsService) *WorkloadController {
	return &WorkloadController{workload: workload, statistics: statistics}
}

// Workload 按团队统计负载, days 默认 30
func (w *WorkloadController) Workload(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	days := service.DefaultWorkloadWindowDays
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			Error(c, http.StatusBadRequest, "invalid days", raw)
			return
		}
		days = v
	}
	rows, err := w.workload.ComputeWorkload(c.Request.Context(), p, days)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"days": days, "rows": rows})
}

// Statistics 按阶段、优先级和日期统计任务
func (w *WorkloadController) Statistics(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	byStage, err := w.statistics.GetTaskStatisticsByStage(ctx, p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	byPriority, err := w.statistics.GetTaskStatisticsByPriority(ctx, p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	byDate, err := w.statistics.GetTaskStatisticsByTime(ctx, p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{
		"by_stage":    byStage,
		"by_priority": byPriority,
		"by_date":     byDate,
	})
}
