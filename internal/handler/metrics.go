package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/pkg/monitor"
)

type statusCount struct {
	Status model.RequestStatus
	Count  int64
}

// GetMetrics godoc
// @Summary Prometheus 指标
// @Description 刷新各状态请求数量后，返回 Prometheus 能够识别的信息
// @Tags Metrics
// @Produce plain
// @Success 200 {string} string "exposition format"
// @Failure 500 {object} resputil.Response[any] "其他错误"
// @Router /metrics [get]
func GetMetrics(db *gorm.DB) gin.HandlerFunc {
	promHTTPHandler := monitor.Handler()
	return func(c *gin.Context) {
		var rows []statusCount
		err := db.WithContext(c).Model(&model.Request{}).
			Select("status, COUNT(*) AS count").Group("status").
			Scan(&rows).Error
		if err != nil {
			klog.Errorf("count requests by status: %v", err)
			resputil.Error(c, err.Error(), resputil.NotSpecified)
			return
		}
		counts := make(map[model.RequestStatus]int64, len(rows))
		for _, row := range rows {
			counts[row.Status] = row.Count
		}
		monitor.SetRequestCounts(counts)
		promHTTPHandler.ServeHTTP(c.Writer, c.Request)
	}
}
