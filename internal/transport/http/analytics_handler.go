package httptransport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtrace/backend/internal/service"
)

// AnalyticsHandler 处理追踪数据查询与导出的 HTTP 请求
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	log       *zap.Logger
}

// NewAnalyticsHandler 创建分析处理器。
func NewAnalyticsHandler(analytics *service.AnalyticsService, log *zap.Logger) *AnalyticsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsHandler{
		analytics: analytics,
		log:       log,
	}
}

// List 返回当前用户的追踪数据与汇总
// @Summary 追踪数据列表
// @Tags 分析
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "追踪数据"
// @Router /v1/analytics [get]
func (h *AnalyticsHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	items, err := h.analytics.List(userID)
	if err != nil {
		h.log.Error("failed to list tracking data", zap.Error(err))
		InternalError(c, MsgAnalyticsFailed)
		return
	}

	summary, err := h.analytics.Summary(userID)
	if err != nil {
		h.log.Error("failed to build analytics summary", zap.Error(err))
		InternalError(c, MsgAnalyticsFailed)
		return
	}

	Success(c, gin.H{
		"emails":  items,
		"summary": summary,
	})
}

// Export 把当前用户的追踪数据导出为 CSV
// @Summary 追踪数据导出
// @Tags 分析
// @Produce text/csv
// @Security BearerAuth
// @Success 200 {file} binary "CSV 文件"
// @Router /v1/analytics/export [get]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	userID := c.GetString("userID")

	data, err := h.analytics.ExportCSV(userID)
	if err != nil {
		h.log.Error("failed to export csv", zap.Error(err))
		InternalError(c, MsgExportFailed)
		return
	}

	filename := fmt.Sprintf("tracking-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
