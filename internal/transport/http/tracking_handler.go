package httptransport

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtrace/backend/internal/service"
	"mailtrace/backend/internal/storage"
)

// pixelPNG 固定返回的 1x1 透明 PNG。
var pixelPNG = func() []byte {
	const encoded = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		panic("invalid pixel png: " + err.Error())
	}
	return data
}()

// TrackingHandler 处理公开的追踪像素与点击跳转请求。
//
// 这两个端点对任何输入都返回同样形态的响应：像素永远是 200 + PNG，
// 点击永远是 302。追踪 ID 是否存在、迁移是否发生，从响应上不可区分，
// 避免探测有效 ID。
type TrackingHandler struct {
	tracking *service.TrackingService
	log      *zap.Logger
}

// NewTrackingHandler 创建追踪处理器。
func NewTrackingHandler(tracking *service.TrackingService, log *zap.Logger) *TrackingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrackingHandler{
		tracking: tracking,
		log:      log,
	}
}

// Pixel 追踪像素端点
// @Summary 追踪像素
// @Description 记录一次邮件打开，无论追踪 ID 是否有效都返回固定的 1x1 PNG
// @Tags 追踪
// @Produce png
// @Param trackingId path string true "追踪 ID"
// @Success 200 {file} binary "1x1 PNG"
// @Router /track/{trackingId} [get]
func (h *TrackingHandler) Pixel(c *gin.Context) {
	trackingID := c.Param("trackingId")

	if err := h.tracking.RecordOpen(c.Request.Context(), trackingID); err != nil {
		// 未知 ID 静默吞掉，其余错误只记日志
		if !errors.Is(err, storage.ErrTrackingNotFound) {
			h.log.Error("failed to record open",
				zap.String("tracking_id", trackingID),
				zap.Error(err),
			)
		}
	}

	// 禁止客户端缓存，重复打开才会到达服务端
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Data(http.StatusOK, "image/png", pixelPNG)
}

// Click 点击跳转端点
// @Summary 点击跳转
// @Description 记录一次链接点击并 302 跳转到目标地址，无论追踪 ID 是否有效
// @Tags 追踪
// @Param trackingId path string true "追踪 ID"
// @Param destination path string true "转义后的目标地址"
// @Success 302 "跳转到目标地址"
// @Router /track-click/{trackingId}/{destination} [get]
func (h *TrackingHandler) Click(c *gin.Context) {
	trackingID := c.Param("trackingId")
	destination := decodeDestination(c.Param("destination"))

	if err := h.tracking.RecordClick(c.Request.Context(), trackingID, destination); err != nil {
		if !errors.Is(err, storage.ErrTrackingNotFound) {
			h.log.Error("failed to record click",
				zap.String("tracking_id", trackingID),
				zap.Error(err),
			)
		}
	}

	c.Redirect(http.StatusFound, destination)
}

// decodeDestination 还原路径尾部的目标地址。
// 转义损坏时按原样跳转，空目标回落到站点根。
func decodeDestination(raw string) string {
	raw = strings.TrimPrefix(raw, "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if decoded == "" {
		return "/"
	}
	return decoded
}
