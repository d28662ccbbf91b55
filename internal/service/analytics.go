package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"mailtrace/backend/internal/domain"
	"mailtrace/backend/internal/storage"
)

// AnalyticsSummary 用户发送追踪数据的汇总。
type AnalyticsSummary struct {
	TotalSent    int     `json:"totalSent"`
	OpenedCount  int     `json:"openedCount"`
	ClickedCount int     `json:"clickedCount"`
	OpenRate     float64 `json:"openRate"`
	ClickRate    float64 `json:"clickRate"`
}

// AnalyticsService 提供每用户的追踪数据查询与导出。
type AnalyticsService struct {
	repo storage.TrackingRepository
}

// NewAnalyticsService 创建分析服务。
func NewAnalyticsService(repo storage.TrackingRepository) *AnalyticsService {
	return &AnalyticsService{repo: repo}
}

// List 返回用户全部已发送邮件及其追踪状态，按发送时间倒序。
func (s *AnalyticsService) List(userID string) ([]domain.EmailWithTracking, error) {
	return s.repo.ListTrackingForUser(userID)
}

// Summary 计算用户的打开率/点击率汇总。
func (s *AnalyticsService) Summary(userID string) (*AnalyticsSummary, error) {
	items, err := s.repo.ListTrackingForUser(userID)
	if err != nil {
		return nil, err
	}

	summary := &AnalyticsSummary{TotalSent: len(items)}
	for _, item := range items {
		if item.Tracking == nil {
			continue
		}
		if item.Tracking.Opened {
			summary.OpenedCount++
		}
		if item.Tracking.Clicked {
			summary.ClickedCount++
		}
	}
	if summary.TotalSent > 0 {
		summary.OpenRate = float64(summary.OpenedCount) / float64(summary.TotalSent)
		summary.ClickRate = float64(summary.ClickedCount) / float64(summary.TotalSent)
	}
	return summary, nil
}

// ExportCSV 把用户的追踪数据导出为 CSV。
func (s *AnalyticsService) ExportCSV(userID string) ([]byte, error) {
	items, err := s.repo.ListTrackingForUser(userID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Recipient", "Subject", "Opened", "Opened At", "Clicked", "Clicked At"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, item := range items {
		record := []string{
			item.Email.Recipient,
			item.Email.Subject,
			"No", "",
			"No", "",
		}
		if t := item.Tracking; t != nil {
			if t.Opened {
				record[2] = "Yes"
				record[3] = formatEventTime(t.OpenedAt)
			}
			if t.Clicked {
				record[4] = "Yes"
				record[5] = formatEventTime(t.ClickedAt)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatEventTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
