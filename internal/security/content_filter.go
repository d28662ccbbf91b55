package security

import (
	"strings"
)

// ContentFilter 外发内容过滤器。
//
// 关键词命中即拒绝发送：对正文做不区分大小写的子串匹配，
// 命中任何一个关键词都会拦截整封邮件。主题不参与匹配。
type ContentFilter struct {
	denylist []string
}

// NewContentFilter 创建内容过滤器。关键词统一转为小写保存。
func NewContentFilter(denylist []string) *ContentFilter {
	normalized := make([]string, 0, len(denylist))
	for _, keyword := range denylist {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			normalized = append(normalized, keyword)
		}
	}
	return &ContentFilter{denylist: normalized}
}

// Check 检查外发正文，返回是否放行以及命中的关键词。
func (cf *ContentFilter) Check(body string) (allowed bool, matched string) {
	content := strings.ToLower(body)
	for _, keyword := range cf.denylist {
		if strings.Contains(content, keyword) {
			return false, keyword
		}
	}
	return true, ""
}
