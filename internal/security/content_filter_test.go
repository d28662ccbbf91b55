package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentFilter_Check(t *testing.T) {
	filter := NewContentFilter([]string{"spam", "lottery"})

	t.Run("正常内容放行", func(t *testing.T) {
		allowed, matched := filter.Check("Buy ham now")
		assert.True(t, allowed)
		assert.Empty(t, matched)
	})

	t.Run("关键词匹配不区分大小写", func(t *testing.T) {
		allowed, matched := filter.Check("Buy SPAM now")
		assert.False(t, allowed)
		assert.Equal(t, "spam", matched)
	})

	t.Run("子串命中也拦截", func(t *testing.T) {
		allowed, _ := filter.Check("this is spammy content")
		assert.False(t, allowed)
	})

	t.Run("多个关键词任一命中即拦截", func(t *testing.T) {
		allowed, matched := filter.Check("you won the LOTTERY")
		assert.False(t, allowed)
		assert.Equal(t, "lottery", matched)
	})
}

func TestContentFilter_EmptyDenylist(t *testing.T) {
	filter := NewContentFilter(nil)
	allowed, _ := filter.Check("goes spam here")
	assert.True(t, allowed)
}

func TestContentFilter_NormalizesKeywords(t *testing.T) {
	filter := NewContentFilter([]string{"  SPAM  ", ""})
	allowed, matched := filter.Check("contains spam word")
	assert.False(t, allowed)
	assert.Equal(t, "spam", matched)
}
