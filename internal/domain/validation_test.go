package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	v := NewEmailValidator()

	t.Run("合法地址通过", func(t *testing.T) {
		assert.NoError(t, v.ValidateAddress("alice@example.com"))
		assert.NoError(t, v.ValidateAddress("bob.smith+tag@mail.example.org"))
		assert.NoError(t, v.ValidateAddress("  carol@example.com  "))
	})

	t.Run("非法地址被拒绝", func(t *testing.T) {
		assert.ErrorIs(t, v.ValidateAddress(""), ErrInvalidEmail)
		assert.ErrorIs(t, v.ValidateAddress("not-an-email"), ErrInvalidEmail)
		assert.ErrorIs(t, v.ValidateAddress("missing@domain@twice.com"), ErrInvalidEmail)
	})

	t.Run("超长地址被拒绝", func(t *testing.T) {
		long := strings.Repeat("a", MaxEmailLength) + "@example.com"
		assert.ErrorIs(t, v.ValidateAddress(long), ErrEmailTooLong)
	})
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("longenough1"))
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", MaxPasswordLength+1)), ErrPasswordTooLong)
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice"))
	assert.NoError(t, ValidateUsername("a1b.c_d-e"))
	assert.ErrorIs(t, ValidateUsername("ab"), ErrUsernameInvalid)
	assert.ErrorIs(t, ValidateUsername("1starts-with-digit"), ErrUsernameInvalid)
}

func TestEmailCategoryValid(t *testing.T) {
	for _, c := range []EmailCategory{CategoryInbox, CategorySent, CategoryDraft, CategoryTrash} {
		assert.True(t, c.Valid())
	}
	assert.False(t, EmailCategory("spam-folder").Valid())
}
