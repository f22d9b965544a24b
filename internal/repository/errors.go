package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKey 判断是否为唯一约束冲突。
// 驱动开启 TranslateError 后返回 gorm.ErrDuplicatedKey，这里再兜底匹配原始错误文本
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	lc := strings.ToLower(err.Error())
	return strings.Contains(lc, "duplicate") ||
		strings.Contains(lc, "unique constraint") ||
		strings.Contains(lc, "uq_")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
