package repository

import (
	"errors"

	"github.com/mautops/crm-gin/internal/model"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// notFound 把 gorm 的未找到错误统一为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// applyTeamScope 按可见团队过滤查询;includeNull 为 true 时同时包含无团队的记录
func applyTeamScope(q *gorm.DB, column string, scope *model.TeamSet, includeNull bool) *gorm.DB {
	if scope.Unrestricted() {
		return q
	}
	ids := scope.IDs()
	if len(ids) == 0 {
		if includeNull {
			return q.Where(column + " IS NULL")
		}
		return q.Where("1 = 0")
	}
	if includeNull {
		return q.Where("("+column+" IN ? OR "+column+" IS NULL)", ids)
	}
	return q.Where(column+" IN ?", ids)
}
