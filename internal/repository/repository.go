// Package repository 提供订单账本的持久化访问
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository 基础仓储
// 所有仓储实现都应该嵌入此结构
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建基础仓储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB 返回带请求上下文的数据库连接
func (r *Repository) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// nowMilli 当前毫秒时间戳
func nowMilli() int64 {
	return time.Now().UnixMilli()
}
