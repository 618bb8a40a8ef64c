package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DocumentSummary 文档列表项：最新快照的版本与时间
type DocumentSummary struct {
	DocumentID string    `json:"docId"`
	Revision   uint64    `json:"revision"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// 文档没有单独的表，首次提交即创建；列表从快照表聚合
type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) ListDocuments(ctx context.Context, limit int) ([]DocumentSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []DocumentSummary
	err := s.db.WithContext(ctx).
		Model(&DocumentSnapshot{}).
		Select("document_id, MAX(revision) AS revision, MAX(created_at) AS updated_at").
		Group("document_id").
		Order("updated_at DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
