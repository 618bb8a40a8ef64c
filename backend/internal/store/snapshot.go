package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"deltaServer/backend/internal/collab"
)

// DocumentSnapshot 一行即某文档在某版本的完整内容（delta JSON）
type DocumentSnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	DocumentID string    `gorm:"column:document_id;type:varchar(128);not null;uniqueIndex:uk_doc_rev,priority:1"`
	Revision   uint64    `gorm:"column:revision;not null;uniqueIndex:uk_doc_rev,priority:2"`
	Content    string    `gorm:"column:content;type:longtext;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (DocumentSnapshot) TableName() string { return "document_snapshots" }

type SnapshotStore struct{ db *gorm.DB }

var _ collab.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot 同一 (doc, rev) 重复保存视为成功
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	row := DocumentSnapshot{DocumentID: docID, Revision: rev, Content: content}
	err := s.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("save snapshot %s@%d: %w", docID, rev, err)
	}
	return nil
}

func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (uint64, string, error) {
	var row DocumentSnapshot
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("revision DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", fmt.Errorf("snapshot of %s: %w", docID, collab.ErrDocumentNotFound)
	}
	if err != nil {
		return 0, "", err
	}
	return row.Revision, row.Content, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
