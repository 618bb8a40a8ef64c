package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"deltaServer/backend/internal/collab"
)

// 需要真实 MySQL：DELTA_TEST_MYSQL_DSN=root:root@tcp(127.0.0.1:3306)/delta_test?parseTime=True
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("DELTA_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skip: DELTA_TEST_MYSQL_DSN not set")
	}
	db, err := InitMySQL(dsn)
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	return db
}

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.True(t, isDuplicateKey(dup))
	assert.True(t, isDuplicateKey(fmt.Errorf("create: %w", dup)))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1146}))
	assert.False(t, isDuplicateKey(errors.New("boom")))
}

func TestSnapshotStore_SaveAndLatest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewSnapshotStore(db)
	docID := "test-" + uuid.NewString()
	t.Cleanup(func() { db.Where("document_id = ?", docID).Delete(&DocumentSnapshot{}) })

	_, _, err := s.LatestSnapshot(ctx, docID)
	assert.ErrorIs(t, err, collab.ErrDocumentNotFound)

	require.NoError(t, s.SaveDocumentSnapshot(ctx, docID, 1, `[{"insert":"a"}]`))
	require.NoError(t, s.SaveDocumentSnapshot(ctx, docID, 3, `[{"insert":"abc"}]`))
	// 重复保存同一版本不报错，也不覆盖
	require.NoError(t, s.SaveDocumentSnapshot(ctx, docID, 3, `[{"insert":"zzz"}]`))

	rev, content, err := s.LatestSnapshot(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rev)
	assert.Equal(t, `[{"insert":"abc"}]`, content)

	docs, err := NewDocumentStore(db).ListDocuments(ctx, 500)
	require.NoError(t, err)
	var found bool
	for _, d := range docs {
		if d.DocumentID == docID {
			found = true
			assert.Equal(t, uint64(3), d.Revision)
		}
	}
	assert.True(t, found)
}
