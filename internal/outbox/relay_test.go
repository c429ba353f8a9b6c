package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recruit-go/internal/storage/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type published struct {
	exchange, routingKey string
	body                 string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, message []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, routingKey: routingKey, body: string(message)})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "outbox.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxMessage{}))
	return db
}

func insertMessages(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	base := time.Now().Add(-time.Minute)
	for i, id := range ids {
		require.NoError(t, db.Create(&models.OutboxMessage{
			AggregateID:      id,
			EventType:        "batch_upload.status_changed",
			Payload:          datatypes.JSON(`{"upload_id":"` + id + `"}`),
			TargetExchange:   "batch.events",
			TargetRoutingKey: "batch.upload.processing",
			Status:           models.OutboxStatusPending,
			CreatedAt:        base.Add(time.Duration(i) * time.Second),
		}).Error)
	}
}

func TestProcessPendingPublishesInOrder(t *testing.T) {
	db := newTestDB(t)
	insertMessages(t, db, "u1", "u2", "u3")
	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, WithBatchSize(2))
	assert.False(t, relay.lockRows)

	n, err := relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, pub.sent, 3)
	assert.Equal(t, `{"upload_id":"u1"}`, pub.sent[0].body)
	assert.Equal(t, `{"upload_id":"u3"}`, pub.sent[2].body)
	assert.Equal(t, "batch.events", pub.sent[0].exchange)

	var msgs []models.OutboxMessage
	require.NoError(t, db.Find(&msgs).Error)
	for _, m := range msgs {
		assert.Equal(t, models.OutboxStatusSent, m.Status)
		assert.NotNil(t, m.ProcessedAt)
	}
}

func TestProcessPendingRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	insertMessages(t, db, "u1")
	pub := &fakePublisher{err: errors.New("broker down")}
	relay := NewMessageRelay(db, pub)

	for i := 0; i < maxRetryCount-1; i++ {
		_, err := relay.ProcessPending(context.Background())
		require.NoError(t, err)
	}
	var msg models.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, maxRetryCount-1, msg.RetryCount)
	assert.Equal(t, "broker down", msg.ErrorMessage)

	_, err := relay.ProcessPending(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)

	n, err := relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartAndStop(t *testing.T) {
	db := newTestDB(t)
	insertMessages(t, db, "u1")
	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, WithPollingInterval(10*time.Millisecond))

	relay.Start(context.Background())
	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	relay.Stop()
	relay.Stop()
}
