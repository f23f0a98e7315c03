package storage

import (
	"testing"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *AsyncSQLiteDB {
	t.Helper()
	cfg := &models.MConfig{
		Storage: models.MStorageConfig{DBType: "sqlite", DBPath: ":memory:"},
	}
	db, err := NewAsyncSQLiteDB(cfg, logger.NewLogger("ERROR", "sqlite-test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult(key string) models.MOrderResult {
	return models.MOrderResult{
		IdempotencyKey: key,
		Status:         models.OrderStatusAccepted,
		Legs: []models.MLegResult{
			{Symbol: "AAPL", Accepted: true, BrokerOrderID: "ord-1"},
		},
		CreatedAt: time.Now().Unix(),
	}
}

func TestSaveAndGetResult(t *testing.T) {
	db := newTestDB(t)

	want := sampleResult("order-key-001")
	require.NoError(t, db.SaveResult(want, time.Hour))

	got, ok, err := db.GetResult("order-key-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestGetResultUnknownKey(t *testing.T) {
	db := newTestDB(t)

	_, ok, err := db.GetResult("never-stored")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredResultNotReturned(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SaveResult(sampleResult("order-key-001"), -time.Second))

	_, ok, err := db.GetResult("order-key-001")
	require.NoError(t, err)
	assert.False(t, ok, "expired results behave as absent")
}

func TestPurgeExpired(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SaveResult(sampleResult("order-key-old"), -time.Second))
	require.NoError(t, db.SaveResult(sampleResult("order-key-new"), time.Hour))

	n, err := db.PurgeExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := db.GetResult("order-key-new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppendFillIdempotent(t *testing.T) {
	db := newTestDB(t)

	f := models.MFill{
		FillID:        "fill-1",
		BrokerOrderID: "ord-1",
		Symbol:        "AAPL",
		Side:          models.SideBuyToOpen,
		Quantity:      10,
		Price:         101.5,
		Timestamp:     1000,
		Atomic:        true,
	}
	require.NoError(t, db.AppendFill(f))
	require.NoError(t, db.AppendFill(f)) // duplicate id silently ignored

	fills, err := db.FillsSince(0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, f, fills[0])
}

func TestFillsSinceOrderedByTimestamp(t *testing.T) {
	db := newTestDB(t)

	for i, ts := range []int64{3000, 1000, 2000} {
		require.NoError(t, db.AppendFill(models.MFill{
			FillID:    string(rune('a' + i)),
			Symbol:    "AAPL",
			Side:      models.SideBuyToOpen,
			Quantity:  1,
			Price:     100,
			Timestamp: ts,
		}))
	}

	fills, err := db.FillsSince(1500)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, int64(2000), fills[0].Timestamp)
	assert.Equal(t, int64(3000), fills[1].Timestamp)
}
