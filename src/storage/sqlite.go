package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

// createTables is idempotent: unlike throwaway market-data tables, order
// results and the fill log must survive restarts.
func (d *AsyncSQLiteDB) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS order_results (
			idempotency_key TEXT PRIMARY KEY,
			result TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create order_results: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS fills (
			fill_id TEXT PRIMARY KEY,
			idempotency_key TEXT,
			broker_order_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			timestamp INTEGER NOT NULL,
			atomic INTEGER NOT NULL DEFAULT 0
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create fills: %w", err)
	}

	if _, err := d.DB.Exec("CREATE INDEX IF NOT EXISTS idx_fills_timestamp ON fills (timestamp);"); err != nil {
		return fmt.Errorf("failed to index fills: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveResult(result models.MOrderResult, ttl time.Duration) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	now := time.Now()
	_, err = d.DB.Exec(
		`INSERT OR REPLACE INTO order_results (idempotency_key, result, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		result.IdempotencyKey, string(blob), now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) GetResult(key string) (models.MOrderResult, bool, error) {
	var blob string
	var expiresAt int64

	row := d.DB.QueryRow(`SELECT result, expires_at FROM order_results WHERE idempotency_key = ?`, key)
	if err := row.Scan(&blob, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return models.MOrderResult{}, false, nil
		}
		return models.MOrderResult{}, false, fmt.Errorf("get result: %w", err)
	}

	if expiresAt <= time.Now().Unix() {
		return models.MOrderResult{}, false, nil
	}

	var result models.MOrderResult
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return models.MOrderResult{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, true, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) AppendFill(fill models.MFill) error {
	atomicFlag := 0
	if fill.Atomic {
		atomicFlag = 1
	}

	_, err := d.DB.Exec(
		`INSERT OR IGNORE INTO fills
		 (fill_id, idempotency_key, broker_order_id, symbol, side, quantity, price, timestamp, atomic)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.FillID, fill.IdempotencyKey, fill.BrokerOrderID, fill.Symbol,
		fill.Side, fill.Quantity, fill.Price, fill.Timestamp, atomicFlag,
	)
	if err != nil {
		return fmt.Errorf("append fill: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) FillsSince(since int64) ([]models.MFill, error) {
	rows, err := d.DB.Query(
		`SELECT fill_id, idempotency_key, broker_order_id, symbol, side, quantity, price, timestamp, atomic
		 FROM fills WHERE timestamp >= ? ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var fills []models.MFill
	for rows.Next() {
		var f models.MFill
		var atomicFlag int
		if err := rows.Scan(&f.FillID, &f.IdempotencyKey, &f.BrokerOrderID, &f.Symbol,
			&f.Side, &f.Quantity, &f.Price, &f.Timestamp, &atomicFlag); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		f.Atomic = atomicFlag != 0
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) PurgeExpired(now time.Time) (int, error) {
	res, err := d.DB.Exec(`DELETE FROM order_results WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		d.Logger.Debug("Purged %d expired order results", n)
	}
	return int(n), nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
