package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading-core/src/logger"
	"trading-core/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Use the executable name as schema so multiple deployments share a cluster
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q.order_results (
			idempotency_key TEXT PRIMARY KEY,
			result JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create order_results: %w", err)
	}

	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q.fills (
			fill_id TEXT PRIMARY KEY,
			idempotency_key TEXT,
			broker_order_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			timestamp BIGINT NOT NULL,
			atomic BOOLEAN NOT NULL DEFAULT FALSE
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create fills: %w", err)
	}

	query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_fills_timestamp ON %q.fills ("timestamp");`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to index fills: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveResult(result models.MOrderResult, ttl time.Duration) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	now := time.Now()
	query := fmt.Sprintf(`
		INSERT INTO %q.order_results (idempotency_key, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET result = EXCLUDED.result, expires_at = EXCLUDED.expires_at`, d.Schema)

	if _, err := d.DB.Exec(query, result.IdempotencyKey, string(blob), now.Unix(), now.Add(ttl).Unix()); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) GetResult(key string) (models.MOrderResult, bool, error) {
	var blob string
	var expiresAt int64

	query := fmt.Sprintf(`SELECT result, expires_at FROM %q.order_results WHERE idempotency_key = $1`, d.Schema)
	row := d.DB.QueryRow(query, key)
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

func (d *PostgresDB) AppendFill(fill models.MFill) error {
	query := fmt.Sprintf(`
		INSERT INTO %q.fills
		(fill_id, idempotency_key, broker_order_id, symbol, side, quantity, price, "timestamp", atomic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fill_id) DO NOTHING`, d.Schema)

	_, err := d.DB.Exec(query, fill.FillID, fill.IdempotencyKey, fill.BrokerOrderID,
		fill.Symbol, fill.Side, fill.Quantity, fill.Price, fill.Timestamp, fill.Atomic)
	if err != nil {
		return fmt.Errorf("append fill: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) FillsSince(since int64) ([]models.MFill, error) {
	query := fmt.Sprintf(`
		SELECT fill_id, idempotency_key, broker_order_id, symbol, side, quantity, price, "timestamp", atomic
		FROM %q.fills WHERE "timestamp" >= $1 ORDER BY "timestamp" ASC`, d.Schema)

	rows, err := d.DB.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var fills []models.MFill
	for rows.Next() {
		var f models.MFill
		if err := rows.Scan(&f.FillID, &f.IdempotencyKey, &f.BrokerOrderID, &f.Symbol,
			&f.Side, &f.Quantity, &f.Price, &f.Timestamp, &f.Atomic); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) PurgeExpired(now time.Time) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %q.order_results WHERE expires_at <= $1`, d.Schema)
	res, err := d.DB.Exec(query, now.Unix())
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

func (d *PostgresDB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
