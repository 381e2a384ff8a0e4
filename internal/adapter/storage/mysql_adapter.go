package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-sql-driver/mysql"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

const stockLevelsSchema = `
CREATE TABLE IF NOT EXISTS stock_levels (
	product_id       VARCHAR(128) NOT NULL,
	location         VARCHAR(128) NOT NULL DEFAULT '',
	quantity         BIGINT       NOT NULL,
	last_movement_id BIGINT       NOT NULL,
	last_sequence    BIGINT       NOT NULL,
	version          BIGINT       NOT NULL,
	updated_at       DATETIME(6)  NOT NULL,
	PRIMARY KEY (product_id, location)
)`

// MySQLAdapter keeps the stock projection in MySQL, guarded by an optimistic check on the last
// applied movement id.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, stockLevelsSchema); err != nil {
		return fmt.Errorf("create stock_levels: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key domain.StockKey) (domain.StockLevel, error) {
	level := domain.StockLevel{Key: key}
	var lastID int64
	err := m.db.QueryRowContext(ctx, `
		SELECT quantity, last_movement_id, last_sequence, version, updated_at
		FROM stock_levels WHERE product_id = ? AND location = ?`,
		key.ProductID, key.Location,
	).Scan(&level.Quantity, &lastID, &level.LastSequence, &level.Version, &level.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return level, nil
	}
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("query stock level: %w", err)
	}

	level.LastMovementID = snowflake.ID(lastID)
	return level, nil
}

func (m *MySQLAdapter) CompareAndSwap(ctx context.Context, expected snowflake.ID, next domain.StockLevel) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE stock_levels
		SET quantity = ?, last_movement_id = ?, last_sequence = ?, version = ?, updated_at = ?
		WHERE product_id = ? AND location = ? AND last_movement_id = ?`,
		next.Quantity, next.LastMovementID.Int64(), next.LastSequence, next.Version, next.UpdatedAt.UTC(),
		next.Key.ProductID, next.Key.Location, expected.Int64(),
	)
	if err != nil {
		return fmt.Errorf("update stock level: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	if expected != 0 {
		return fmt.Errorf("%w: %s", domain.ErrStaleVersion, next.Key)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO stock_levels (product_id, location, quantity, last_movement_id, last_sequence, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		next.Key.ProductID, next.Key.Location, next.Quantity, next.LastMovementID.Int64(),
		next.LastSequence, next.Version, next.UpdatedAt.UTC(),
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", domain.ErrStaleVersion, next.Key)
	}
	if err != nil {
		return fmt.Errorf("insert stock level: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListByProduct(ctx context.Context, productID string) ([]domain.StockLevel, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT location, quantity, last_movement_id, last_sequence, version, updated_at
		FROM stock_levels WHERE product_id = ? ORDER BY location`, productID)
	if err != nil {
		return nil, fmt.Errorf("query stock levels: %w", err)
	}
	defer rows.Close()

	var out []domain.StockLevel
	for rows.Next() {
		level := domain.StockLevel{Key: domain.StockKey{ProductID: productID}}
		var lastID int64
		var updatedAt time.Time
		if err := rows.Scan(&level.Key.Location, &level.Quantity, &lastID, &level.LastSequence, &level.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		level.LastMovementID = snowflake.ID(lastID)
		level.UpdatedAt = updatedAt
		out = append(out, level)
	}
	return out, rows.Err()
}
