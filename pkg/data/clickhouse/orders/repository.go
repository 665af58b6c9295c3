package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/devx-demo/orders-clients/pkg/clickhouse"
)

// DefaultTableName is used when no table name is configured.
const DefaultTableName = "orders"

var ErrEmptyTableName = errors.New("table name cannot be empty")

// Repository persists consumed orders in ClickHouse.
type Repository interface {
	CreateTableIfNotExists(ctx context.Context) error
	WriteOrders(ctx context.Context, rows []Row) error
	CountOrders(ctx context.Context) (uint64, error)
}

type repository struct {
	client    clickhouse.Client
	tableName string
}

// NewRepository creates the repository and makes sure its table exists.
func NewRepository(ctx context.Context, client clickhouse.Client, tableName string) (Repository, error) {
	if tableName == "" {
		return nil, ErrEmptyTableName
	}
	repo := &repository{client: client, tableName: tableName}
	if err := repo.CreateTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize orders table: %w", err)
	}
	return repo, nil
}

func (r *repository) CreateTableIfNotExists(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, CreateTableQuery(r.tableName)); err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}
	return nil
}

// WriteOrders inserts rows as a single block. An empty slice is a no-op.
func (r *repository) WriteOrders(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, InsertQueryForBatch(r.tableName))
	if err != nil {
		return fmt.Errorf("failed to prepare orders batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(row.values()...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append order %s: %w", row.ID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send orders batch (%d rows): %w", len(rows), err)
	}
	return nil
}

func (r *repository) CountOrders(ctx context.Context) (uint64, error) {
	var n uint64
	if err := r.client.Conn().QueryRow(ctx, CountQuery(r.tableName)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
