package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"

	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

const defaultMaxAttempts = 3

type StoreConfig struct {
	DSN                 string `envconfig:"DSN" split_words:"true" default:"file:data/orders.db"`
	BlockTerminalCancel bool   `envconfig:"BLOCK_TERMINAL_CANCEL" split_words:"true" default:"false"`
	MaxAttempts         int    `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
}

type orderRow struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	OrderID  int64  `bun:"order_id,pk"`
	UserName string `bun:"user_name"`
	Status   string `bun:"status,notnull"`
	Items    string `bun:"items"`
}

func (r *orderRow) toOrder() (Order, error) {
	status, err := ParseStatus(r.Status)
	if err != nil {
		return Order{}, fmt.Errorf("order %d: %w", r.OrderID, err)
	}
	return Order{
		ID:       r.OrderID,
		UserName: r.UserName,
		Status:   status,
		Items:    r.Items,
	}, nil
}

func fromOrder(o Order) orderRow {
	return orderRow{
		OrderID:  o.ID,
		UserName: o.UserName,
		Status:   string(o.Status),
		Items:    o.Items,
	}
}

// StoreOption customizes Store.
type StoreOption func(*Store)

func WithRules(rules Rules) StoreOption {
	return func(s *Store) {
		s.rules = rules
	}
}

func WithMaxAttempts(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store keeps orders in a single relational table.
//
// Transitions are read-then-compare-and-set: the UPDATE only matches when the
// row still holds the status the rules were evaluated against, so concurrent
// writers can never both act on the same pre-transition status.
type Store struct {
	db          *bun.DB
	rules       Rules
	maxAttempts int
	logger      zerolog.Logger
}

// Open connects to PostgreSQL for postgres:// DSNs and to SQLite otherwise,
// then ensures the orders table exists.
func Open(ctx context.Context, cfg StoreConfig, opts ...StoreOption) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("order store dsn is required")
	}

	var db *bun.DB
	if isPostgresDSN(dsn) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// One connection: SQLite allows a single writer and the CAS loop
		// handles the interleaving between requests.
		sqldb.SetMaxOpenConns(1)
		if _, err := sqldb.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	opts = append([]StoreOption{
		WithRules(Rules{BlockTerminalCancel: cfg.BlockTerminalCancel}),
		WithMaxAttempts(cfg.MaxAttempts),
	}, opts...)

	store, err := NewStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing bun handle and creates the table if needed.
func NewStore(ctx context.Context, db *bun.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}

	store := &Store{
		db:          db,
		maxAttempts: defaultMaxAttempts,
		logger:      logx.Component("order_store"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if _, err := db.NewCreateTable().Model((*orderRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Seed inserts the sample orders when the table is empty.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	seeded := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		count, err := tx.NewSelect().Model((*orderRow)(nil)).Count(ctx)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		if count > 0 {
			return nil
		}

		seed := SeedOrders()
		rows := make([]orderRow, 0, len(seed))
		for _, o := range seed {
			rows = append(rows, fromOrder(o))
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert seed orders: %w", err)
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if seeded {
		s.logger.Info().Int("orders", len(SeedOrders())).Msg("seeded empty order table")
	}
	return seeded, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Order, error) {
	row := new(orderRow)
	if err := s.db.NewSelect().Model(row).Where("order_id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, fmt.Errorf("%w: id=%d", ErrOrderNotFound, id)
		}
		return Order{}, fmt.Errorf("select order %d: %w", id, err)
	}
	return row.toOrder()
}

func (s *Store) List(ctx context.Context) ([]Order, error) {
	var rows []orderRow
	if err := s.db.NewSelect().Model(&rows).Order("order_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) Cancel(ctx context.Context, id int64) (Outcome, error) {
	return s.transition(ctx, ActionCancel, id)
}

func (s *Store) Return(ctx context.Context, id int64) (Outcome, error) {
	return s.transition(ctx, ActionReturn, id)
}

func (s *Store) transition(ctx context.Context, action Action, id int64) (Outcome, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		if errors.Is(err, ErrOrderNotFound) {
			return Outcome{Kind: OutcomeNotFound, Action: action, OrderID: id}, nil
		}
		if err != nil {
			return Outcome{}, err
		}

		next, ok := s.rules.Apply(action, current.Status)
		if !ok {
			return Outcome{
				Kind:    OutcomeIllegalTransition,
				Action:  action,
				OrderID: id,
				Current: current.Status,
			}, nil
		}

		done := Outcome{
			Kind:    OutcomeOK,
			Action:  action,
			OrderID: id,
			Current: current.Status,
			Next:    next,
		}
		if next == current.Status {
			return done, nil
		}

		swapped, err := s.compareAndSetStatus(ctx, id, current.Status, next)
		if err != nil {
			return Outcome{}, err
		}
		if swapped {
			s.logger.Info().
				Int64("order_id", id).
				Str("action", string(action)).
				Str("from", current.Status.String()).
				Str("to", next.String()).
				Msg("order status changed")
			return done, nil
		}

		s.logger.Debug().
			Int64("order_id", id).
			Str("action", string(action)).
			Int("attempt", attempt).
			Msg("order status changed concurrently, re-evaluating")
	}

	return Outcome{}, fmt.Errorf("%w: id=%d action=%s", ErrConcurrentUpdate, id, action)
}

func (s *Store) compareAndSetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	res, err := s.db.NewUpdate().Model((*orderRow)(nil)).
		Set("status = ?", string(to)).
		Where("order_id = ? AND status = ?", id, string(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update order %d status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order %d rows affected: %w", id, err)
	}
	return affected == 1, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite directory %s: %w", dir, err)
	}
	return nil
}
