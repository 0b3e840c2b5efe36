// Package sql is the durable, transactional rich list store for postgres and sqlite.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/bsv-blockchain/richlist/util"
	"github.com/bsv-blockchain/richlist/util/usql"
)

// Balances are stored as their digit count, zero padded to balanceLengthWidth, followed by the
// digits. Comparing the text column then orders balances numerically at any width.
const (
	balanceLengthWidth = 3
	maxBalanceDigits   = 999
)

// SQL bounds reads by dbTimeout and a whole block insert or invalidate transaction by
// writeTimeout.
type SQL struct {
	db           *usql.DB
	engine       util.SQLEngine
	logger       ulogger.Logger
	dbTimeout    time.Duration
	writeTimeout time.Duration
}

func New(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*SQL, error) {
	logger = logger.New("rlsql")

	db, err := util.InitSQLDB(logger, storeURL, tSettings)
	if err != nil {
		return nil, errors.NewStorageError("failed to init sql db", err)
	}

	return NewWithDB(logger, db, util.SQLEngine(storeURL.Scheme), tSettings), nil
}

// NewWithDB wraps an open database. The schema is created by Init.
func NewWithDB(logger ulogger.Logger, db *usql.DB, engine util.SQLEngine, tSettings *settings.Settings) *SQL {
	initPrometheusMetrics()

	return &SQL{
		db:           db,
		engine:       engine,
		logger:       logger,
		dbTimeout:    tSettings.RichList.DBTimeout,
		writeTimeout: tSettings.RichList.DBWriteTimeout,
	}
}

func (s *SQL) Init(ctx context.Context) error {
	switch s.engine {
	case util.Postgres:
		if err := createPostgresSchema(ctx, s.db); err != nil {
			return errors.NewStorageError("failed to create postgres schema", err)
		}
	case util.Sqlite, util.SqliteMemory:
		if err := createSqliteSchema(ctx, s.db); err != nil {
			return errors.NewStorageError("failed to create sqlite schema", err)
		}
	default:
		return errors.NewConfigurationError("unknown database engine: %s", s.engine)
	}

	return nil
}

func (s *SQL) GetDB() *usql.DB {
	return s.db
}

func (s *SQL) GetDBEngine() util.SQLEngine {
	return s.engine
}

func (s *SQL) Health(ctx context.Context, _ bool) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.dbTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return http.StatusServiceUnavailable, "Database connection error", errors.NewStorageUnavailableError("ping failed", err)
	}

	return http.StatusOK, "OK", nil
}

func (s *SQL) Close(_ context.Context) error {
	return s.db.Close()
}

func formatBalance(a model.Amount) (string, error) {
	if a.Sign() < 0 {
		return "", errors.NewStorageError("negative balance %s cannot be stored", a.String())
	}

	v := a.String()
	if len(v) > maxBalanceDigits {
		return "", errors.NewStorageError("balance of %d digits exceeds the maximum of %d", len(v), maxBalanceDigits)
	}

	return fmt.Sprintf("%0*d%s", balanceLengthWidth, len(v), v), nil
}

func parseBalance(v string) (model.Amount, error) {
	if len(v) <= balanceLengthWidth {
		return model.Amount{}, errors.NewStorageError("malformed balance %q", v)
	}

	digits, err := strconv.Atoi(v[:balanceLengthWidth])
	if err != nil || digits != len(v)-balanceLengthWidth {
		return model.Amount{}, errors.NewStorageError("malformed balance %q", v)
	}

	return model.ParseAmount(v[balanceLengthWidth:])
}

// querier is satisfied by both *usql.DB and *usql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func bestBlock(ctx context.Context, q querier) (model.ChainPointer, error) {
	var (
		best   model.ChainPointer
		height int64
	)

	err := q.QueryRowContext(ctx, `SELECT hash, height FROM blocks ORDER BY height DESC LIMIT 1`).Scan(&best.Hash, &height)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ChainPointer{}, nil
		}

		return model.ChainPointer{}, err
	}

	best.Height = uint32(height) //nolint:gosec // heights are inserted from uint32

	return best, nil
}

func createPostgresSchema(ctx context.Context, db *usql.DB) error {
	if _, err := db.ExecContext(ctx, `
      CREATE TABLE IF NOT EXISTS blocks (
	    height          BIGINT PRIMARY KEY
	    ,hash           VARCHAR(128) NOT NULL
	    ,previous_hash  VARCHAR(128) NOT NULL DEFAULT ''
	    ,inserted_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	  );
	`); err != nil {
		return errors.NewStorageError("could not create blocks table", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_blocks_hash ON blocks (hash);`); err != nil {
		return errors.NewStorageError("could not create ux_blocks_hash index", err)
	}

	if _, err := db.ExecContext(ctx, `
      CREATE TABLE IF NOT EXISTS outputs (
	    tx_id          VARCHAR(128) NOT NULL
	    ,idx           BIGINT NOT NULL
	    ,address       TEXT COLLATE "C" NOT NULL
	    ,satoshis      TEXT NOT NULL
	    ,block_hash    VARCHAR(128) NOT NULL
	    ,spent_by      VARCHAR(128) NULL
	    ,PRIMARY KEY (tx_id, idx)
	  );
	`); err != nil {
		return errors.NewStorageError("could not create outputs table", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outputs_block_hash ON outputs (block_hash);`); err != nil {
		return errors.NewStorageError("could not create idx_outputs_block_hash index", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outputs_spent_by ON outputs (spent_by) WHERE spent_by IS NOT NULL;`); err != nil {
		return errors.NewStorageError("could not create idx_outputs_spent_by index", err)
	}

	if _, err := db.ExecContext(ctx, `
      CREATE TABLE IF NOT EXISTS balances (
	    address        TEXT COLLATE "C" PRIMARY KEY
	    ,balance       TEXT COLLATE "C" NOT NULL
	  );
	`); err != nil {
		return errors.NewStorageError("could not create balances table", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_balances_rank ON balances (balance DESC, address ASC);`); err != nil {
		return errors.NewStorageError("could not create idx_balances_rank index", err)
	}

	return nil
}

func createSqliteSchema(ctx context.Context, db *usql.DB) error {
	if _, err := db.ExecContext(ctx, `
      CREATE TABLE IF NOT EXISTS blocks (
	    height          INTEGER PRIMARY KEY
	    ,hash           TEXT NOT NULL
	    ,previous_hash  TEXT NOT NULL DEFAULT ''
	    ,inserted_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	  );
	`); err != nil {
		return errors.NewStorageError("could not create blocks table", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_blocks_hash ON blocks (hash);`); err != nil {
		return errors.NewStorageError("could not create ux_blocks_hash index", err)
	}

	if _, err := db.ExecContext(ctx, `
      CREATE TABLE IF NOT EXISTS outputs (
	    tx_id          TEXT NOT NULL
	    ,idx           INTEGER NOT NULL
	    ,address       TEXT NOT NULL
	    ,satoshis      TEXT NOT NULL
	    ,block_hash    TEXT NOT NULL
	    ,spent_by      TEXT NULL
	    ,PRIMARY KEY (tx_id, idx)
	  );
	`); err != nil {
		return errors.NewStorageError("could not create outputs table", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outputs_block_hash ON outputs (block_hash);`); err != nil {
		return errors.NewStorageError("could not create idx_outputs_block_hash index", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outputs_spent_by ON outputs (spent_by);`); err != nil {
		return errors.NewStorageError("could not create idx_outputs_spent_by index", err)
	}

	if _, err := db.ExecContext(ctx, `
      CREATE TABLE IF NOT EXISTS balances (
	    address        TEXT PRIMARY KEY
	    ,balance       TEXT NOT NULL
	  );
	`); err != nil {
		return errors.NewStorageError("could not create balances table", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_balances_rank ON balances (balance DESC, address ASC);`); err != nil {
		return errors.NewStorageError("could not create idx_balances_rank index", err)
	}

	return nil
}
