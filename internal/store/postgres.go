package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
)

const (
	tableName          = "cell_store"
	operationTimeout   = 10 * time.Second
	maxOpenConnsDefault = 10
)

// Postgres is a Client backed by a real Postgres table via lib/pq, matching
// the column set named in spec §6: row_num, col_name, cell_value, origin,
// updated_at, created_at, with a unique constraint on (row_num, col_name).
type Postgres struct {
	dsn string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgres returns a Client that lazily connects to dsn on first use,
// mirroring the teacher's PostgresStateBackend.
func NewPostgres(dsn string) (Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	return &Postgres{dsn: dsn}, nil
}

func (p *Postgres) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := sql.Open("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		db.SetMaxOpenConns(maxOpenConnsDefault)
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()
		const createTable = `
			CREATE TABLE IF NOT EXISTS ` + tableName + ` (
				row_num INT NOT NULL,
				col_name VARCHAR(2) NOT NULL,
				cell_value TEXT,
				origin VARCHAR(32) NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (row_num, col_name)
			)`
		if _, err := db.ExecContext(ctx, createTable); err != nil {
			_ = db.Close()
			p.initErr = err
			return
		}
		p.db = db
	})
	return p.initErr
}

func (p *Postgres) ReadAll(ctx context.Context) ([]cell.StoredCell, error) {
	if err := p.classifiedReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	rows, err := p.db.QueryContext(ctx, `
		SELECT row_num, col_name, cell_value, origin, updated_at
		FROM `+tableName+`
		ORDER BY row_num, col_name`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []cell.StoredCell
	for rows.Next() {
		var row int
		var col string
		var value sql.NullString
		var origin string
		var updatedAt time.Time
		if err := rows.Scan(&row, &col, &value, &origin, &updatedAt); err != nil {
			return nil, classify(err)
		}
		addr, err := cell.NewAddress(row, col)
		if err != nil {
			continue
		}
		out = append(out, cell.StoredCell{
			Address:   addr,
			Value:     cell.Value(value.String),
			Origin:    cell.Tag(origin),
			UpdatedAt: updatedAt,
		})
	}
	return out, classify(rows.Err())
}

func (p *Postgres) Upsert(ctx context.Context, address cell.Address, value cell.Value, origin cell.Tag) error {
	if err := p.classifiedReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO `+tableName+` (row_num, col_name, cell_value, origin, updated_at, created_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (row_num, col_name)
		DO UPDATE SET cell_value = EXCLUDED.cell_value, origin = EXCLUDED.origin, updated_at = NOW()`,
		address.Row(), address.ColumnLetter(), string(value), string(origin))
	return classify(err)
}

func (p *Postgres) Delete(ctx context.Context, address cell.Address) error {
	if err := p.classifiedReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM `+tableName+` WHERE row_num = $1 AND col_name = $2`,
		address.Row(), address.ColumnLetter())
	return classify(err)
}

func (p *Postgres) UpdateOriginIfNotRemote(ctx context.Context, address cell.Address) error {
	if err := p.classifiedReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `
		UPDATE `+tableName+`
		SET origin = $3, updated_at = NOW()
		WHERE row_num = $1 AND col_name = $2 AND origin <> $3`,
		address.Row(), address.ColumnLetter(), cell.NewTag(cell.OriginRemote))
	return classify(err)
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.classifiedReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	return classify(p.db.PingContext(ctx))
}

func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) classifiedReady() error {
	if err := p.ensureReady(); err != nil {
		return classify(err)
	}
	return nil
}

// classify translates a lib/pq / database/sql error into the spec's error
// kinds: offline-store for connectivity failures, data for constraint
// violations, nil-passthrough otherwise.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := errkind.ClassifyConnectivity(err, errkind.OfflineStore); ok {
		return errkind.New(kind, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation", "not_null_violation", "check_violation", "foreign_key_violation":
			return errkind.New(errkind.Data, err)
		}
	}
	return err
}
