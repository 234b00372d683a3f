package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const dialTimeout = 10 * time.Second

// ClickHouse statements. Parameters are bound server side by the driver.
const (
	chQueryBreachByName   = "SELECT breach_id FROM breach_metadata WHERE breach_name = ? ORDER BY breach_id LIMIT 1"
	chQueryMaxBreachID    = "SELECT max(breach_id) FROM breach_metadata"
	chInsertBreach        = "INSERT INTO breach_metadata (breach_id, breach_name, breach_date, description)"
	chQueryBreaches       = "SELECT breach_id, breach_name, breach_date, description FROM breach_metadata WHERE has(?, breach_id) ORDER BY breach_id"
	chInsertEmailLeaks    = "INSERT INTO email_leaks (email_prefix, email_suffix, breach_id, version)"
	chInsertPasswordLeaks = "INSERT INTO password_leaks (hash_prefix, hash_suffix, prevalence)"
	chQueryEmailBreaches  = "SELECT DISTINCT breach_id FROM email_leaks WHERE email_prefix = ? AND email_suffix = ?"
	chQueryPasswordRange  = "SELECT hash_suffix, sum(prevalence) AS total_count FROM password_leaks WHERE hash_prefix = ? GROUP BY hash_suffix ORDER BY hash_suffix"
)

// ClickHouse is the production store. password_leaks is a SummingMergeTree
// and email_leaks a ReplacingMergeTree; both collapse duplicates only when
// the server merges parts.
type ClickHouse struct {
	conn     driver.Conn
	opts     *clickhouse.Options
	database string
}

func clickHouseOptions(cfg config.ClickHouseConfig, pool config.PoolConfig, database string) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     dialTimeout,
		MaxOpenConns:    pool.MaxOpenConns,
		MaxIdleConns:    pool.MaxIdleConns,
		ConnMaxLifetime: pool.ConnMaxLifetime,
	}
}

func OpenClickHouse(cfg config.ClickHouseConfig, pool config.PoolConfig) (*ClickHouse, error) {
	opts := clickHouseOptions(cfg, pool, cfg.Database)
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening clickhouse")
	}
	return &ClickHouse{conn: conn, opts: opts, database: cfg.Database}, nil
}

// CreateIfMissing runs the DDL on a separate connection bound to the
// "default" database, since the target database may not exist yet.
func (c *ClickHouse) CreateIfMissing(ctx context.Context) error {
	opts := *c.opts
	opts.Auth.Database = "default"
	conn, err := clickhouse.Open(&opts)
	if err != nil {
		return errors.Wrap(err, "opening clickhouse bootstrap connection")
	}
	defer conn.Close()

	for i, stmt := range ClickHouseSchema(c.database) {
		if err := conn.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "creating schema (statement %d)", i+1)
		}
	}
	return nil
}

func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouse) FindBreachID(ctx context.Context, name string) (uint32, bool, error) {
	rows, err := c.conn.Query(ctx, chQueryBreachByName, name)
	if err != nil {
		return 0, false, errors.Wrap(err, "looking up breach")
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, false, errors.Wrap(rows.Err(), "looking up breach")
	}
	var id uint32
	if err := rows.Scan(&id); err != nil {
		return 0, false, errors.Wrap(err, "scanning breach id")
	}
	return id, true, nil
}

func (c *ClickHouse) MaxBreachID(ctx context.Context) (uint32, error) {
	var id uint32
	if err := c.conn.QueryRow(ctx, chQueryMaxBreachID).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "reading max breach id")
	}
	return id, nil
}

func (c *ClickHouse) InsertBreach(ctx context.Context, b models.Breach) error {
	batch, err := c.conn.PrepareBatch(ctx, chInsertBreach)
	if err != nil {
		return errors.Wrap(err, "preparing breach insert")
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	if err := batch.Append(b.ID, b.Name, b.Date, b.Description); err != nil {
		return errors.Wrap(err, "appending breach")
	}
	return errors.Wrap(batch.Send(), "inserting breach")
}

func (c *ClickHouse) Breaches(ctx context.Context, ids []uint32) ([]models.Breach, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := c.conn.Query(ctx, chQueryBreaches, ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying breaches")
	}
	defer rows.Close()

	var out []models.Breach
	for rows.Next() {
		var b models.Breach
		if err := rows.Scan(&b.ID, &b.Name, &b.Date, &b.Description); err != nil {
			return nil, errors.Wrap(err, "scanning breach")
		}
		out = append(out, b)
	}
	return out, errors.Wrap(rows.Err(), "reading breaches")
}

func (c *ClickHouse) InsertEmailLeaks(ctx context.Context, rows []models.EmailLeak) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, chInsertEmailLeaks)
	if err != nil {
		return errors.Wrap(err, "preparing email_leaks insert")
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rows {
		if err := batch.Append(r.EmailPrefix, r.EmailSuffix, r.BreachID, r.Version); err != nil {
			return errors.Wrap(err, "appending email leak")
		}
	}
	return errors.Wrap(batch.Send(), "inserting email_leaks")
}

func (c *ClickHouse) InsertPasswordLeaks(ctx context.Context, rows []models.PasswordLeak) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, chInsertPasswordLeaks)
	if err != nil {
		return errors.Wrap(err, "preparing password_leaks insert")
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rows {
		if err := batch.Append(r.HashPrefix, r.HashSuffix, r.Prevalence); err != nil {
			return errors.Wrap(err, "appending password leak")
		}
	}
	return errors.Wrap(batch.Send(), "inserting password_leaks")
}

func (c *ClickHouse) EmailBreachIDs(ctx context.Context, prefix, suffix string) ([]uint32, error) {
	rows, err := c.conn.Query(ctx, chQueryEmailBreaches, prefix, suffix)
	if err != nil {
		return nil, errors.Wrap(err, "querying email_leaks")
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning breach id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "reading email_leaks")
}

// PasswordRange sums prevalence per suffix. The GROUP BY is required: parts
// that have not been merged yet still hold separate rows for the same key.
func (c *ClickHouse) PasswordRange(ctx context.Context, prefix string) ([]models.SuffixCount, error) {
	rows, err := c.conn.Query(ctx, chQueryPasswordRange, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "querying password_leaks")
	}
	defer rows.Close()

	var out []models.SuffixCount
	for rows.Next() {
		var sc models.SuffixCount
		if err := rows.Scan(&sc.Suffix, &sc.Count); err != nil {
			return nil, errors.Wrap(err, "scanning suffix count")
		}
		out = append(out, sc)
	}
	return out, errors.Wrap(rows.Err(), "reading password_leaks")
}

func (c *ClickHouse) Stats(ctx context.Context) (models.Stats, error) {
	var s models.Stats
	counts := []struct {
		table string
		dst   *uint64
	}{
		{TableEmails, &s.EmailCount},
		{TablePasswords, &s.PasswordCount},
		{TableBreaches, &s.BreachCount},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range counts {
		q := q
		g.Go(func() error {
			err := c.conn.QueryRow(gctx, "SELECT count() FROM "+q.table).Scan(q.dst)
			return errors.Wrapf(err, "counting %s", q.table)
		})
	}
	if err := g.Wait(); err != nil {
		return models.Stats{}, err
	}
	return s, nil
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

