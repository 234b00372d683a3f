package store

import (
	"context"

	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// insertChunk keeps a single INSERT under the postgres bind parameter limit
// (65535) for the widest row (4 columns).
const insertChunk = 10000

// Postgres stores the same three tables as plain heap tables. Nothing is
// ever merged, so duplicates stay forever; the aggregating reads make that
// invisible to callers.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string, pool config.PoolConfig) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to access underlying DB")
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return &Postgres{db: db}, nil
}

func (p *Postgres) CreateIfMissing(ctx context.Context) error {
	err := p.db.WithContext(ctx).AutoMigrate(&models.Breach{}, &models.PasswordLeak{}, &models.EmailLeak{})
	return errors.Wrap(err, "creating tables")
}

func breachByName(tx *gorm.DB, name string) *gorm.DB {
	return tx.Model(&models.Breach{}).
		Where("breach_name = ?", name).
		Order("breach_id").Limit(1)
}

// insertBreach leans on the unique index on breach_name: a concurrent
// writer that lost the race inserts nothing and re-reads the winner's id.
func insertBreach(tx *gorm.DB, b *models.Breach) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(b)
}

func emailBreaches(tx *gorm.DB, prefix, suffix string) *gorm.DB {
	return tx.Model(&models.EmailLeak{}).
		Distinct("breach_id").
		Where("email_prefix = ? AND email_suffix = ?", prefix, suffix)
}

// passwordRange aliases its columns to match the SuffixCount gorm tags.
func passwordRange(tx *gorm.DB, prefix string) *gorm.DB {
	return tx.Model(&models.PasswordLeak{}).
		Select("hash_suffix, SUM(prevalence)::bigint AS total_count").
		Where("hash_prefix = ?", prefix).
		Group("hash_suffix").
		Order("hash_suffix")
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Postgres) FindBreachID(ctx context.Context, name string) (uint32, bool, error) {
	var ids []uint32
	err := breachByName(p.db.WithContext(ctx), name).Pluck("breach_id", &ids).Error
	if err != nil {
		return 0, false, errors.Wrap(err, "looking up breach")
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

func (p *Postgres) MaxBreachID(ctx context.Context) (uint32, error) {
	var id uint32
	err := p.db.WithContext(ctx).
		Raw("SELECT COALESCE(MAX(breach_id), 0) FROM breach_metadata").
		Scan(&id).Error
	return id, errors.Wrap(err, "reading max breach id")
}

func (p *Postgres) InsertBreach(ctx context.Context, b models.Breach) error {
	err := insertBreach(p.db.WithContext(ctx), &b).Error
	return errors.Wrap(err, "inserting breach")
}

func (p *Postgres) Breaches(ctx context.Context, ids []uint32) ([]models.Breach, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Breach
	err := p.db.WithContext(ctx).
		Where("breach_id IN ?", ids).
		Order("breach_id").
		Find(&out).Error
	return out, errors.Wrap(err, "querying breaches")
}

func (p *Postgres) InsertEmailLeaks(ctx context.Context, rows []models.EmailLeak) error {
	if len(rows) == 0 {
		return nil
	}
	err := p.db.WithContext(ctx).CreateInBatches(rows, insertChunk).Error
	return errors.Wrap(err, "inserting email_leaks")
}

func (p *Postgres) InsertPasswordLeaks(ctx context.Context, rows []models.PasswordLeak) error {
	if len(rows) == 0 {
		return nil
	}
	err := p.db.WithContext(ctx).CreateInBatches(rows, insertChunk).Error
	return errors.Wrap(err, "inserting password_leaks")
}

func (p *Postgres) EmailBreachIDs(ctx context.Context, prefix, suffix string) ([]uint32, error) {
	var ids []uint32
	err := emailBreaches(p.db.WithContext(ctx), prefix, suffix).Pluck("breach_id", &ids).Error
	return ids, errors.Wrap(err, "querying email_leaks")
}

func (p *Postgres) PasswordRange(ctx context.Context, prefix string) ([]models.SuffixCount, error) {
	var out []models.SuffixCount
	err := passwordRange(p.db.WithContext(ctx), prefix).Scan(&out).Error
	return out, errors.Wrap(err, "querying password_leaks")
}

func (p *Postgres) Stats(ctx context.Context) (models.Stats, error) {
	var s models.Stats
	counts := []struct {
		model interface{}
		dst   *uint64
	}{
		{&models.EmailLeak{}, &s.EmailCount},
		{&models.PasswordLeak{}, &s.PasswordCount},
		{&models.Breach{}, &s.BreachCount},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range counts {
		q := q
		g.Go(func() error {
			var n int64
			err := p.db.WithContext(gctx).Model(q.model).Count(&n).Error
			*q.dst = uint64(n)
			return errors.Wrap(err, "counting rows")
		})
	}
	if err := g.Wait(); err != nil {
		return models.Stats{}, err
	}
	return s, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
