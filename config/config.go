package config

import (
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverClickHouse = "clickhouse"
	DriverPostgres   = "postgres"

	// DateLayout is the DD-MM-YYYY form used for breach dates in config and
	// in API responses.
	DateLayout = "02-01-2006"

	DefaultBatchSize = 100000
)

type ClickHouseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Config struct {
	StoreDriver string
	ClickHouse  ClickHouseConfig
	PostgresURL string
	Pool        PoolConfig

	RedisURL string
	CacheTTL time.Duration

	BatchSize  int
	BreachName string
	BreachDate time.Time

	Host    string
	Port    string
	GinMode string
}

var defaults = map[string]interface{}{
	"store-driver":         DriverClickHouse,
	"ch-host":              "localhost",
	"ch-port":              9000,
	"ch-database":          "parolam",
	"db-max-open-conns":    20,
	"db-max-idle-conns":    10,
	"db-conn-max-lifetime": 5 * time.Minute,
	"cache-ttl":            5 * time.Minute,
	"batch-size":           DefaultBatchSize,
	"default-breach-name":  "Collection-1",
	"default-breach-date":  "19-01-2019",
	"host":                 "0.0.0.0",
	"port":                 "8080",
	"gin-mode":             "release",
}

// LoadConfig reads .env (if present), the process environment and any
// bound command line flags, in increasing priority. Environment variables
// are the upper-cased keys with dashes replaced by underscores, so
// "batch-size" is read from BATCH_SIZE.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "loading .env")
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "binding flags")
		}
	}

	cfg := &Config{
		StoreDriver: strings.ToLower(v.GetString("store-driver")),
		ClickHouse: ClickHouseConfig{
			Host:     v.GetString("ch-host"),
			Port:     v.GetInt("ch-port"),
			User:     v.GetString("ch-user"),
			Password: v.GetString("ch-password"),
			Database: v.GetString("ch-database"),
		},
		PostgresURL: v.GetString("db-url"),
		Pool: PoolConfig{
			MaxOpenConns:    v.GetInt("db-max-open-conns"),
			MaxIdleConns:    v.GetInt("db-max-idle-conns"),
			ConnMaxLifetime: v.GetDuration("db-conn-max-lifetime"),
		},
		RedisURL:   v.GetString("redis-url"),
		CacheTTL:   v.GetDuration("cache-ttl"),
		BatchSize:  v.GetInt("batch-size"),
		BreachName: strings.TrimSpace(v.GetString("default-breach-name")),
		Host:       v.GetString("host"),
		Port:       v.GetString("port"),
		GinMode:    v.GetString("gin-mode"),
	}

	switch cfg.StoreDriver {
	case DriverClickHouse:
	case DriverPostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("DB_URL is required for the postgres store")
		}
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.BreachName == "" {
		return nil, errors.New("breach name cannot be empty")
	}
	date, err := ParseDate(v.GetString("default-breach-date"))
	if err != nil {
		return nil, err
	}
	cfg.BreachDate = date

	pterm.Info.Println("loaded configuration, store driver:", cfg.StoreDriver)
	return cfg, nil
}

// ParseDate parses a DD-MM-YYYY breach date. Day and month may omit the
// leading zero ("1-7-2025").
func ParseDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return time.Time{}, errors.Errorf("invalid breach date %q, expected DD-MM-YYYY", s)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid breach date %q, expected DD-MM-YYYY", s)
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31-02 into March
	if year < 1 || t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, errors.Errorf("invalid breach date %q, no such day", s)
	}
	return t, nil
}
