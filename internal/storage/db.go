package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"loom/internal/config"
	"loom/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// DB wraps a pooled SQLite connection plus the metrics registered against it.
type DB struct {
	*sql.DB
	path    string
	metrics *storeMetrics
}

// storeMetrics are the loom_store_* gauges scraped by health().
type storeMetrics struct {
	openConns   prometheus.Gauge
	idleConns   prometheus.Gauge
	inUseConns  prometheus.Gauge
	waitCount   prometheus.Gauge
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		openConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_store_open_connections",
			Help: "Number of established connections to the session store.",
		}),
		idleConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_store_idle_connections",
			Help: "Number of idle connections in the session store's pool.",
		}),
		inUseConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_store_in_use_connections",
			Help: "Number of connections currently in use by the session store.",
		}),
		waitCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_store_wait_count",
			Help: "Total number of connections waited for from the session store's pool.",
		}),
	}
}

// register attaches the store's gauges to reg. Construction-time
// registration failures (e.g. re-registering in tests) are ignored — the
// gauges are non-essential to correctness, only to observability.
func (m *storeMetrics) register(reg prometheus.Registerer) {
	_ = reg.Register(m.openConns)
	_ = reg.Register(m.idleConns)
	_ = reg.Register(m.inUseConns)
	_ = reg.Register(m.waitCount)
}

func (m *storeMetrics) observe(stats sql.DBStats) {
	m.openConns.Set(float64(stats.OpenConnections))
	m.idleConns.Set(float64(stats.Idle))
	m.inUseConns.Set(float64(stats.InUse))
	m.waitCount.Set(float64(stats.WaitCount))
}

// Open opens (and migrates) the SQLite-backed session store at path,
// registering its health gauges against the default Prometheus registry.
func Open(path string) (*DB, error) {
	return OpenWithRegisterer(path, prometheus.DefaultRegisterer)
}

// OpenWithRegisterer is Open but lets callers (notably tests) supply their
// own Registerer instead of colliding with the global default one.
func OpenWithRegisterer(path string, reg prometheus.Registerer) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Build DSN with _pragma parameters so that every new connection in
	// the pool is configured identically. Setting PRAGMAs via db.Exec()
	// only applies to one pooled connection — any subsequent connections
	// would lack WAL/busy_timeout, causing SQLITE_BUSY under concurrent load.
	dsn := buildDSN(expandedPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows only one concurrent writer; keeping the pool small
	// avoids SQLITE_BUSY contention while still allowing concurrent reads
	// via WAL mode.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	metrics := newStoreMetrics()
	if reg != nil {
		metrics.register(reg)
	}

	return &DB{DB: db, path: expandedPath, metrics: metrics}, nil
}

// buildDSN constructs a modernc.org/sqlite DSN with _pragma parameters.
// This ensures every pooled connection inherits the same configuration.
func buildDSN(path string) string {
	v := url.Values{}
	v.Set("_pragma", "journal_mode=WAL")
	v.Add("_pragma", "foreign_keys=ON")
	v.Add("_pragma", "busy_timeout=30000") // 30s — generous for concurrent tool execution
	v.Add("_pragma", "synchronous=NORMAL") // Safe with WAL; reduces fsync pressure
	v.Add("_txlock", "immediate")          // Acquire write lock at BEGIN, fail fast instead of deadlock
	return path + "?" + v.Encode()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Health reports the store's connection pool stats, updating the
// loom_store_* gauges as a side effect. Callers (cmd/loomd's health
// subcommand, the gateway's /health handler) ping the database first so a
// stalled connection surfaces as an error rather than stale stats.
func (db *DB) Health(ctx context.Context) (sql.DBStats, error) {
	if err := db.PingContext(ctx); err != nil {
		return sql.DBStats{}, fmt.Errorf("ping database: %w", err)
	}
	stats := db.Stats()
	db.metrics.observe(stats)
	return stats, nil
}

// Tx wraps a database transaction.
type Tx struct {
	*sql.Tx
}

// Begin starts a transaction.
func (db *DB) Begin() (*Tx, error) {
	tx, err := db.DB.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx}, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error returned by fn.
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
