package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"axiapac.com/workforce/console"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type LogLevel int

const (
	LogLevelSilent LogLevel = iota + 1
	LogLevelError
	LogLevelWarn
	LogLevelInfo
)

// Options sizes every pool opened by the manager.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	LogLevel        LogLevel
}

func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		QueryTimeout:    10 * time.Second,
		IdleTimeout:     30 * time.Minute,
		SweepInterval:   5 * time.Minute,
		LogLevel:        LogLevelError,
	}
}

type poolEntry struct {
	db          *gorm.DB
	fingerprint string
	lastUsedAt  time.Time
}

// retiredPool was replaced after a credential change. Requests that fetched it
// before the swap may still be running, so it is closed by a later sweep.
type retiredPool struct {
	key       string
	db        *gorm.DB
	retiredAt time.Time
}

// DatabaseManager owns the master pool and one pool per active company.
// Tenant pools are opened lazily and closed by the idle sweep.
type DatabaseManager struct {
	options   Options
	masterDSN string
	dialect   func(dsn string) gorm.Dialector
	tenantDSN func(c *console.Company) string
	directory *CompanyDirectory
	now       func() time.Time
	logger    *slog.Logger
	group     singleflight.Group

	masterMu sync.Mutex
	master   *gorm.DB

	mu       sync.Mutex
	pools    map[string]*poolEntry
	retired  []retiredPool
	sweeping bool
	closed   bool
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*DatabaseManager)

// WithDialector replaces the mysql dialector, e.g. with sqlite in tests.
func WithDialector(fn func(dsn string) gorm.Dialector) Option {
	return func(dm *DatabaseManager) { dm.dialect = fn }
}

// WithTenantDSN replaces the DSN builder for company databases.
func WithTenantDSN(fn func(c *console.Company) string) Option {
	return func(dm *DatabaseManager) { dm.tenantDSN = fn }
}

// WithCompanySource resolves companies from somewhere other than the master pool.
func WithCompanySource(source CompanySource) Option {
	return func(dm *DatabaseManager) { dm.directory = NewCompanyDirectory(source) }
}

func WithClock(now func() time.Time) Option {
	return func(dm *DatabaseManager) { dm.now = now }
}

// New creates the manager. Nothing is opened until the first pool is requested.
// masterDSN should point at the database holding the companies table.
func New(masterDSN string, options Options, opts ...Option) *DatabaseManager {
	dm := &DatabaseManager{
		options:   options,
		masterDSN: masterDSN,
		dialect: func(dsn string) gorm.Dialector {
			return mysql.New(mysql.Config{DSN: dsn})
		},
		now:    time.Now,
		logger: slog.With("component", "pools"),
		pools:  make(map[string]*poolEntry),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	dm.tenantDSN = func(c *console.Company) string {
		return console.TenantDSN(c, console.DSNOptions{
			Timeout:     dm.options.ConnectTimeout,
			ReadTimeout: dm.options.QueryTimeout,
		})
	}
	dm.directory = NewCompanyDirectory(&masterSource{dm: dm})
	for _, opt := range opts {
		opt(dm)
	}
	dm.directory.now = dm.now
	return dm
}

func (dm *DatabaseManager) Directory() *CompanyDirectory {
	return dm.directory
}

func (dm *DatabaseManager) QueryTimeout() time.Duration {
	return dm.options.QueryTimeout
}

// masterKey shares the singleflight group with company codes; normalized codes
// never contain a NUL byte.
const masterKey = "\x00master"

// MasterPool opens the master pool once. The idle sweep starts with it.
// Concurrent callers share one open attempt and no lock is held while dialing.
func (dm *DatabaseManager) MasterPool(ctx context.Context) (*gorm.DB, error) {
	if db := dm.currentMaster(); db != nil {
		return db, nil
	}
	if dm.isClosed() {
		return nil, ErrManagerClosed
	}

	v, err, _ := dm.group.Do(masterKey, func() (interface{}, error) {
		if db := dm.currentMaster(); db != nil {
			return db, nil
		}
		db, err := dm.open(context.WithoutCancel(ctx), dm.masterDSN)
		if err != nil {
			return nil, &PoolConnectionError{CompanyCode: "master", Err: err}
		}

		dm.masterMu.Lock()
		if dm.isClosed() {
			dm.masterMu.Unlock()
			dm.closePool("master", db)
			return nil, ErrManagerClosed
		}
		dm.master = db
		dm.masterMu.Unlock()

		dm.startSweep()
		dm.logger.Info("master pool ready")
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB), nil
}

func (dm *DatabaseManager) currentMaster() *gorm.DB {
	dm.masterMu.Lock()
	defer dm.masterMu.Unlock()
	return dm.master
}

// CompanyPool returns the live pool of a company, opening it on first use.
func (dm *DatabaseManager) CompanyPool(ctx context.Context, code string) (*gorm.DB, error) {
	if dm.isClosed() {
		return nil, ErrManagerClosed
	}
	company, err := dm.directory.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	key := company.Code
	fingerprint := company.Fingerprint()

	if db := dm.lookup(key, fingerprint); db != nil {
		return db, nil
	}

	v, err, _ := dm.group.Do(key, func() (interface{}, error) {
		if db := dm.lookup(key, fingerprint); db != nil {
			return db, nil
		}
		// the first caller's cancellation must not fail everyone waiting on this key
		db, err := dm.open(context.WithoutCancel(ctx), dm.tenantDSN(company))
		if err != nil {
			dm.logger.Error("failed to open company pool", "company", key, "error", err)
			return nil, &PoolConnectionError{CompanyCode: key, Err: err}
		}
		return dm.register(key, fingerprint, db)
	})
	if err != nil {
		return nil, err
	}
	return v.(*gorm.DB), nil
}

// Exec runs fn against the company pool with the query timeout applied.
func (dm *DatabaseManager) Exec(ctx context.Context, code string, fn func(db *gorm.DB) error) error {
	db, err := dm.CompanyPool(ctx, code)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dm.options.QueryTimeout)
	defer cancel()
	return fn(db.WithContext(ctx))
}

// Company returns the resolved configuration of an active company.
func (dm *DatabaseManager) Company(ctx context.Context, code string) (*console.Company, error) {
	return dm.directory.Resolve(ctx, code)
}

// RefreshCompany drops the cached configuration of a company and resolves it
// again, so onboarding or a credential change takes effect without waiting for
// the cache to expire. A live pool with stale credentials is replaced.
func (dm *DatabaseManager) RefreshCompany(ctx context.Context, code string) (*console.Company, error) {
	dm.directory.Invalidate(code)
	company, err := dm.directory.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := dm.CompanyPool(ctx, company.Code); err != nil {
		return nil, err
	}
	return company, nil
}

// ActiveCompanies lists the companies the background jobs should visit.
func (dm *DatabaseManager) ActiveCompanies(ctx context.Context) ([]console.Company, error) {
	return dm.directory.ListActive(ctx)
}

// OpenPools returns the codes of the companies with a live pool.
func (dm *DatabaseManager) OpenPools() []string {
	dm.mu.Lock()
	codes := make([]string, 0, len(dm.pools))
	for code := range dm.pools {
		codes = append(codes, code)
	}
	dm.mu.Unlock()
	sort.Strings(codes)
	return codes
}

func (dm *DatabaseManager) lookup(key, fingerprint string) *gorm.DB {
	dm.mu.Lock()
	entry, ok := dm.pools[key]
	if !ok {
		dm.mu.Unlock()
		return nil
	}
	if entry.fingerprint == fingerprint {
		entry.lastUsedAt = dm.now()
		dm.mu.Unlock()
		return entry.db
	}
	// credentials changed since the pool was opened
	delete(dm.pools, key)
	dm.retireLocked(key, entry.db)
	dm.mu.Unlock()

	dm.logger.Info("company configuration changed, recycling pool", "company", key)
	return nil
}

// retireLocked queues a replaced pool for closing. dm.mu must be held.
func (dm *DatabaseManager) retireLocked(key string, db *gorm.DB) {
	dm.retired = append(dm.retired, retiredPool{key: key, db: db, retiredAt: dm.now()})
}

// RetiredPools returns how many replaced pools are waiting to be closed.
func (dm *DatabaseManager) RetiredPools() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.retired)
}

func (dm *DatabaseManager) register(key, fingerprint string, db *gorm.DB) (*gorm.DB, error) {
	dm.mu.Lock()
	if dm.closed {
		dm.mu.Unlock()
		dm.closePool(key, db)
		return nil, ErrManagerClosed
	}
	if existing, ok := dm.pools[key]; ok && existing.fingerprint == fingerprint {
		existing.lastUsedAt = dm.now()
		dm.mu.Unlock()
		dm.closePool(key, db)
		return existing.db, nil
	}
	if replaced := dm.pools[key]; replaced != nil {
		dm.retireLocked(key, replaced.db)
	}
	dm.pools[key] = &poolEntry{db: db, fingerprint: fingerprint, lastUsedAt: dm.now()}
	dm.mu.Unlock()

	dm.startSweep()
	dm.logger.Info("company pool ready", "company", key)
	return db, nil
}

func (dm *DatabaseManager) open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(dm.dialect(dsn), &gorm.Config{
		Logger:               logger.Default.LogMode(dm.gormLogLevel()),
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(dm.options.MaxOpenConns)
	sqlDB.SetMaxIdleConns(dm.options.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(dm.options.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, dm.options.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping pool: %w", err)
	}
	return db, nil
}

func (dm *DatabaseManager) closePool(key string, db *gorm.DB) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		dm.logger.Warn("failed to close pool", "company", key, "error", err)
	}
}

func (dm *DatabaseManager) gormLogLevel() logger.LogLevel {
	switch dm.options.LogLevel {
	case LogLevelError:
		return logger.Error
	case LogLevelWarn:
		return logger.Warn
	case LogLevelInfo:
		return logger.Info
	case LogLevelSilent:
		return logger.Silent
	default:
		return logger.Info
	}
}

func (dm *DatabaseManager) isClosed() bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.closed
}

func (dm *DatabaseManager) startSweep() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.sweeping || dm.closed {
		return
	}
	dm.sweeping = true
	go dm.sweepLoop()
}

func (dm *DatabaseManager) sweepLoop() {
	defer close(dm.done)
	ticker := time.NewTicker(dm.options.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			dm.SweepIdle()
		case <-dm.stop:
			return
		}
	}
}

// SweepIdle closes every company pool unused for longer than the idle timeout,
// and every retired pool older than the query timeout.
func (dm *DatabaseManager) SweepIdle() int {
	now := dm.now()
	cutoff := now.Add(-dm.options.IdleTimeout)
	retiredCutoff := now.Add(-dm.options.QueryTimeout)

	dm.mu.Lock()
	stale := make(map[string]*gorm.DB)
	for key, entry := range dm.pools {
		if entry.lastUsedAt.Before(cutoff) {
			stale[key] = entry.db
			delete(dm.pools, key)
		}
	}
	var expired []retiredPool
	kept := dm.retired[:0]
	for _, r := range dm.retired {
		if r.retiredAt.After(retiredCutoff) {
			kept = append(kept, r)
		} else {
			expired = append(expired, r)
		}
	}
	dm.retired = kept
	dm.mu.Unlock()

	for key, db := range stale {
		dm.logger.Info("closing idle company pool", "company", key)
		dm.closePool(key, db)
	}
	for _, r := range expired {
		dm.logger.Info("closing replaced company pool", "company", r.key)
		dm.closePool(r.key, r.db)
	}
	dm.directory.Prune()
	return len(stale)
}

// Shutdown stops the sweep and closes every pool. Safe to call more than once.
func (dm *DatabaseManager) Shutdown() error {
	dm.mu.Lock()
	if dm.closed {
		dm.mu.Unlock()
		return nil
	}
	dm.closed = true
	sweeping := dm.sweeping
	pools := dm.pools
	dm.pools = make(map[string]*poolEntry)
	retired := dm.retired
	dm.retired = nil
	dm.mu.Unlock()

	close(dm.stop)
	if sweeping {
		<-dm.done
	}

	var errs []error
	for key, entry := range pools {
		if err := closeDB(entry.db); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	for _, r := range retired {
		if err := closeDB(r.db); err != nil {
			errs = append(errs, fmt.Errorf("close replaced %s: %w", r.key, err))
		}
	}

	dm.masterMu.Lock()
	if dm.master != nil {
		if err := closeDB(dm.master); err != nil {
			errs = append(errs, fmt.Errorf("close master: %w", err))
		}
		dm.master = nil
	}
	dm.masterMu.Unlock()

	return errors.Join(errs...)
}

// Close closes the pools
func (dm *DatabaseManager) Close() error {
	return dm.Shutdown()
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type masterSource struct {
	dm *DatabaseManager
}

func (s *masterSource) FindCompany(ctx context.Context, code string) (*console.Company, error) {
	master, err := s.dm.MasterPool(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.dm.options.QueryTimeout)
	defer cancel()
	return console.FindCompanyByCode(ctx, master, code)
}

func (s *masterSource) ListActiveCompanies(ctx context.Context) ([]console.Company, error) {
	master, err := s.dm.MasterPool(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.dm.options.QueryTimeout)
	defer cancel()
	return console.ListActiveCompanies(ctx, master)
}
