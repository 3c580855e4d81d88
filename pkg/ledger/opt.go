package ledger

import (
	"math"
	"time"
)

// RetryPolicy governs how many times, and with what delay, a failed
// transaction attempt is replayed.
type RetryPolicy struct {
	// MaxRetries is the number of retries (not attempts) permitted beyond
	// the always-performed first attempt. Must be >= 0.
	MaxRetries int
	// Backoff computes the delay before the next attempt.
	Backoff BackoffStrategy
}

// BackoffContext carries what a BackoffStrategy needs to compute a delay.
type BackoffContext struct {
	RetriesAttempted int
	LastError        error
}

// BackoffStrategy is a pure function from (attempt, lastError) to a sleep
// duration. Implementations must not perform I/O.
type BackoffStrategy interface {
	Delay(ctx BackoffContext) time.Duration
}

// ExponentialBackoff is the default BackoffStrategy: a doubling delay capped
// at Cap, applied per retry (not per attempt).
type ExponentialBackoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b ExponentialBackoff) Delay(ctx BackoffContext) time.Duration {
	if ctx.RetriesAttempted <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < ctx.RetriesAttempted; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// DefaultRetryPolicy matches the documented driver default: four retries
// with a 10ms-based, 5s-capped exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 4,
		Backoff: ExponentialBackoff{
			Base: 10 * time.Millisecond,
			Cap:  5000 * time.Millisecond,
		},
	}
}

// DriverConfig is the fully-resolved configuration backing a Driver,
// assembled by applying Options over defaultConfig.
type DriverConfig struct {
	ledgerName                string
	maxConcurrentTransactions uint
	retryPolicy               RetryPolicy
	logger                    Logger
	loggerVerbosity           LogLevel
	poolAcquireTimeout        time.Duration
	transport                 Transport
	tableNameDecoder          TableNameDecoder
}

// unboundedSentinel stands in for "maxConcurrentTransactions == 0", i.e. no
// explicit limit, per spec §4.5. A real numeric cap keeps the pool's
// acquire/release code path uniform instead of special-casing "unbounded".
const unboundedSentinel = math.MaxInt32

func defaultConfig() DriverConfig {
	return DriverConfig{
		maxConcurrentTransactions: 50,
		retryPolicy:               DefaultRetryPolicy(),
		loggerVerbosity:           LogLevelInfo,
		poolAcquireTimeout:        time.Millisecond,
		tableNameDecoder:          defaultTableNameDecoder,
	}
}

// Option configures a Driver at construction time.
type Option func(*DriverConfig)

// WithLedgerName sets the required, non-empty ledger name to target.
func WithLedgerName(name string) Option {
	return func(c *DriverConfig) { c.ledgerName = name }
}

// WithMaxConcurrentTransactions bounds the number of simultaneously
// checked-out sessions. 0 means "no explicit limit".
func WithMaxConcurrentTransactions(n uint) Option {
	return func(c *DriverConfig) { c.maxConcurrentTransactions = n }
}

// WithRetryPolicy overrides the default retry policy used by Execute when
// no per-call policy is supplied.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *DriverConfig) { c.retryPolicy = p }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l Logger) Option {
	return func(c *DriverConfig) { c.logger = l }
}

// WithLoggerVerbosity sets the verbosity of the default logger. Has no
// effect if WithLogger supplies a custom Logger.
func WithLoggerVerbosity(v LogLevel) Option {
	return func(c *DriverConfig) { c.loggerVerbosity = v }
}

// WithPoolAcquireTimeout overrides the default ~1ms fail-fast pool
// acquisition timeout.
func WithPoolAcquireTimeout(d time.Duration) Option {
	return func(c *DriverConfig) { c.poolAcquireTimeout = d }
}

// WithTransport supplies the Transport used to reach the Ledger. Required;
// New returns an error if it is never set.
func WithTransport(t Transport) Option {
	return func(c *DriverConfig) { c.transport = t }
}

// WithTableNameDecoder overrides how ListTableNames decodes each row of its
// underlying query. The default assumes Value.Bytes() is already the raw
// UTF-8 table name; callers using the Ion-backed Value from pkg/ledgerval
// should supply ledgerval.DecodeTableName, which decodes each row as a bare
// Ion string.
func WithTableNameDecoder(d TableNameDecoder) Option {
	return func(c *DriverConfig) { c.tableNameDecoder = d }
}
