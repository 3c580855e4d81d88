package ledger

import (
	"context"
	"errors"
)

// listTableNamesStatement is the fixed PartiQL statement behind
// ListTableNames.
const listTableNamesStatement = "SELECT VALUE name FROM information_schema.user_tables WHERE status = 'ACTIVE'"

// Driver is the top-level entry point for executing statements against a
// Ledger: session pooling, OCC retries, and session-expiry handling are all
// transparent to callers of Execute.
type Driver struct {
	cfg  DriverConfig
	pool *sessionPool
}

// New constructs a Driver. WithLedgerName and WithTransport are required;
// New returns an error if either is missing.
func New(opts ...Option) (*Driver, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ledgerName == "" {
		return nil, errors.New("ledger: LedgerName is required")
	}
	if cfg.transport == nil {
		return nil, errors.New("ledger: Transport is required")
	}
	if cfg.logger == nil {
		cfg.logger = NewStdLogger(cfg.loggerVerbosity)
	}

	d := &Driver{cfg: cfg}
	d.pool = newSessionPool(cfg, d.openSession)
	return d, nil
}

func (d *Driver) openSession(ctx context.Context) (*session, error) {
	return newSession(ctx, d.cfg.ledgerName, d.cfg.transport, d.cfg.logger)
}

// Execute runs fn inside a new Ledger transaction, transparently retrying
// per the driver's default retry policy on recoverable errors. fn may run
// more than once; it should be free of side effects observable outside the
// transaction itself.
func (d *Driver) Execute(ctx context.Context, fn func(txn TxnView) (any, error)) (any, error) {
	return d.ExecuteWithPolicy(ctx, fn, d.cfg.retryPolicy)
}

// ExecuteWithPolicy is Execute with an explicit RetryPolicy overriding the
// driver's default.
func (d *Driver) ExecuteWithPolicy(ctx context.Context, fn func(txn TxnView) (any, error), policy RetryPolicy) (any, error) {
	return orchestrate(ctx, d.pool, d.cfg.logger, d.cfg.poolAcquireTimeout, policy, fn)
}

// ExecuteBlocking is a context.Background() convenience wrapper around
// Execute for callers on the synchronous facade (spec §5).
func (d *Driver) ExecuteBlocking(fn func(txn TxnView) (any, error)) (any, error) {
	return d.Execute(context.Background(), fn)
}

// ListTableNames returns the names of all active tables in the ledger, in
// server-defined order.
func (d *Driver) ListTableNames(ctx context.Context) ([]string, error) {
	res, err := d.Execute(ctx, func(txn TxnView) (any, error) {
		stream, err := txn.Execute(ctx, listTableNamesStatement)
		if err != nil {
			return nil, err
		}
		buffered, err := Drain(stream)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(buffered.Values))
		for _, v := range buffered.Values {
			name, err := d.cfg.tableNameDecoder(v)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

// TableNameDecoder decodes one row of ListTableNames' underlying query into
// a table name string. The default assumes Value.Bytes() is already the
// raw UTF-8 name; callers using an Ion-backed Value (pkg/ledgerval) should
// supply WithTableNameDecoder with ledgerval.DecodeTableName, which decodes
// each row as a bare Ion string.
type TableNameDecoder func(Value) (string, error)

func defaultTableNameDecoder(v Value) (string, error) {
	return string(v.Bytes()), nil
}

// Close idempotently closes the driver, ending every idle session. Already
// checked-out sessions are discarded as they are released, not force-ended.
func (d *Driver) Close(ctx context.Context) {
	d.pool.close(ctx)
}
