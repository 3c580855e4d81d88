package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// classKind identifies which row of the spec §4.6 classification table an
// error matched.
type classKind int8

const (
	classOther classKind = iota
	classUserAbort
	classInvalidSession
	classOccConflict
	classCapacityExceeded
	classTransport
	classIntegrity
	classDriverLifecycle
	classCommitIndeterminate
)

// classifiedError is the result of running one attempt's error through the
// classification table: whether the session survives it, whether the
// orchestrator may retry, and the (possibly re-wrapped) error to surface if
// it does not.
type classifiedError struct {
	kind          classKind
	err           error
	transactionID string
	sessionAlive  bool
	retriable     bool
}

// classify implements the precedence table in spec §4.6.
func classify(err error) *classifiedError {
	var ise *InvalidSessionError
	if errors.As(err, &ise) {
		return &classifiedError{
			kind:          classInvalidSession,
			err:           ise,
			transactionID: ise.TransactionID,
			sessionAlive:  false,
			retriable:     !ise.Fatal,
		}
	}
	var occ *OccConflictError
	if errors.As(err, &occ) {
		return &classifiedError{
			kind: classOccConflict, err: occ, transactionID: occ.TransactionID,
			sessionAlive: true, retriable: true,
		}
	}
	var cap *CapacityExceededError
	if errors.As(err, &cap) {
		return &classifiedError{
			kind: classCapacityExceeded, err: cap, transactionID: cap.TransactionID,
			sessionAlive: true, retriable: true,
		}
	}
	var te *TransportError
	if errors.As(err, &te) {
		retriable := te.retriable()
		return &classifiedError{
			kind: classTransport, err: te,
			sessionAlive: !retriable, retriable: retriable,
		}
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return &classifiedError{
			kind: classIntegrity, err: ie, transactionID: ie.TransactionID,
			sessionAlive: true, retriable: false,
		}
	}
	var ci *CommitIndeterminateError
	if errors.As(err, &ci) {
		return &classifiedError{
			kind: classCommitIndeterminate, err: ci, transactionID: ci.TransactionID,
			sessionAlive: false, retriable: false,
		}
	}
	var dc *DriverClosedError
	if errors.As(err, &dc) {
		return &classifiedError{kind: classDriverLifecycle, err: dc, sessionAlive: false, retriable: false}
	}
	var pt *PoolTimeoutError
	if errors.As(err, &pt) {
		return &classifiedError{kind: classDriverLifecycle, err: pt, sessionAlive: false, retriable: false}
	}
	var te2 *TransactionError
	if errors.As(err, &te2) {
		return &classifiedError{
			kind: classOther, err: te2, transactionID: te2.TransactionID,
			sessionAlive: te2.SessionAlive, retriable: te2.Retriable,
		}
	}
	// Catch-all: "any other driver/transport error" per spec §4.6 — dead,
	// non-retriable.
	return &classifiedError{kind: classOther, err: err, sessionAlive: false, retriable: false}
}

// runAttempt starts one transaction on sess, invokes fn with a restricted
// view, and commits on normal return. It never retries; that is the
// orchestrator's job one level up.
func runAttempt(ctx context.Context, sess *session, fn func(TxnView) (any, error)) (any, *classifiedError) {
	txn, err := beginTransaction(ctx, sess)
	if err != nil {
		return nil, classify(err)
	}

	result, ferr := invokeLambda(fn, txn)

	if txn.wasUserAborted() {
		return nil, &classifiedError{
			kind: classUserAbort, err: &AbortedError{TransactionID: txn.id},
			transactionID: txn.id, sessionAlive: true, retriable: false,
		}
	}

	if ferr != nil {
		cls := classify(ferr)
		cls.transactionID = txn.id
		if cls.sessionAlive {
			cls.sessionAlive = txn.abortBestEffort(ctx)
		}
		return nil, cls
	}

	if cerr := txn.commit(ctx); cerr != nil {
		if ctx.Err() != nil {
			return nil, classify(&CommitIndeterminateError{TransactionID: txn.id, Cause: cerr})
		}
		cls := classify(cerr)
		cls.transactionID = txn.id
		if cls.sessionAlive {
			cls.sessionAlive = txn.abortBestEffort(ctx)
		}
		return nil, cls
	}

	return result, nil
}

// invokeLambda runs fn, converting a panic into an error so a misbehaving
// lambda cannot take down the whole process mid-retry-loop.
func invokeLambda(fn func(TxnView) (any, error), txn *Transaction) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("ledger: transaction lambda panicked: %v", p)
		}
	}()
	return fn(newTxnView(txn))
}

// retryDecision applies spec §4.6's precedence: a first-attempt InvalidSession
// always gets one free retry regardless of policy.MaxRetries; otherwise a
// classified error may be retried only while retriable and within budget.
// The returned budgetUsed reflects this decision and should replace the
// caller's.
func retryDecision(attempt int, cls *classifiedError, policy RetryPolicy, budgetUsed int) (retry bool, nextBudgetUsed int) {
	bonus := attempt == 1 && cls.kind == classInvalidSession && cls.retriable
	if !cls.retriable || !(bonus || budgetUsed < policy.MaxRetries) {
		return false, budgetUsed
	}
	if !bonus {
		budgetUsed++
	}
	return true, budgetUsed
}

// orchestrate is the retry orchestrator (C6): it owns the attempt loop,
// session acquisition and plumbing across retries, and backoff sleeping. A
// session-creation failure — acquiring the first session, or replacing a dead
// one mid-retry — is itself retriable and governed by the same policy budget
// as any other recoverable error, rather than aborting the call outright.
func orchestrate(ctx context.Context, pool *sessionPool, logger Logger, poolAcquireTimeout time.Duration, policy RetryPolicy, fn func(TxnView) (any, error)) (any, error) {
	budgetUsed := 0
	var sess *session

	for attempt := 1; ; attempt++ {
		if sess == nil {
			acquired, cls := acquireFirst(ctx, pool, poolAcquireTimeout)
			if cls != nil {
				retry, nb := retryDecision(attempt, cls, policy, budgetUsed)
				if !retry {
					return nil, cls.err
				}
				budgetUsed = nb

				logger.Log(LogLevelInfo, "session acquisition failed, retrying", "attempt", attempt, "err", cls.err)
				delay := policy.Backoff.Delay(BackoffContext{RetriesAttempted: budgetUsed, LastError: cls.err})
				if werr := sleepCancellable(ctx, delay); werr != nil {
					return nil, werr
				}
				continue
			}
			sess = acquired
		}

		result, cls := runAttempt(ctx, sess, fn)
		if cls == nil {
			pool.release(ctx, sess, true)
			return result, nil
		}

		if cls.kind == classUserAbort {
			pool.release(ctx, sess, cls.sessionAlive)
			return nil, cls.err
		}

		retry, nb := retryDecision(attempt, cls, policy, budgetUsed)
		if !retry {
			pool.release(ctx, sess, cls.sessionAlive)
			return nil, cls.err
		}
		budgetUsed = nb

		logger.Log(LogLevelInfo, "recoverable error, retrying", "attempt", attempt, "transaction_id", cls.transactionID, "err", cls.err)

		if cls.sessionAlive {
			// Keep the same session and its permit; no pool round-trip.
		} else {
			next, err := replaceDeadSession(ctx, pool, sess, logger, policy, attempt, &budgetUsed)
			if err != nil {
				return nil, err
			}
			sess = next
		}

		delay := policy.Backoff.Delay(BackoffContext{RetriesAttempted: budgetUsed, LastError: cls.err})
		if werr := sleepCancellable(ctx, delay); werr != nil {
			pool.release(ctx, sess, cls.sessionAlive)
			return nil, werr
		}
	}
}

// acquireFirst acquires a permit-holding session through the pool's normal
// path (idle reuse or a fresh session through the factory), reporting a
// classified error instead of returning one outright so the orchestrator can
// fold a retriable session-creation failure into its own retry budget.
func acquireFirst(ctx context.Context, pool *sessionPool, timeout time.Duration) (*session, *classifiedError) {
	sess, err := pool.acquire(ctx, timeout)
	if err != nil {
		return nil, classify(err)
	}
	return sess, nil
}

// replaceDeadSession discards a dead session (best-effort end(), no permit
// release) and creates a fresh one directly through the pool's factory,
// keeping the permit already held for this attempt. This deliberately
// bypasses the idle queue: a session known to be dead gives no reason to
// trust another idle session might not share its fate. A factory failure
// here is retried under the same policy budget as any other recoverable
// error; only once that budget is exhausted is the permit released.
func replaceDeadSession(ctx context.Context, pool *sessionPool, dead *session, logger Logger, policy RetryPolicy, attempt int, budgetUsed *int) (*session, error) {
	if err := dead.end(ctx); err != nil {
		pool.logger.Log(LogLevelDebug, "error ending dead session before replacement", "err", err)
	}

	for {
		next, err := pool.factory(ctx)
		if err == nil {
			return next, nil
		}

		cls := classify(&TransactionError{SessionAlive: false, Retriable: true, Cause: err})
		// The caller has already spent any first-attempt InvalidSession bonus;
		// replacement failures are always charged to the budget.
		retry, nb := retryDecision(attempt+1, cls, policy, *budgetUsed)
		if !retry {
			pool.sem.Release(1)
			return nil, cls.err
		}
		*budgetUsed = nb

		logger.Log(LogLevelInfo, "session replacement failed, retrying", "attempt", attempt, "err", cls.err)
		delay := policy.Backoff.Delay(BackoffContext{RetriesAttempted: *budgetUsed, LastError: cls.err})
		if werr := sleepCancellable(ctx, delay); werr != nil {
			pool.sem.Release(1)
			return nil, werr
		}
	}
}

func sleepCancellable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
