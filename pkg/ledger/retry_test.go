package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		wantKind      classKind
		wantRetriable bool
		wantAlive     bool
	}{
		{"invalid session retriable", NewInvalidSessionError("t1", "invalid session"), classInvalidSession, true, false},
		{"invalid session fatal", NewInvalidSessionError("t1", "Transaction t1 has expired"), classInvalidSession, false, false},
		{"occ conflict", &OccConflictError{TransactionID: "t1"}, classOccConflict, true, true},
		{"capacity exceeded", &CapacityExceededError{TransactionID: "t1"}, classCapacityExceeded, true, true},
		{"transport 5xx", &TransportError{StatusCode: 503}, classTransport, true, false},
		{"transport 4xx", &TransportError{StatusCode: 400}, classTransport, false, true},
		{"integrity", &IntegrityError{TransactionID: "t1"}, classIntegrity, false, true},
		{"driver closed", &DriverClosedError{}, classDriverLifecycle, false, false},
		{"pool timeout", &PoolTimeoutError{}, classDriverLifecycle, false, false},
		{"commit indeterminate", &CommitIndeterminateError{TransactionID: "t1", Cause: errors.New("canceled")}, classCommitIndeterminate, false, false},
		{"catch-all", errors.New("unmapped transport failure"), classOther, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := classify(tc.err)
			assert.Equal(t, tc.wantKind, cls.kind)
			assert.Equal(t, tc.wantRetriable, cls.retriable)
			assert.Equal(t, tc.wantAlive, cls.sessionAlive)
		})
	}
}

func TestClassifyUnwrapsWrappedErrors(t *testing.T) {
	wrapped := &TransactionError{TransactionID: "t1", SessionAlive: false, Cause: NewInvalidSessionError("t1", "invalid session")}
	cls := classify(wrapped)
	assert.Equal(t, classInvalidSession, cls.kind, "classify must see through a TransactionError wrapper via errors.As")
}

// TestMaxRetriesZeroStillGrantsFirstAttemptBonus covers the spec §8 boundary
// case: maxRetries=0 surfaces any other failure immediately, but the
// first-attempt InvalidSession bonus retry still applies.
func TestMaxRetriesZeroStillGrantsFirstAttemptBonus(t *testing.T) {
	tr := newMockTransport()
	tr.push(startSessionResult("t1"), nil)
	tr.push(startTransactionResult(scenarioTID), nil)
	tr.pushErr(NewInvalidSessionError(scenarioTID, "invalid session"))
	tr.push(endSessionResult(), nil)
	tr.push(startSessionResult("t2"), nil)
	tr.push(startTransactionResult(scenarioTID+"-2"), nil)
	tr.push(executeStatementResult(), nil)
	finalDigest := newDigest(scenarioTID + "-2").update("DELETE FROM t", nil).bytes()
	tr.push(commitTransactionResult(finalDigest), nil)

	d := newTestDriver(t, tr, WithRetryPolicy(RetryPolicy{MaxRetries: 0, Backoff: ExponentialBackoff{Cap: 0}}))

	_, err := d.Execute(context.Background(), func(txn TxnView) (any, error) {
		_, err := txn.Execute(context.Background(), "DELETE FROM t")
		return nil, err
	})
	assert.NoError(t, err)
}

// TestMaxRetriesZeroSurfacesOtherFailuresImmediately covers the other half
// of the same boundary: a non-bonus retriable error with MaxRetries=0 is not
// retried at all.
func TestMaxRetriesZeroSurfacesOtherFailuresImmediately(t *testing.T) {
	tr := newMockTransport()
	tr.push(startSessionResult("t"), nil)
	tr.push(startTransactionResult(scenarioTID), nil)
	tr.push(executeStatementResult(), nil)
	tr.pushErr(&OccConflictError{TransactionID: scenarioTID})
	tr.push(Result{}, nil) // best-effort abort

	d := newTestDriver(t, tr, WithRetryPolicy(RetryPolicy{MaxRetries: 0, Backoff: ExponentialBackoff{Cap: 0}}))

	_, err := d.Execute(context.Background(), func(txn TxnView) (any, error) {
		_, err := txn.Execute(context.Background(), "DELETE FROM t")
		return nil, err
	})
	assert.Error(t, err)
	var occ *OccConflictError
	assert.True(t, errors.As(err, &occ))
}
