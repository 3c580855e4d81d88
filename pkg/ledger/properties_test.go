package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport drives an execute-retry loop through an arbitrary
// sequence of commit outcomes: a value of nil means "commit succeeds", a
// non-nil error means "commit fails with this error, and the best-effort
// abort that follows (if any) succeeds". Every attempt gets its own
// StartTransaction/ExecuteStatement pair.
func scriptedTransport(t *testing.T, commitOutcomes []error) *mockTransport {
	t.Helper()
	tr := newMockTransport()
	tr.push(startSessionResult("t"), nil)
	for _, outcome := range commitOutcomes {
		tr.push(startTransactionResult(scenarioTID), nil)
		tr.push(executeStatementResult(), nil)
		if outcome == nil {
			d := newDigest(scenarioTID).update("DELETE FROM t", nil).bytes()
			tr.push(commitTransactionResult(d), nil)
			return tr
		}
		tr.pushErr(outcome)
		var cls = classify(outcome)
		if cls.sessionAlive {
			tr.push(Result{}, nil) // best-effort abort
		} else {
			tr.push(endSessionResult(), nil)
			tr.push(startSessionResult("t-retry"), nil)
		}
	}
	return tr
}

// TestPropertyBoundedRetriableErrorsEventuallySucceed is the spec §8
// property: for all lambdas that return v without raising and encounter at
// most M retriable errors, execute(f, policy{M}) returns v.
func TestPropertyBoundedRetriableErrorsEventuallySucceed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	retriableErrs := []func() error{
		func() error { return &OccConflictError{TransactionID: scenarioTID} },
		func() error { return &CapacityExceededError{TransactionID: scenarioTID} },
	}

	for trial := 0; trial < 20; trial++ {
		m := rng.Intn(4) // 0..3 retriable errors, always within M=4
		outcomes := make([]error, 0, m+1)
		for i := 0; i < m; i++ {
			outcomes = append(outcomes, retriableErrs[rng.Intn(len(retriableErrs))]())
		}
		outcomes = append(outcomes, nil)

		tr := scriptedTransport(t, outcomes)
		d := newTestDriver(t, tr)

		res, err := d.Execute(context.Background(), func(txn TxnView) (any, error) {
			_, err := txn.Execute(context.Background(), "DELETE FROM t")
			return "ok", err
		})
		require.NoError(t, err, "trial %d with %d retriable errors should still succeed", trial, m)
		assert.Equal(t, "ok", res)
	}
}

// TestPropertyPermitBalanceRestoredAfterEveryExecute is the spec §8 property:
// for all error sequences injected via a mock transport, the permit balance
// after execute equals the balance before.
func TestPropertyPermitBalanceRestoredAfterEveryExecute(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	scenarios := []func() error{
		func() error { return &OccConflictError{TransactionID: scenarioTID} },
		func() error { return &CapacityExceededError{TransactionID: scenarioTID} },
		func() error { return NewInvalidSessionError(scenarioTID, "invalid session") },
	}

	for trial := 0; trial < 20; trial++ {
		n := rng.Intn(3)
		outcomes := make([]error, 0, n+1)
		for i := 0; i < n; i++ {
			outcomes = append(outcomes, scenarios[rng.Intn(len(scenarios))]())
		}
		outcomes = append(outcomes, nil)

		tr := scriptedTransportAllowingSessionReplacement(t, outcomes)
		d := newTestDriver(t, tr)

		_, _ = d.Execute(context.Background(), func(txn TxnView) (any, error) {
			_, err := txn.Execute(context.Background(), "DELETE FROM t")
			return nil, err
		})

		assertAllPermitsReleased(t, d.pool)
	}
}

// scriptedTransportAllowingSessionReplacement is scriptedTransport with a
// distinct session token for every replacement session. Outcomes that kill
// the session (InvalidSession) get no abort but an EndSession followed by a
// replacement StartSession, as in scriptedTransport.
func scriptedTransportAllowingSessionReplacement(t *testing.T, commitOutcomes []error) *mockTransport {
	t.Helper()
	tr := newMockTransport()
	tr.push(startSessionResult("t0"), nil)
	for i, outcome := range commitOutcomes {
		tr.push(startTransactionResult(scenarioTID), nil)
		tr.push(executeStatementResult(), nil)
		if outcome == nil {
			d := newDigest(scenarioTID).update("DELETE FROM t", nil).bytes()
			tr.push(commitTransactionResult(d), nil)
			return tr
		}
		tr.pushErr(outcome)
		cls := classify(outcome)
		if cls.sessionAlive {
			tr.push(Result{}, nil)
		} else {
			tr.push(endSessionResult(), nil)
			tr.push(startSessionResult("t-retry"+string(rune('0'+i))), nil)
		}
	}
	return tr
}

func TestClassifyCatchAllIsNeverRetriable(t *testing.T) {
	cls := classify(errors.New("whatever"))
	assert.False(t, cls.retriable)
}
