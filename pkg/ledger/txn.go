package ledger

import (
	"context"
	"errors"
	"sync"
)

// txnState is one of the four states a Transaction moves through.
type txnState int8

const (
	txnOpen txnState = iota
	txnCommitted
	txnAborted
	txnErrored
)

// ErrTransactionNotOpen is returned when execute/commit/abort is called
// outside the state it requires.
var ErrTransactionNotOpen = errors.New("ledger: transaction is not open")

// Transaction is the state machine around one server-side transaction. It
// aggregates the commit digest across every executed statement and rejects
// further operations once terminal (spec §3, §4.4).
//
// Transaction is not safe for concurrent use: the Ledger allows at most one
// in-flight command per session, and a Transaction is always bound to
// exactly one session.
type Transaction struct {
	mu sync.Mutex

	id      string
	sess    *session
	state   txnState
	digest  digest
	aborted bool // explicit user abort, vs. abort-on-error
}

func beginTransaction(ctx context.Context, sess *session) (*Transaction, error) {
	id, err := sess.startTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		id:     id,
		sess:   sess,
		state:  txnOpen,
		digest: newDigest(id),
	}, nil
}

// ID returns the server-issued transaction id.
func (t *Transaction) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// Execute sends one PartiQL statement, folds it into the running digest, and
// returns a lazy ResultStream over its output. Valid only while the
// transaction is Open; any transport error transitions the transaction to
// Errored.
func (t *Transaction) Execute(ctx context.Context, statement string, params ...Value) (*ResultStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != txnOpen {
		return nil, ErrTransactionNotOpen
	}

	page, err := t.sess.executeStatement(ctx, t.id, statement, params)
	if err != nil {
		t.state = txnErrored
		return nil, err
	}

	t.digest = t.digest.update(statement, params)
	return newResultStream(ctx, t.sess, t.id, page), nil
}

// commit sends the accumulated digest and verifies the server's echoed
// digest matches. Valid only while Open.
func (t *Transaction) commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != txnOpen {
		return ErrTransactionNotOpen
	}

	if err := t.sess.commitTransaction(ctx, t.id, t.digest.bytes()); err != nil {
		t.state = txnErrored
		return err
	}
	t.state = txnCommitted
	return nil
}

// Abort requests the server abort the transaction. Valid in Open or
// Errored. The transaction moves to Aborted either way, and any error from
// the abort request is returned to the caller. After an explicit Abort the
// retry orchestrator surfaces AbortedError and returns the session to the
// pool as alive; a failed abort request does not mark the session dead.
// (Aborts the orchestrator issues itself after an error go through
// abortBestEffort, whose failure does mark the session dead.)
func (t *Transaction) Abort(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != txnOpen && t.state != txnErrored {
		return ErrTransactionNotOpen
	}
	t.aborted = true
	err := t.sess.abortTransaction(ctx)
	t.state = txnAborted
	return err
}

// abortBestEffort is used internally by the retry orchestrator: it never
// returns an error, only whether the abort itself succeeded (i.e. whether
// the session may still be considered alive).
func (t *Transaction) abortBestEffort(ctx context.Context) (sessionAlive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txnOpen && t.state != txnErrored {
		return t.state != txnErrored
	}
	err := t.sess.abortTransaction(ctx)
	t.state = txnAborted
	return err == nil
}

func (t *Transaction) wasUserAborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// TxnView is the restricted view of a Transaction passed into a user lambda
// by the retry orchestrator: it permits Execute and Abort but not commit,
// matching spec §4.6 step 3.
type TxnView struct {
	txn *Transaction
}

func newTxnView(t *Transaction) TxnView { return TxnView{txn: t} }

func (v TxnView) ID() string { return v.txn.ID() }

func (v TxnView) Execute(ctx context.Context, statement string, params ...Value) (*ResultStream, error) {
	return v.txn.Execute(ctx, statement, params...)
}

func (v TxnView) Abort(ctx context.Context) error {
	return v.txn.Abort(ctx)
}
