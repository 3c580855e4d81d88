package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ledgerql/driver-go/pkg/ledger"
	"github.com/ledgerql/driver-go/pkg/ledgerval"
)

// demoTransport is a tiny in-process stand-in for a real Ledger, used by
// `ledgerctl -mock`: it has a fixed list of active tables and trusts
// whatever commit digest the client sends, since there is nothing here to
// independently verify it against.
type demoTransport struct {
	mu     sync.Mutex
	tables []string
	nextID int64
	active map[string]bool // session token -> alive
}

func newDemoTransport() *demoTransport {
	return &demoTransport{
		tables: []string{"Vehicle", "DriversLicense", "Person"},
		active: make(map[string]bool),
	}
}

func (d *demoTransport) Send(ctx context.Context, cmd ledger.Command) (ledger.Result, error) {
	requestID := fmt.Sprintf("demo-req-%d", atomic.AddInt64(&d.nextID, 1))

	switch {
	case cmd.StartSession != nil:
		token := fmt.Sprintf("demo-session-%d", atomic.AddInt64(&d.nextID, 1))
		d.mu.Lock()
		d.active[token] = true
		d.mu.Unlock()
		return ledger.Result{RequestID: requestID, StartSession: &ledger.StartSessionResult{SessionToken: token}}, nil

	case cmd.StartTransaction != nil:
		txnID := fmt.Sprintf("demo-txn-%d", atomic.AddInt64(&d.nextID, 1))
		return ledger.Result{RequestID: requestID, StartTransaction: &ledger.StartTransactionResult{TransactionID: txnID}}, nil

	case cmd.ExecuteStatement != nil:
		values, err := d.execute(cmd.ExecuteStatement.Statement)
		if err != nil {
			return ledger.Result{}, err
		}
		return ledger.Result{RequestID: requestID, ExecuteStatement: &ledger.ExecuteStatementResult{
			FirstPage: ledger.Page{Values: values},
		}}, nil

	case cmd.FetchPage != nil:
		return ledger.Result{RequestID: requestID, FetchPage: &ledger.FetchPageResult{Page: ledger.Page{}}}, nil

	case cmd.CommitTransaction != nil:
		return ledger.Result{RequestID: requestID, CommitTransaction: &ledger.CommitTransactionResult{
			Digest: cmd.CommitTransaction.Digest,
		}}, nil

	case cmd.AbortTransaction != nil:
		return ledger.Result{RequestID: requestID}, nil

	case cmd.EndSession != nil:
		d.mu.Lock()
		delete(d.active, cmd.EndSession.SessionToken)
		d.mu.Unlock()
		return ledger.Result{RequestID: requestID}, nil
	}

	return ledger.Result{}, fmt.Errorf("demoTransport: empty command")
}

// execute runs a minimal subset of PartiQL against the demo ledger: only
// the fixed listTableNames query is understood, anything else returns no
// rows.
func (d *demoTransport) execute(statement string) ([]ledger.Value, error) {
	if statement != listTableNamesQuery {
		return nil, nil
	}
	d.mu.Lock()
	tables := append([]string(nil), d.tables...)
	d.mu.Unlock()

	values := make([]ledger.Value, len(tables))
	for i, name := range tables {
		v, err := ledgerval.FromGo(name)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

const listTableNamesQuery = "SELECT VALUE name FROM information_schema.user_tables WHERE status = 'ACTIVE'"
