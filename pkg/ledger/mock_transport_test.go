package ledger

import (
	"context"
	"sync"
)

// mockStep is one canned transport response: a queue of these drives
// mockTransport.Send in strict FIFO order, matching the concrete scenarios
// in spec §8's testable-properties section.
type mockStep struct {
	result Result
	err    error
}

// mockTransport is a scriptable Transport test double: every call to Send
// pops the next queued step, regardless of which Command variant it carries.
// Tests assert on transport.sent to check call order and on the tokens
// observed in StartSession commands/results to check session replacement.
type mockTransport struct {
	mu    sync.Mutex
	steps []mockStep
	sent  []Command

	nextRequestID int
}

func newMockTransport() *mockTransport {
	return &mockTransport{}
}

func (m *mockTransport) push(result Result, err error) *mockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{result: result, err: err})
	return m
}

func (m *mockTransport) pushErr(err error) *mockTransport {
	return m.push(Result{}, err)
}

func (m *mockTransport) Send(ctx context.Context, cmd Command) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, cmd)
	if len(m.steps) == 0 {
		panic("mockTransport: Send called with no step queued")
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.result.RequestID == "" && step.err == nil {
		m.nextRequestID++
		step.result.RequestID = requestIDFor(m.nextRequestID)
	}
	return step.result, step.err
}

func requestIDFor(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return "req-" + string(alphabet[n%len(alphabet)])
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockTransport) calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.sent))
	copy(out, m.sent)
	return out
}

// countExecuteStatementCommands reports how many ExecuteStatement commands
// the mock received, whatever their statement, used by the OCC-retry
// scenario to count attempts.
func (m *mockTransport) countExecuteStatementCommands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.sent {
		if c.ExecuteStatement != nil {
			n++
		}
	}
	return n
}

// ionStringValue is a minimal Value used by tests that don't need
// pkg/ledgerval: it treats its payload as raw bytes, matching
// defaultTableNameDecoder.
type ionStringValue string

func (v ionStringValue) Bytes() []byte { return []byte(v) }

func startSessionResult(token string) Result {
	return Result{StartSession: &StartSessionResult{SessionToken: token}}
}

func startTransactionResult(txnID string) Result {
	return Result{StartTransaction: &StartTransactionResult{TransactionID: txnID}}
}

func executeStatementResult(values ...Value) Result {
	return Result{ExecuteStatement: &ExecuteStatementResult{FirstPage: Page{Values: values}}}
}

func commitTransactionResult(d [32]byte) Result {
	return Result{CommitTransaction: &CommitTransactionResult{Digest: d}}
}

func endSessionResult() Result {
	return Result{}
}
