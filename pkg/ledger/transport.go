package ledger

import "context"

// Value is the opaque document value type flowing across the wire: a
// statement parameter going out, a row coming back. The core never
// interprets a Value beyond its binary serialization; PartiQL/Ion decoding
// lives entirely in collaborator packages (see pkg/ledgerval).
type Value interface {
	// Bytes returns the value's self-describing binary encoding. Two
	// values that serialize identically are treated as equal by the
	// digest accumulator.
	Bytes() []byte
}

// Command is a discriminated union of the seven requests the core ever
// issues to a Transport. Exactly one field is populated per call; Go has no
// native sum type, so (like the wire protocol it models) this is expressed
// as a tagged struct rather than an interface.
type Command struct {
	StartSession      *StartSessionCommand
	StartTransaction  *StartTransactionCommand
	ExecuteStatement  *ExecuteStatementCommand
	FetchPage         *FetchPageCommand
	CommitTransaction *CommitTransactionCommand
	AbortTransaction  *AbortTransactionCommand
	EndSession        *EndSessionCommand
}

type StartSessionCommand struct {
	LedgerName string
}

type StartTransactionCommand struct {
	SessionToken string
}

type ExecuteStatementCommand struct {
	SessionToken  string
	TransactionID string
	Statement     string
	Parameters    []Value
}

type FetchPageCommand struct {
	SessionToken  string
	TransactionID string
	PageToken     string
}

type CommitTransactionCommand struct {
	SessionToken  string
	TransactionID string
	Digest        [32]byte
}

type AbortTransactionCommand struct {
	SessionToken string
}

type EndSessionCommand struct {
	SessionToken string
}

// Result mirrors Command: at most one payload field is populated, matching
// whichever Command was sent; AbortTransaction and EndSession have no payload
// field, so their Result carries only RequestID. RequestID is the wire
// identity used to derive a Session's client-visible id on StartSession.
type Result struct {
	RequestID string

	StartSession      *StartSessionResult
	StartTransaction  *StartTransactionResult
	ExecuteStatement  *ExecuteStatementResult
	FetchPage         *FetchPageResult
	CommitTransaction *CommitTransactionResult
}

type StartSessionResult struct {
	SessionToken string
}

type StartTransactionResult struct {
	TransactionID string
}

// Page is one page of an executed statement's output.
type Page struct {
	Values        []Value
	NextPageToken string // empty when this is the final page
	Stats         Stats
}

type ExecuteStatementResult struct {
	FirstPage Page
}

type FetchPageResult struct {
	Page Page
}

type CommitTransactionResult struct {
	// Digest is the server's independently computed commit digest; the
	// caller must verify it equals the locally accumulated one.
	Digest [32]byte
}

// Stats accumulates server-reported I/O and timing for one statement
// execution across all of its pages.
type Stats struct {
	ReadIOs        int64
	WriteIOs       int64
	ProcessingTime int64 // milliseconds
}

// Add combines two Stats, used to fold a newly fetched page into a Result
// Stream's running totals.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		ReadIOs:        s.ReadIOs + o.ReadIOs,
		WriteIOs:       s.WriteIOs + o.WriteIOs,
		ProcessingTime: s.ProcessingTime + o.ProcessingTime,
	}
}

// Transport is the opaque request/response channel to the Ledger service.
// The core treats it as a single in-flight command at a time per session;
// Transport implementations need no internal concurrency control beyond
// what a single blocking/cancellable call requires.
type Transport interface {
	Send(ctx context.Context, cmd Command) (Result, error)
}
