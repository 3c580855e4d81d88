package ledger

import (
	"context"
	"errors"
)

// ErrResultAlreadyConsumed is reported by ResultStream.Err when Next is
// called again on a stream that has already run to exhaustion.
var ErrResultAlreadyConsumed = errors.New("ledger: result stream already consumed")

// ResultStream is a lazy, forward-only, single-use cursor over the paginated
// output of one executed statement. Exactly one consumer is permitted: once
// the stream has been driven to exhaustion, a further call to Next fails
// deterministically with ErrResultAlreadyConsumed rather than silently
// restarting.
type ResultStream struct {
	ctx   context.Context
	sess  *session
	txnID string

	page    []Value
	pageIdx int
	current Value

	nextToken string
	done      bool

	stats Stats
	err   error
}

func newResultStream(ctx context.Context, sess *session, txnID string, first Page) *ResultStream {
	return &ResultStream{
		ctx:       ctx,
		sess:      sess,
		txnID:     txnID,
		page:      first.Values,
		nextToken: first.NextPageToken,
		stats:     first.Stats,
	}
}

// Next advances the cursor and reports whether Current now holds a value.
// It synchronously calls fetchPage on the owning session when the current
// page is exhausted and a next-page token is present.
func (r *ResultStream) Next() bool {
	if r.err != nil {
		return false
	}
	if r.done {
		r.err = ErrResultAlreadyConsumed
		return false
	}

	for r.pageIdx >= len(r.page) {
		if r.nextToken == "" {
			r.done = true
			return false
		}
		page, err := r.sess.fetchPage(r.ctx, r.txnID, r.nextToken)
		if err != nil {
			r.err = err
			r.done = true
			return false
		}
		r.page = page.Values
		r.pageIdx = 0
		r.nextToken = page.NextPageToken
		r.stats = r.stats.Add(page.Stats)
	}

	r.current = r.page[r.pageIdx]
	r.pageIdx++
	return true
}

// Current returns the value the most recent successful Next positioned on.
func (r *ResultStream) Current() Value { return r.current }

// Err returns the first error encountered during enumeration, if any.
func (r *ResultStream) Err() error { return r.err }

// ConsumedIOs returns the cumulative read/write I/O counters reported so
// far, or nil if the server has not reported any yet.
func (r *ResultStream) ConsumedIOs() *Stats {
	if r.stats == (Stats{}) {
		return nil
	}
	s := r.stats
	return &s
}

// TimingInformation returns cumulative server processing time in
// milliseconds, or nil if none has been reported.
func (r *ResultStream) TimingInformation() *int64 {
	if r.stats.ProcessingTime == 0 {
		return nil
	}
	t := r.stats.ProcessingTime
	return &t
}

// BufferedResult is a fully-materialized result: every page has already
// been drained, so unlike ResultStream it may be re-enumerated freely. It is
// produced only by driver utilities that need the complete list (e.g.
// ListTableNames) or by user code that explicitly buffers via Drain.
type BufferedResult struct {
	Values []Value
	Stats  Stats
}

// Drain fully consumes a ResultStream into a BufferedResult. Calling Drain
// on a stream that has already begun enumeration via Next returns whatever
// error Next would have (including ErrResultAlreadyConsumed).
func Drain(r *ResultStream) (*BufferedResult, error) {
	var values []Value
	for r.Next() {
		values = append(values, r.Current())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &BufferedResult{Values: values, Stats: r.stats}, nil
}
