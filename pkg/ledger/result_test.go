package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStreamSinglePage(t *testing.T) {
	tr := newMockTransport()
	sess := &session{id: "s", token: "tok", transport: tr, logger: NewNopLogger()}

	first := Page{Values: []Value{ionStringValue("a"), ionStringValue("b")}}
	rs := newResultStream(context.Background(), sess, "txn1", first)

	var got []string
	for rs.Next() {
		got = append(got, string(rs.Current().Bytes()))
	}
	require.NoError(t, rs.Err())
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestResultStreamFetchesSubsequentPages(t *testing.T) {
	tr := newMockTransport()
	tr.push(Result{FetchPage: &FetchPageResult{Page: Page{
		Values:        []Value{ionStringValue("c")},
		NextPageToken: "",
	}}}, nil)
	sess := &session{id: "s", token: "tok", transport: tr, logger: NewNopLogger()}

	first := Page{Values: []Value{ionStringValue("a"), ionStringValue("b")}, NextPageToken: "next"}
	rs := newResultStream(context.Background(), sess, "txn1", first)

	var got []string
	for rs.Next() {
		got = append(got, string(rs.Current().Bytes()))
	}
	require.NoError(t, rs.Err())
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

// TestResultStreamEnumeratedAtMostOnce covers the spec §8 invariant: a
// second attempt to enumerate an exhausted stream fails deterministically.
func TestResultStreamEnumeratedAtMostOnce(t *testing.T) {
	sess := &session{id: "s", token: "tok", transport: newMockTransport(), logger: NewNopLogger()}
	rs := newResultStream(context.Background(), sess, "txn1", Page{Values: []Value{ionStringValue("a")}})

	for rs.Next() {
	}
	require.NoError(t, rs.Err())

	ok := rs.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, rs.Err(), ErrResultAlreadyConsumed)
}

func TestResultStreamPropagatesFetchError(t *testing.T) {
	tr := newMockTransport()
	wantErr := errors.New("boom")
	tr.pushErr(wantErr)
	sess := &session{id: "s", token: "tok", transport: tr, logger: NewNopLogger()}

	rs := newResultStream(context.Background(), sess, "txn1", Page{Values: nil, NextPageToken: "next"})

	ok := rs.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, rs.Err(), wantErr)
}

func TestDrainBuffersAllValues(t *testing.T) {
	sess := &session{id: "s", token: "tok", transport: newMockTransport(), logger: NewNopLogger()}
	rs := newResultStream(context.Background(), sess, "txn1", Page{
		Values: []Value{ionStringValue("x"), ionStringValue("y")},
		Stats:  Stats{ReadIOs: 3},
	})

	buf, err := Drain(rs)
	require.NoError(t, err)
	require.Len(t, buf.Values, 2)
	assert.Equal(t, int64(3), buf.Stats.ReadIOs)
}

func TestStatsAddMatchesExpectedTotals(t *testing.T) {
	a := Stats{ReadIOs: 1, WriteIOs: 2, ProcessingTime: 3}
	b := Stats{ReadIOs: 4, WriteIOs: 5, ProcessingTime: 6}

	got := a.Add(b)
	want := Stats{ReadIOs: 5, WriteIOs: 7, ProcessingTime: 9}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats.Add mismatch (-want +got):\n%s", diff)
	}
}
