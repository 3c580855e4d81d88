// Package ledgerval provides the Ion-backed implementation of ledger.Value
// used by production Transports: statement parameters going out, and rows
// coming back, are Amazon Ion binary documents.
package ledgerval

import (
	"fmt"

	"github.com/amzn/ion-go/ion"

	"github.com/ledgerql/driver-go/pkg/ledger"
)

// Value wraps one Ion-encoded document. It is comparable by its raw bytes,
// which is what the digest accumulator in pkg/ledger relies on.
type Value struct {
	data []byte
}

var _ ledger.Value = Value{}

// Bytes returns the value's Ion binary encoding.
func (v Value) Bytes() []byte { return v.data }

// FromGo Ion-encodes a Go value (struct, map, slice, or primitive) into a
// Value suitable for use as a statement parameter.
func FromGo(v interface{}) (Value, error) {
	data, err := ion.MarshalBinary(v)
	if err != nil {
		return Value{}, fmt.Errorf("ledgerval: marshal: %w", err)
	}
	return Value{data: data}, nil
}

// FromBytes wraps an already-encoded Ion binary document, typically one
// just received from a Transport.
func FromBytes(data []byte) Value {
	return Value{data: data}
}

// Unmarshal decodes v's Ion document into into, following the same
// struct-tag conventions (`ion:"fieldName"`) as encoding/json.
func (v Value) Unmarshal(into interface{}) error {
	if err := ion.Unmarshal(v.data, into); err != nil {
		return fmt.Errorf("ledgerval: unmarshal: %w", err)
	}
	return nil
}

// String renders the value's Ion text encoding for logging, falling back to
// a byte count if the document can't be round-tripped (should not happen for
// anything this package itself produced).
func (v Value) String() string {
	doc, err := rawIon(v.data)
	if err != nil {
		return fmt.Sprintf("ledgerval.Value(%d bytes)", len(v.data))
	}
	text, err := ion.MarshalText(doc)
	if err != nil {
		return fmt.Sprintf("ledgerval.Value(%d bytes)", len(v.data))
	}
	return string(text)
}

// rawIon round-trips through a generic interface{} so MarshalText can
// re-render an arbitrary already-binary-encoded document as text.
func rawIon(data []byte) (interface{}, error) {
	var v interface{}
	err := ion.Unmarshal(data, &v)
	return v, err
}

// DecodeTableName is a ledger.TableNameDecoder for Ion-backed Values, wired
// in via ledger.WithTableNameDecoder. The table name query uses SELECT VALUE,
// so each row is a bare Ion string scalar, not a struct.
func DecodeTableName(v ledger.Value) (string, error) {
	iv, ok := v.(Value)
	if !ok {
		iv = FromBytes(v.Bytes())
	}
	var name string
	if err := iv.Unmarshal(&name); err != nil {
		return "", err
	}
	return name, nil
}
