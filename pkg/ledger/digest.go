package ledger

import (
	"crypto/sha256"
	"math/big"
)

// digest is the 32-byte running commit digest accumulated over a
// transaction's lifetime. The zero value is not usable; start one with
// newDigest.
type digest [32]byte

// newDigest seeds a digest from a transaction id per spec: h0 =
// SHA-256(utf8(transactionId)).
func newDigest(transactionID string) digest {
	return sha256.Sum256([]byte(transactionID))
}

// update folds one executed statement into the running accumulator. Each
// statement contributes
//
//	opHash = SHA-256(utf8(statement) ++ sum(SHA-256(binary(param))))
//
// and opHashes are combined into the accumulator with addMod256, which is
// commutative and associative: the accumulator after folding statements in
// any order is identical to folding them in any other order. bytes() mixes
// the accumulator into the final commit digest.
func (h digest) update(statement string, params []Value) digest {
	stmtHash := sha256.New()
	stmtHash.Write([]byte(statement))
	for _, p := range params {
		paramHash := sha256.Sum256(p.Bytes())
		stmtHash.Write(paramHash[:])
	}
	var opHash [32]byte
	copy(opHash[:], stmtHash.Sum(nil))

	return addMod256(h, opHash)
}

// mod256 is 2^256, the modulus addMod256 wraps under.
var mod256 = new(big.Int).Lsh(big.NewInt(1), 256)

// addMod256 adds a and b as unsigned big-endian 256-bit integers modulo
// 2^256. Addition over this group is commutative and associative, so folding
// a set of opHashes through addMod256 in any order yields the same sum.
func addMod256(a, b [32]byte) digest {
	sum := new(big.Int).Add(new(big.Int).SetBytes(a[:]), new(big.Int).SetBytes(b[:]))
	sum.Mod(sum, mod256)

	var out digest
	sum.FillBytes(out[:])
	return out
}

// bytes returns the final commit digest sent with CommitTransaction.
func (h digest) bytes() [32]byte {
	return sha256.Sum256(h[:])
}
