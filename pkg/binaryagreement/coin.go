package binaryagreement

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// Coin is the deterministic tie-break used when a round ends without a
// decision. Implementations must be pure functions of their inputs.
type Coin interface {
	Flip(round uint64, nodeID int) Value
}

// CoinFunc adapts a plain function to Coin.
type CoinFunc func(round uint64, nodeID int) Value

func (f CoinFunc) Flip(round uint64, nodeID int) Value { return f(round, nodeID) }

// ParityCoin returns (round + nodeID) mod 2.
var ParityCoin Coin = CoinFunc(func(round uint64, nodeID int) Value {
	return Value((round + uint64(nodeID)) % 2)
})

// HashCoin takes the low bit of SHA-256(round || nodeID). Each node gets
// its own pseudo-random sequence.
var HashCoin Coin = CoinFunc(func(round uint64, nodeID int) Value {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], round)
	binary.BigEndian.PutUint64(buf[8:], uint64(nodeID))
	hash := sha256.Sum256(buf[:])
	return Value(hash[0] & 1)
})

// CommonCoin ignores the node id, so every node flips the same value in a
// given round.
var CommonCoin Coin = CoinFunc(func(round uint64, _ int) Value {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	hash := sha256.Sum256(buf[:])
	return Value(hash[0] & 1)
})

// CoinByName resolves "parity", "hash" or "common". Empty means hash.
func CoinByName(name string) (Coin, error) {
	switch strings.ToLower(name) {
	case "", "hash":
		return HashCoin, nil
	case "parity":
		return ParityCoin, nil
	case "common":
		return CommonCoin, nil
	}
	return nil, fmt.Errorf("unknown coin %q", name)
}
