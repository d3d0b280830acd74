package protocol

import (
	"github.com/holiman/uint256"
)

// Bit offsets of the fields packed into a priority key.
//
//	priority = blockNumber·2^81 + txIndex·2^65 + outputIndex·2^64 + low
//
// The low word holds a deposit nonce for CalculatePriority and the exit request
// time for exit keys. Block number dominates, so older outputs always sort first.
const (
	OutputIndexShift = 64
	TxIndexShift     = 65
	BlockNumberShift = 81
)

var (
	lowMask     = new(uint256.Int).SetUint64(^uint64(0))
	txIndexMask = uint256.NewInt(0xffff)
)

// EncodePriority packs an output position and a low word into a priority key.
// The sum is exact for any field values; it is reversible by DecodePriority when
// the output index is 0 or 1.
func EncodePriority(ref OutputRef, low uint64) *uint256.Int {
	key := new(uint256.Int).Lsh(uint256.NewInt(ref.BlockNumber), BlockNumberShift)
	key.Add(key, new(uint256.Int).Lsh(uint256.NewInt(uint64(ref.TxIndex)), TxIndexShift))
	key.Add(key, new(uint256.Int).Lsh(uint256.NewInt(uint64(ref.OutputIndex)), OutputIndexShift))
	return key.Add(key, uint256.NewInt(low))
}

// DecodePriority is the inverse of EncodePriority
func DecodePriority(key *uint256.Int) (OutputRef, uint64) {
	low := new(uint256.Int).And(key, lowMask).Uint64()
	oindex := new(uint256.Int).Rsh(key, OutputIndexShift)
	oindex.And(oindex, uint256.NewInt(1))
	txIndex := new(uint256.Int).Rsh(key, TxIndexShift)
	txIndex.And(txIndex, txIndexMask)
	blk := new(uint256.Int).Rsh(key, BlockNumberShift)

	return OutputRef{
		BlockNumber: blk.Uint64(),
		TxIndex:     uint16(txIndex.Uint64()),
		OutputIndex: uint8(oindex.Uint64()),
	}, low
}

// ComputePriority returns the exit key for an output whose exit was requested at
// the given logical time.
func ComputePriority(ref OutputRef, logicalTime uint64) *uint256.Int {
	return EncodePriority(ref, logicalTime)
}

// CalculatePriority decodes an RLP transaction and returns the priority of its
// youngest input, each input carrying its deposit nonce in the low word.
func CalculatePriority(txBytes []byte) (*uint256.Int, error) {
	tx, err := DecodeTransaction(txBytes)
	if err != nil {
		return nil, err
	}
	return tx.Priority(), nil
}

// Max returns the larger of a and b
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int).Set(a)
}

// PriorityKeyBytes is the 32-byte big-endian form used as a store key. Byte order
// matches numeric order, so ordered iteration walks keys from lowest priority up.
func PriorityKeyBytes(key *uint256.Int) []byte {
	b := key.Bytes32()
	return b[:]
}

// ParsePriority parses a decimal or 0x-prefixed hex priority key
func ParsePriority(s string) (*uint256.Int, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}
