package registry

import (
	"math"

	"namechain/core/types"
)

// RefTimePerNanos converts nanoseconds of reference hardware time into
// RefTime units.
const RefTimePerNanos uint64 = 1_000

// setUsernameBaseRefTime is the fixed execution cost of setUsername excluding
// storage access.
const setUsernameBaseRefTime uint64 = 10_000_000

// Weight is the declared cost of a call: reference execution time and the
// size of the storage proof it needs. It is fixed per call and never measured.
type Weight struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

// SaturatingAdd adds component-wise, clamping at math.MaxUint64.
func (w Weight) SaturatingAdd(other Weight) Weight {
	return Weight{
		RefTime:   saturatingAdd(w.RefTime, other.RefTime),
		ProofSize: saturatingAdd(w.ProofSize, other.ProofSize),
	}
}

// AllLTE reports whether every component of w is at most the one of limit.
func (w Weight) AllLTE(limit Weight) bool {
	return w.RefTime <= limit.RefTime && w.ProofSize <= limit.ProofSize
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func saturatingMul(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

// DBWeight is the declared cost of one storage read and one storage write.
type DBWeight struct {
	Read  uint64
	Write uint64
}

// RocksDBWeight matches the reference-hardware cost of a RocksDB-class backend.
var RocksDBWeight = DBWeight{
	Read:  25_000 * RefTimePerNanos,
	Write: 100_000 * RefTimePerNanos,
}

// Reads returns the weight of n storage reads.
func (d DBWeight) Reads(n uint64) Weight {
	return Weight{RefTime: saturatingMul(d.Read, n)}
}

// Writes returns the weight of n storage writes.
func (d DBWeight) Writes(n uint64) Weight {
	return Weight{RefTime: saturatingMul(d.Write, n)}
}

// WeightInfo declares the cost of every registry call.
type WeightInfo interface {
	SetUsername() Weight
}

// DefaultWeights prices calls against a storage backend's DBWeight.
type DefaultWeights struct {
	DB DBWeight
}

// SetUsername is the base cost plus one storage write. The emitted event is
// covered by the base cost.
func (w DefaultWeights) SetUsername() Weight {
	return Weight{RefTime: setUsernameBaseRefTime}.SaturatingAdd(w.DB.Writes(1))
}

// CallWeight returns the declared weight of tx without executing it. Unknown
// call types have zero weight; they are rejected by the dispatcher anyway.
func CallWeight(info WeightInfo, tx *types.Transaction) Weight {
	if info == nil || tx == nil {
		return Weight{}
	}
	switch tx.Type {
	case types.TxTypeSetUsername:
		return info.SetUsername()
	default:
		return Weight{}
	}
}
