package vm

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

// ExtPlan is the continuation-row variant of an instruction. Every
// multi-row instruction maps to exactly one plan; the engine emits the
// plan's rows right after the primary row.
type ExtPlan int

const (
	// PlanNone emits no ext lines
	PlanNone ExtPlan = iota

	// PlanStorage emits one line binding the access to its hash chain
	PlanStorage

	// PlanScCall emits code lookup, caller-address and callee-address lines
	PlanScCall

	// PlanScCallEnd emits the return line of a nested environment
	PlanScCallEnd

	// PlanTapeLoad emits one line per loaded tape cell
	PlanTapeLoad

	// PlanTapeStore emits one line per stored tape cell
	PlanTapeStore
)

// ScCallExtLines is the fixed ext-line count of SCCALL
const ScCallExtLines = 3

// PlanOf returns the ext plan of an opcode in an environment
func PlanOf(op Opcode, envIdx uint64) ExtPlan {
	switch op {
	case SLOAD, SSTORE:
		return PlanStorage
	case SCCALL:
		return PlanScCall
	case END:
		if envIdx != 0 {
			return PlanScCallEnd
		}
		return PlanNone
	case TLOAD:
		return PlanTapeLoad
	case TSTORE:
		return PlanTapeStore
	default:
		return PlanNone
	}
}

// ExtLength returns the number of ext lines following a primary row.
// For TLOAD it is op0*op1 + (1-op0), evaluated in the field; for TSTORE
// it is op1.
func ExtLength(op Opcode, envIdx uint64, op0, op1 field.Element) uint64 {
	switch PlanOf(op, envIdx) {
	case PlanStorage, PlanScCallEnd:
		return 1
	case PlanScCall:
		return ScCallExtLines
	case PlanTapeLoad:
		return op0.Mul(op1).Add(field.One.Sub(op0)).Value()
	case PlanTapeStore:
		return op1.Value()
	default:
		return 0
	}
}
