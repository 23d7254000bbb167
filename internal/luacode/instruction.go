// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

//go:generate stringer -type=OpCode,OpMode -linecomment -output=instruction_string.go

package luacode

import "fmt"

// Instruction is a single virtual machine instruction:
// an opcode in the low bits
// and zero, one, or two operands in the remaining bits.
type Instruction uint32

// OpInstruction returns a new operand-less [Instruction].
// OpInstruction panics if the [OpCode] given
// does not return [OpModeNone] from [OpCode.OpMode].
func OpInstruction(op OpCode) Instruction {
	if op.OpMode() != OpModeNone {
		panic("OpInstruction with invalid OpCode")
	}
	return Instruction(op)
}

// UInstruction returns a new [OpModeU] [Instruction]
// with the given unsigned operand.
// UInstruction panics if the [OpCode] given
// does not return [OpModeU] from [OpCode.OpMode]
// or the operand is out of range.
func UInstruction(op OpCode, u uint32) Instruction {
	if op.OpMode() != OpModeU {
		panic("UInstruction with invalid OpCode")
	}
	if u > MaxArgU {
		panic("U argument out of range")
	}
	return Instruction(op) | Instruction(u)<<posU
}

// SInstruction returns a new [OpModeS] [Instruction]
// with the given signed operand.
// SInstruction panics if the [OpCode] given
// does not return [OpModeS] from [OpCode.OpMode]
// or the operand is out of range.
func SInstruction(op OpCode, s int32) Instruction {
	if op.OpMode() != OpModeS {
		panic("SInstruction with invalid OpCode")
	}
	if !fitsSignedArg(int64(s)) {
		panic("S argument out of range")
	}
	return Instruction(op) | Instruction(s+offsetS)<<posU
}

// ABInstruction returns a new [OpModeAB] [Instruction]
// with the given operands.
// ABInstruction panics if the [OpCode] given
// does not return [OpModeAB] from [OpCode.OpMode]
// or an operand is out of range.
func ABInstruction(op OpCode, a uint16, b uint8) Instruction {
	if op.OpMode() != OpModeAB {
		panic("ABInstruction with invalid OpCode")
	}
	return Instruction(op) |
		Instruction(b)<<posB |
		Instruction(a)<<posA
}

const sizeOpCode = 8

// OpCode returns the instruction's type.
func (i Instruction) OpCode() OpCode {
	return OpCode(i & (1<<sizeOpCode - 1))
}

// Operand field sizes and positions.
// The A and B fields together span the same bits as the U field.
const (
	sizeU = 24
	posU  = sizeOpCode
	// MaxArgU is the largest value
	// that fits in an [Instruction]'s unsigned operand.
	MaxArgU = 1<<sizeU - 1

	offsetS = MaxArgU >> 1
	// MaxArgS is the largest magnitude
	// that fits in an [Instruction]'s signed operand.
	MaxArgS = offsetS

	sizeB = 8
	posB  = sizeOpCode
	// MaxArgB is the largest value
	// that fits in an [Instruction]'s lower (B) operand.
	MaxArgB = 1<<sizeB - 1

	sizeA = 16
	posA  = posB + sizeB
	// MaxArgA is the largest value
	// that fits in an [Instruction]'s upper (A) operand.
	MaxArgA = 1<<sizeA - 1
)

// ArgU returns the unsigned operand of an [OpModeU] instruction.
func (i Instruction) ArgU() uint32 {
	switch i.OpCode().OpMode() {
	case OpModeU:
		return uint32(i >> posU)
	default:
		return 0
	}
}

// WithArgU returns a copy of i
// with its unsigned operand changed to the given value,
// or i unchanged if [OpCode.OpMode] is not [OpModeU].
func (i Instruction) WithArgU(u uint32) (_ Instruction, ok bool) {
	if i.OpCode().OpMode() != OpModeU || u > MaxArgU {
		return i, false
	}
	const mask = Instruction(MaxArgU) << posU
	return i&^mask | Instruction(u)<<posU, true
}

// ArgS returns the signed operand of an [OpModeS] instruction.
func (i Instruction) ArgS() int32 {
	switch i.OpCode().OpMode() {
	case OpModeS:
		return int32(i>>posU) - offsetS
	default:
		return 0
	}
}

// WithArgS returns a copy of i
// with its signed operand changed to the given value,
// or i unchanged if [OpCode.OpMode] is not [OpModeS].
func (i Instruction) WithArgS(s int32) (_ Instruction, ok bool) {
	if i.OpCode().OpMode() != OpModeS || !fitsSignedArg(int64(s)) {
		return i, false
	}
	const mask = Instruction(MaxArgU) << posU
	return i&^mask | Instruction(s+offsetS)<<posU, true
}

// fitsSignedArg reports whether the integer
// is within the range of an instruction's signed operand.
func fitsSignedArg(i int64) bool {
	return -offsetS <= i && i <= MaxArgU-offsetS
}

// ArgA returns the upper (A) operand of an [OpModeAB] instruction.
func (i Instruction) ArgA() uint16 {
	switch i.OpCode().OpMode() {
	case OpModeAB:
		return uint16(i >> posA)
	default:
		return 0
	}
}

// ArgB returns the lower (B) operand of an [OpModeAB] instruction.
func (i Instruction) ArgB() uint8 {
	switch i.OpCode().OpMode() {
	case OpModeAB:
		return uint8(i >> posB)
	default:
		return 0
	}
}

// WithArgB returns a copy of i
// with its lower (B) operand changed to the given value,
// or i unchanged if [OpCode.OpMode] is not [OpModeAB].
func (i Instruction) WithArgB(b uint8) (_ Instruction, ok bool) {
	if i.OpCode().OpMode() != OpModeAB {
		return i, false
	}
	const mask = Instruction(MaxArgB) << posB
	return i&^mask | Instruction(b)<<posB, true
}

// String decodes the instruction
// and formats it in a manner similar to luac -l.
func (i Instruction) String() string {
	switch op := i.OpCode(); op.OpMode() {
	case OpModeNone:
		return op.String()
	case OpModeU:
		return fmt.Sprintf("%-11s %d", op, i.ArgU())
	case OpModeS:
		return fmt.Sprintf("%-11s %+d", op, i.ArgS())
	case OpModeAB:
		return fmt.Sprintf("%-11s %d %d", op, i.ArgA(), i.ArgB())
	default:
		return fmt.Sprintf("Instruction(%#08x)", uint32(i))
	}
}

// OpCode is an enumeration of [Instruction] types.
type OpCode uint8

// Defined [OpCode] values.
const (
	// — function terminator
	OpEndCode OpCode = 0 // ENDCODE
	// U return locals[u..]
	OpRetCode OpCode = 1 // RETCODE
	// A B call stack[a] with results b (b == MultipleReturns means all)
	OpCall OpCode = 2 // CALL
	// U push u+1 nils
	OpPushNil OpCode = 3 // PUSHNIL
	// U pop u values
	OpPop OpCode = 4 // POP
	// S push small integer
	OpPushInt OpCode = 5 // PUSHINT
	// U push number-pool[u]
	OpPushNum OpCode = 6 // PUSHNUM
	// U push string-pool[u]
	OpPushString OpCode = 7 // PUSHSTRING
	// U push local slot u
	OpPushLocal OpCode = 8 // PUSHLOCAL
	// U push upvalue u
	OpPushUpvalue OpCode = 9 // PUSHUPVALUE
	// U push globals[string-pool[u]]
	OpGetGlobal OpCode = 10 // GETGLOBAL
	// — replace table,key with value
	OpGetTable OpCode = 11 // GETTABLE
	// U push receiver and method string-pool[u]
	OpPushSelf OpCode = 12 // PUSHSELF
	// U new empty table with size hint u
	OpCreateTable OpCode = 13 // CREATETABLE
	// U store top into local u
	OpSetLocal OpCode = 14 // SETLOCAL
	// U store top into globals[string-pool[u]]
	OpSetGlobal OpCode = 15 // SETGLOBAL
	// U store top into stack[-u-2][stack[-u-1]], popping only the value
	OpSetTable OpCode = 16 // SETTABLE
	// — store top into table,key beneath, popping all three
	OpSetTablePop OpCode = 17 // SETTABLEPOP
	// A B bulk list initialization of batch a with b+1 values
	OpSetList OpCode = 18 // SETLIST
	// U bulk record initialization with u+1 key-value pairs
	OpSetMap OpCode = 19 // SETMAP
	// — comparison operators
	OpEqual        OpCode = 20 // EQOP
	OpNotEqual     OpCode = 21 // NEQOP
	OpGreater      OpCode = 22 // GTOP
	OpLess         OpCode = 23 // LTOP
	OpLessEqual    OpCode = 24 // LEOP
	OpGreaterEqual OpCode = 25 // GEOP
	// — arithmetic operators
	OpAdd OpCode = 26 // ADDOP
	OpSub OpCode = 27 // SUBOP
	OpMul OpCode = 28 // MULTOP
	OpDiv OpCode = 29 // DIVOP
	OpPow OpCode = 30 // POWOP
	// — concatenation
	OpConcat OpCode = 31 // CONCOP
	// — unary operators
	OpMinus OpCode = 32 // MINUSOP
	OpNot   OpCode = 33 // NOTOP
	// S short-circuit jumps: jump and keep, or pop and fall through
	OpOnTrueJump  OpCode = 34 // ONTJMP
	OpOnFalseJump OpCode = 35 // ONFJMP
	// S unconditional jump
	OpJump OpCode = 36 // JMP
	// S conditional pop-and-jump
	OpIfTrueJump  OpCode = 37 // IFTJMP
	OpIfFalseJump OpCode = 38 // IFFJMP
	// A B make closure from child prototype a with b upvalues
	OpClosure OpCode = 39 // CLOSURE
	// U debug: mark current line
	OpSetLine OpCode = 40 // SETLINE

	maxOpCode = OpSetLine
)

// IsValid reports whether the opcode is one of the known instructions.
func (op OpCode) IsValid() bool {
	return op <= maxOpCode
}

// OpMode returns the format of an [Instruction] that uses the opcode.
func (op OpCode) OpMode() OpMode {
	if !op.IsValid() {
		return 0
	}
	return opModes[op]
}

// IsJump reports whether the instruction transfers control
// via its signed operand.
func (op OpCode) IsJump() bool {
	return op == OpOnTrueJump ||
		op == OpOnFalseJump ||
		op == OpJump ||
		op == OpIfTrueJump ||
		op == OpIfFalseJump
}

var opModes = [...]OpMode{
	OpEndCode:      OpModeNone,
	OpRetCode:      OpModeU,
	OpCall:         OpModeAB,
	OpPushNil:      OpModeU,
	OpPop:          OpModeU,
	OpPushInt:      OpModeS,
	OpPushNum:      OpModeU,
	OpPushString:   OpModeU,
	OpPushLocal:    OpModeU,
	OpPushUpvalue:  OpModeU,
	OpGetGlobal:    OpModeU,
	OpGetTable:     OpModeNone,
	OpPushSelf:     OpModeU,
	OpCreateTable:  OpModeU,
	OpSetLocal:     OpModeU,
	OpSetGlobal:    OpModeU,
	OpSetTable:     OpModeU,
	OpSetTablePop:  OpModeNone,
	OpSetList:      OpModeAB,
	OpSetMap:       OpModeU,
	OpEqual:        OpModeNone,
	OpNotEqual:     OpModeNone,
	OpGreater:      OpModeNone,
	OpLess:         OpModeNone,
	OpLessEqual:    OpModeNone,
	OpGreaterEqual: OpModeNone,
	OpAdd:          OpModeNone,
	OpSub:          OpModeNone,
	OpMul:          OpModeNone,
	OpDiv:          OpModeNone,
	OpPow:          OpModeNone,
	OpConcat:       OpModeNone,
	OpMinus:        OpModeNone,
	OpNot:          OpModeNone,
	OpOnTrueJump:   OpModeS,
	OpOnFalseJump:  OpModeS,
	OpJump:         OpModeS,
	OpIfTrueJump:   OpModeS,
	OpIfFalseJump:  OpModeS,
	OpClosure:      OpModeAB,
	OpSetLine:      OpModeU,
}

// OpMode is an enumeration of [Instruction] formats.
type OpMode uint8

// Instruction formats.
const (
	// OpModeNone is the format of an opcode-only instruction.
	OpModeNone OpMode = 1 + iota
	// OpModeU is the format of an instruction with an unsigned wide operand.
	OpModeU
	// OpModeS is the format of an instruction with a signed wide operand.
	OpModeS
	// OpModeAB is the format of an instruction with upper (A) and lower (B) operands.
	OpModeAB
)
