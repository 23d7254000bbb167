// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"errors"
	"fmt"
)

// Compiler limits.
const (
	// maxStack is the hard limit on a function's operand stack depth.
	maxStack = 256
	// maxLocals is the maximum number of local variables per function.
	maxLocals = 32
	// maxUpvalues is the maximum number of upvalues per function.
	maxUpvalues = 16
	// maxParams is the maximum number of parameters per function.
	maxParams = 100
	// maxAssignmentVariables is the maximum number of targets
	// in a multiple assignment.
	maxAssignmentVariables = 100
)

// MultipleReturns is the sentinel result count of an [OpCall] instruction
// that keeps all the values the call produces on the stack.
const MultipleReturns = MaxArgB

// funcState is the mutable state associated with a [Prototype]
// while it is being constructed.
//
// Equivalent to `FuncState` in upstream Lua.
type funcState struct {
	*Prototype

	// prev is the enclosing function.
	// It is nil for the main chunk.
	prev *funcState

	// stackDepth is the symbolic operand stack depth
	// after the last emitted instruction.
	stackDepth int
	// numLocalVariables is the number of active local variables.
	// Reserved names may follow in localVariables
	// before they are activated.
	numLocalVariables int
	// localVariables holds active and reserved local variable names
	// in declaration order.
	localVariables [maxLocals]string
	// upvalues are the captured upvalue descriptors,
	// each a local or global of the enclosing function.
	upvalues []expDesc
	// stringConstantIndex caches positions in Prototype.StringConstants.
	stringConstantIndex map[string]int
	// lastSetLine is the last line marked with an [OpSetLine] instruction.
	lastSetLine int
}

// pc returns the current emit cursor:
// the index the next emitted instruction will occupy.
func (fs *funcState) pc() int {
	return len(fs.Code)
}

// fixJump changes the jump instruction at pc to jump to the given destination.
// The stored offset is relative to the instruction following the jump.
//
// Equivalent to `luaK_fixjump` in upstream Lua.
func (fs *funcState) fixJump(pc int, dest int) error {
	jmp := fs.Code[pc]
	if !jmp.OpCode().IsJump() {
		return fmt.Errorf("internal error: fixJump called on %v", jmp.OpCode())
	}
	offset := dest - (pc + 1)
	if !fitsSignedArg(int64(offset)) {
		return errors.New("control structure too long")
	}
	fs.Code[pc], _ = jmp.WithArgS(int32(offset))
	return nil
}

// searchLocalVariable returns the slot of the most recent
// active local variable with the given name,
// or -1 if the name is not a local variable of the function.
//
// Equivalent to `aux_localname` in upstream Lua.
func (fs *funcState) searchLocalVariable(name string) int {
	for i := fs.numLocalVariables - 1; i >= 0; i-- {
		if fs.localVariables[i] == name {
			return i
		}
	}
	return -1
}

// searchUpvalue returns the index of an upvalue
// equal to the given descriptor.
func (fs *funcState) searchUpvalue(v expDesc) (i int, found bool) {
	for i := range fs.upvalues {
		if fs.upvalues[i] == v {
			return i, true
		}
	}
	return 0, false
}
