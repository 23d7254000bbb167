// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"lua3.256lights.llc/pkg/internal/lualex"
)

// Mode is a bit set that alters the behavior of [Parse].
type Mode uint

// Mode bits.
const (
	// StripDebug omits line marks and local variable names
	// from the generated prototypes.
	StripDebug Mode = 1 << iota
)

// maxWhileExpressionSize is the size of the scratch buffer
// that holds a while condition
// while the loop body is compiled ahead of it.
//
// Equivalent to `MAX_WHILE_EXP` in upstream Lua.
const maxWhileExpressionSize = 200

// Parse converts a Lua source file into virtual machine code.
// The returned prototype is the main chunk:
// a function with no parameters (not variadic)
// whose code ends in an [OpEndCode] instruction.
func Parse(name Source, r io.ByteScanner, mode Mode) (*Prototype, error) {
	p := &parser{
		ls:   lualex.NewScanner(r),
		mode: mode,
	}
	fs := p.openFunction(nil, name)
	p.advance()
	if err := p.chunk(fs); err != nil {
		return nil, err
	}
	if p.curr.Kind != lualex.ErrorToken {
		return nil, p.syntaxError(fs, "<eof> expected")
	}
	if p.err != nil && p.err != io.EOF {
		return nil, p.err
	}
	if err := p.closeFunction(fs); err != nil {
		return nil, err
	}
	return fs.Prototype, nil
}

// parser is the in-progress state of a [Parse] call.
//
// Somewhat equivalent to `LexState` in upstream Lua,
// but actual lexical analysis is split out.
type parser struct {
	ls   *lualex.Scanner
	curr lualex.Token
	err  error
	mode Mode
}

// advance scans the next token.
//
// Equivalent to `next` in upstream Lua.
func (p *parser) advance() {
	if p.err == nil {
		p.curr, p.err = p.ls.Scan()
	} else {
		p.curr = lualex.Token{}
	}
}

// debugInfo reports whether debug information is being recorded.
func (p *parser) debugInfo() bool {
	return p.mode&StripDebug == 0
}

// openFunction creates a new [funcState]
// for a function nested in the given parent
// (nil for the main chunk).
//
// Equivalent to `init_state` in upstream Lua.
func (p *parser) openFunction(prev *funcState, source Source) *funcState {
	return &funcState{
		Prototype: &Prototype{
			Source: source,
		},
		prev:                prev,
		stringConstantIndex: make(map[string]int),
	}
}

// closeFunction finalizes a [funcState] so that its [Prototype] is usable:
// it emits the terminator instruction
// and trims every growable vector to its used length.
//
// Equivalent to `close_func` in upstream Lua.
func (p *parser) closeFunction(fs *funcState) error {
	if _, err := p.code0(fs, OpEndCode, 0); err != nil {
		return err
	}
	fs.Code = slices.Clip(fs.Code)
	fs.StringConstants = slices.Clip(fs.StringConstants)
	fs.NumberConstants = slices.Clip(fs.NumberConstants)
	fs.Functions = slices.Clip(fs.Functions)
	if p.debugInfo() {
		// Sentinel that closes the outermost scope.
		p.unregisterLocalVariable(fs, -1)
		fs.LocalVariables = slices.Clip(fs.LocalVariables)
	}
	return nil
}

// chunk parses a sequence of statements followed by an optional return.
//
//	chunk ::= {stat [';']} [ret]
//
// Equivalent to `chunk` in upstream Lua.
func (p *parser) chunk(fs *funcState) error {
	for {
		parsed, err := p.statement(fs)
		if err != nil {
			return err
		}
		if !parsed {
			break
		}
		if fs.stackDepth != fs.numLocalVariables {
			return fmt.Errorf("internal error: after statement: stack depth (%d) != number of local variables (%d)",
				fs.stackDepth, fs.numLocalVariables)
		}
		p.optional(lualex.SemiToken)
	}
	return p.returnStatement(fs)
}

// block parses a chunk in a fresh local variable scope.
// Locals declared inside the block
// are popped and unregistered at its end.
//
// Equivalent to `block` in upstream Lua.
func (p *parser) block(fs *funcState) error {
	numLocalVariables := fs.numLocalVariables
	if err := p.chunk(fs); err != nil {
		return err
	}
	if err := p.adjustStack(fs, fs.numLocalVariables-numLocalVariables); err != nil {
		return err
	}
	for ; fs.numLocalVariables > numLocalVariables; fs.numLocalVariables-- {
		p.unregisterLocalVariable(fs, fs.lastSetLine)
	}
	return nil
}

// statement parses a single statement.
// It returns false without consuming anything
// when the current token cannot start a statement
// (the follow set of a chunk).
//
// Equivalent to `stat` in upstream Lua.
func (p *parser) statement(fs *funcState) (bool, error) {
	start := p.curr.Position
	switch p.curr.Kind {
	case lualex.IfToken:
		return true, p.ifPart(fs, start)
	case lualex.WhileToken:
		return true, p.whileStatement(fs, start)
	case lualex.DoToken:
		p.advance()
		if err := p.block(fs); err != nil {
			return false, err
		}
		return true, p.checkMatch(fs, start, lualex.DoToken, lualex.EndToken)
	case lualex.RepeatToken:
		return true, p.repeatStatement(fs, start)
	case lualex.FunctionToken:
		if fs.prev != nil {
			return false, p.syntaxError(fs, "cannot use a function statement inside another function")
		}
		return true, p.functionStatement(fs, start)
	case lualex.LocalToken:
		return true, p.localStatement(fs)
	case lualex.IdentifierToken, lualex.UpvalueToken:
		return true, p.nameStatement(fs)
	case lualex.ReturnToken, lualex.SemiToken, lualex.ElseToken, lualex.ElseifToken,
		lualex.EndToken, lualex.UntilToken, lualex.ErrorToken:
		// Follow set of a chunk.
		return false, nil
	default:
		return false, p.syntaxError(fs, "unexpected token")
	}
}

// ifPart parses the remainder of an if or elseif statement.
//
//	ifpart ::= cond 'then' block ['else' block | 'elseif' ifpart] 'end'
//
// Equivalent to `ifpart` in upstream Lua.
func (p *parser) ifPart(fs *funcState, start lualex.Position) error {
	p.advance() // Skip 'if' or 'elseif'.
	if err := p.expression1(fs); err != nil {
		return err
	}
	// Jump over the then-block when the condition is false.
	c, err := p.codeS(fs, OpIfFalseJump, 0, -1)
	if err != nil {
		return err
	}
	if err := p.check(fs, lualex.ThenToken); err != nil {
		return err
	}
	if err := p.block(fs); err != nil {
		return err
	}
	// Jump over the else-part after the then-block.
	je, err := p.codeS(fs, OpJump, 0, 0)
	if err != nil {
		return err
	}
	elseInit := fs.pc()
	if p.curr.Kind == lualex.ElseifToken {
		if err := p.ifPart(fs, start); err != nil {
			return err
		}
	} else {
		if p.optional(lualex.ElseToken) {
			if err := p.block(fs); err != nil {
				return err
			}
		}
		if err := p.checkMatch(fs, start, lualex.IfToken, lualex.EndToken); err != nil {
			return err
		}
	}
	if fs.pc() > elseInit {
		if err := fs.fixJump(je, fs.pc()); err != nil {
			return err
		}
	} else {
		// No else-part; remove the over-jump.
		fs.Code = fs.Code[:len(fs.Code)-1]
		elseInit--
		if fs.pc() != je {
			return errors.New("internal error: if statement jump out of place")
		}
	}
	return fs.fixJump(c, elseInit)
}

// whileStatement parses a while statement.
// The generated code runs the body first and the condition after it,
// entered through an initial jump to the condition.
// To emit that shape in one pass,
// the condition is compiled into a scratch buffer,
// the emit cursor is rewound,
// and the condition is re-emitted after the body.
//
//	whilestat ::= 'while' cond 'do' block 'end'
//
// Equivalent to `whilestat` in upstream Lua.
func (p *parser) whileStatement(fs *funcState, start lualex.Position) error {
	whileInit := fs.pc()
	p.advance() // Skip 'while'.
	if err := p.expression1(fs); err != nil {
		return err
	}
	condSize := fs.pc() - whileInit
	if condSize > maxWhileExpressionSize {
		return p.syntaxError(fs, "while condition too complex")
	}
	buffer := slices.Clone(fs.Code[whileInit:])
	// Go back to the state prior to the condition.
	fs.Code = fs.Code[:whileInit]
	if err := p.deltaStack(fs, -1); err != nil {
		return err
	}
	if _, err := p.codeS(fs, OpJump, 0, 0); err != nil {
		return err
	}
	if err := p.check(fs, lualex.DoToken); err != nil {
		return err
	}
	if err := p.block(fs); err != nil {
		return err
	}
	if err := p.checkMatch(fs, start, lualex.WhileToken, lualex.EndToken); err != nil {
		return err
	}
	if err := fs.fixJump(whileInit, fs.pc()); err != nil {
		return err
	}
	// Copy the condition to its final position and correct the stack.
	for _, i := range buffer {
		p.code(fs, i)
	}
	if err := p.deltaStack(fs, 1); err != nil {
		return err
	}
	pc, err := p.codeS(fs, OpIfTrueJump, 0, -1)
	if err != nil {
		return err
	}
	return fs.fixJump(pc, whileInit+1)
}

// repeatStatement parses a repeat statement.
//
//	repeatstat ::= 'repeat' block 'until' cond
//
// Equivalent to `repeatstat` in upstream Lua.
func (p *parser) repeatStatement(fs *funcState, start lualex.Position) error {
	repeatInit := fs.pc()
	p.advance() // Skip 'repeat'.
	if err := p.block(fs); err != nil {
		return err
	}
	if err := p.checkMatch(fs, start, lualex.RepeatToken, lualex.UntilToken); err != nil {
		return err
	}
	if err := p.expression1(fs); err != nil {
		return err
	}
	pc, err := p.codeS(fs, OpIfFalseJump, 0, -1)
	if err != nil {
		return err
	}
	return fs.fixJump(pc, repeatInit)
}

// localStatement parses a local variable declaration.
// The declared slots are activated only after the initialiser is parsed,
// so the initialiser cannot see the names being declared.
//
//	stat ::= 'local' localnamelist ['=' explist1]
//
// Equivalent to `localstat` in upstream Lua.
func (p *parser) localStatement(fs *funcState) error {
	if err := p.checkDebugLine(fs); err != nil {
		return err
	}
	p.advance() // Skip 'local'.
	numVariables, err := p.localNameList(fs)
	if err != nil {
		return err
	}
	var d listDesc
	if p.optional(lualex.AssignToken) {
		d, err = p.expressionList1(fs)
		if err != nil {
			return err
		}
	}
	p.adjustLocalVariables(fs, numVariables, fs.lastSetLine)
	return p.adjustMultipleAssignment(fs, numVariables, d)
}

// localNameList parses the names of a local declaration
// into reserved (not yet active) slots.
//
//	localnamelist ::= NAME {',' NAME}
//
// Equivalent to `localnamelist` in upstream Lua.
func (p *parser) localNameList(fs *funcState) (int, error) {
	name, err := p.name(fs)
	if err != nil {
		return 0, err
	}
	if err := p.storeLocalVariable(fs, name, 0); err != nil {
		return 0, err
	}
	n := 1
	for p.optional(lualex.CommaToken) {
		name, err := p.name(fs)
		if err != nil {
			return n, err
		}
		if err := p.storeLocalVariable(fs, name, n); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// functionStatement parses a function definition statement.
// It is only permitted at the top level of the main chunk.
//
//	funcstat ::= 'function' funcname body
//
// Equivalent to `funcstat` in upstream Lua.
func (p *parser) functionStatement(fs *funcState, start lualex.Position) error {
	if err := p.checkDebugLine(fs); err != nil {
		return err
	}
	p.advance() // Skip 'function'.
	v, needSelf, err := p.functionName(fs)
	if err != nil {
		return err
	}
	if err := p.body(fs, needSelf, start.Line); err != nil {
		return err
	}
	return p.storeVariable(fs, v)
}

// functionName parses the target of a function definition statement.
// A trailing ':name' requests an implicit first parameter named "self".
//
//	funcname ::= NAME [':' NAME | '.' NAME]
//
// Equivalent to `funcname` in upstream Lua.
func (p *parser) functionName(fs *funcState) (_ expDesc, needSelf bool, err error) {
	name, err := p.name(fs)
	if err != nil {
		return expDesc{}, false, err
	}
	v, err := p.singleVariable(fs, name)
	if err != nil {
		return expDesc{}, false, err
	}
	if p.curr.Kind == lualex.ColonToken || p.curr.Kind == lualex.DotToken {
		needSelf = p.curr.Kind == lualex.ColonToken
		p.advance()
		if v, err = p.closeExpression(fs, v); err != nil {
			return expDesc{}, false, err
		}
		k, err := p.checkName(fs)
		if err != nil {
			return expDesc{}, false, err
		}
		if err := p.codeStringIndex(fs, k); err != nil {
			return expDesc{}, false, err
		}
		v = indexedExpDesc()
	}
	return v, needSelf, nil
}

// nameStatement parses a statement that begins with a variable reference:
// either a call statement or a multiple assignment.
//
// Equivalent to `namestat` in upstream Lua.
func (p *parser) nameStatement(fs *funcState) error {
	if err := p.checkDebugLine(fs); err != nil {
		return err
	}
	v, err := p.variableOrFunction(fs)
	if err != nil {
		return err
	}
	if v.kind == expKindExpression {
		if v.callPC() == 0 {
			// A materialised value (like a bare upvalue) is not a statement.
			return p.syntaxError(fs, "syntax error")
		}
		// Call statement: the call produces no results.
		return p.closeCall(fs, v.callPC(), 0)
	}
	left, err := p.assignment(fs, v, 1)
	if err != nil {
		return err
	}
	// Remove any table/key pairs left under later values.
	return p.adjustStack(fs, left)
}

// assignment parses the rest of a multiple assignment
// after its leading variable reference.
// Stores happen in reverse order;
// for indexed targets whose table and key
// are buried under later values,
// an [OpSetTable] instruction reaches below the top
// and leaves the pair in place to be popped by the caller.
//
//	assignment ::= ',' var assignment | '=' explist1
//
// Equivalent to `assignment` in upstream Lua.
func (p *parser) assignment(fs *funcState, v expDesc, numVariables int) (int, error) {
	if err := p.checkLimit(fs, numVariables, maxAssignmentVariables, "variables in a multiple assignment"); err != nil {
		return 0, err
	}
	left := 0
	if p.optional(lualex.CommaToken) {
		nv, err := p.variableOrFunction(fs)
		if err != nil {
			return 0, err
		}
		if nv.kind == expKindExpression {
			return 0, p.syntaxError(fs, "syntax error")
		}
		left, err = p.assignment(fs, nv, numVariables+1)
		if err != nil {
			return 0, err
		}
	} else {
		if p.curr.Kind != lualex.AssignToken {
			return 0, p.syntaxError(fs, "unexpected token")
		}
		p.advance()
		d, err := p.expressionList1(fs)
		if err != nil {
			return 0, err
		}
		if err := p.adjustMultipleAssignment(fs, numVariables, d); err != nil {
			return 0, err
		}
	}
	if v.kind != expKindIndexed || left+(numVariables-1) == 0 {
		// Local or global variable, or an indexed variable
		// with no values between its pair and the value to store.
		if err := p.storeVariable(fs, v); err != nil {
			return 0, err
		}
	} else {
		if _, err := p.codeU(fs, OpSetTable, left+(numVariables-1), -1); err != nil {
			return 0, err
		}
		// The table and key are not popped; they are not on top.
		left += 2
	}
	return left, nil
}

// returnStatement parses an optional return statement.
// A trailing open call is fixed to produce all of its results.
//
//	ret ::= ['return' explist [';']]
//
// Equivalent to `ret` in upstream Lua.
func (p *parser) returnStatement(fs *funcState) error {
	if p.curr.Kind != lualex.ReturnToken {
		return nil
	}
	if err := p.checkDebugLine(fs); err != nil {
		return err
	}
	p.advance()
	d, err := p.expressionList(fs)
	if err != nil {
		return err
	}
	if err := p.closeCall(fs, d.pc, MultipleReturns); err != nil {
		return err
	}
	if _, err := p.codeU(fs, OpRetCode, fs.numLocalVariables, 0); err != nil {
		return err
	}
	// The stack above the locals is the return area.
	fs.stackDepth = fs.numLocalVariables
	p.optional(lualex.SemiToken)
	return nil
}

// expressionList parses a possibly-empty expression list.
//
// Equivalent to `explist` in upstream Lua.
func (p *parser) expressionList(fs *funcState) (listDesc, error) {
	switch p.curr.Kind {
	case lualex.ElseToken, lualex.ElseifToken, lualex.EndToken, lualex.UntilToken,
		lualex.ErrorToken, lualex.SemiToken, lualex.RParenToken:
		return listDesc{}, nil
	default:
		return p.expressionList1(fs)
	}
}

// expressionList1 parses one or more comma-separated expressions.
// All but the last are materialised;
// the last stays negotiable when it is an open call.
//
// Equivalent to `explist1` in upstream Lua.
func (p *parser) expressionList1(fs *funcState) (listDesc, error) {
	v, err := p.expression(fs)
	if err != nil {
		return listDesc{}, err
	}
	d := listDesc{n: 1}
	for p.curr.Kind == lualex.CommaToken {
		d.n++
		if _, err := p.closeExpression(fs, v); err != nil {
			return listDesc{}, err
		}
		p.advance()
		v, err = p.expression(fs)
		if err != nil {
			return listDesc{}, err
		}
	}
	if v.kind == expKindExpression {
		d.pc = v.callPC()
	} else {
		if _, err := p.closeExpression(fs, v); err != nil {
			return listDesc{}, err
		}
		d.pc = 0
	}
	return d, nil
}

// expression parses an expression,
// handling the short-circuit operators
// one level above the arithmetic engine.
//
//	expr ::= arithexp {('and' | 'or') arithexp}
//
// Equivalent to `expr` in upstream Lua.
func (p *parser) expression(fs *funcState) (expDesc, error) {
	v, err := p.arithExpression(fs)
	if err != nil {
		return expDesc{}, err
	}
	for p.curr.Kind == lualex.AndToken || p.curr.Kind == lualex.OrToken {
		op := OpOnFalseJump
		if p.curr.Kind == lualex.OrToken {
			op = OpOnTrueJump
		}
		if v, err = p.closeExpression(fs, v); err != nil {
			return expDesc{}, err
		}
		p.advance()
		// The popped value is replaced by the right operand on fall-through.
		pc, err := p.codeS(fs, op, 0, -1)
		if err != nil {
			return expDesc{}, err
		}
		v, err = p.arithExpression(fs)
		if err != nil {
			return expDesc{}, err
		}
		if v, err = p.closeExpression(fs, v); err != nil {
			return expDesc{}, err
		}
		if err := fs.fixJump(pc, fs.pc()); err != nil {
			return expDesc{}, err
		}
	}
	return v, nil
}

// arithExpression parses expressions joined by arithmetic,
// comparison, and concatenation operators
// using a classic operator stack with priorities.
// The power operator is right-associative:
// it only pops pending operators of strictly higher priority.
//
// Equivalent to `arith_exp` in upstream Lua.
func (p *parser) arithExpression(fs *funcState) (expDesc, error) {
	var s operatorStack
	v, err := p.unaryExpression(fs, &s)
	if err != nil {
		return expDesc{}, err
	}
	for {
		op := binaryOperatorIndex(p.curr.Kind)
		if op < 0 {
			break
		}
		if v, err = p.closeExpression(fs, v); err != nil {
			return expDesc{}, err
		}
		priority := operatorPriority[op]
		if op == operatorIndexPow {
			priority++
		}
		if err := p.popOperators(fs, &s, priority); err != nil {
			return expDesc{}, err
		}
		if err := p.pushOperator(fs, &s, op); err != nil {
			return expDesc{}, err
		}
		p.advance()
		v, err = p.unaryExpression(fs, &s)
		if err != nil {
			return expDesc{}, err
		}
		if v, err = p.closeExpression(fs, v); err != nil {
			return expDesc{}, err
		}
	}
	if s.top > 0 {
		if v, err = p.closeExpression(fs, v); err != nil {
			return expDesc{}, err
		}
		if err := p.popOperators(fs, &s, 0); err != nil {
			return expDesc{}, err
		}
	}
	return v, nil
}

// unaryExpression parses leading unary operators
// followed by a simple expression.
//
//	unaryexp ::= {'not' | '-'} simpleexp
//
// Equivalent to `prefixexp` in upstream Lua.
func (p *parser) unaryExpression(fs *funcState, s *operatorStack) (expDesc, error) {
	for p.curr.Kind == lualex.NotToken || p.curr.Kind == lualex.SubToken {
		op := operatorIndexMinus
		if p.curr.Kind == lualex.NotToken {
			op = operatorIndexNot
		}
		if err := p.pushOperator(fs, s, op); err != nil {
			return expDesc{}, err
		}
		p.advance()
	}
	return p.simpleExpression(fs)
}

// simpleExpression parses a terminal expression.
//
//	simpleexp ::= NUMBER | STRING | 'nil' | constructor
//		| 'function' body | '(' expr ')' | varorfunc
//
// Equivalent to `simpleexp` in upstream Lua.
func (p *parser) simpleExpression(fs *funcState) (expDesc, error) {
	if err := p.checkDebugLine(fs); err != nil {
		return expDesc{}, err
	}
	switch p.curr.Kind {
	case lualex.NumeralToken:
		f, err := lualex.ParseNumber(p.curr.Value)
		if err != nil {
			return expDesc{}, p.syntaxError(fs, "malformed number")
		}
		p.advance()
		if err := p.codeNumber(fs, f); err != nil {
			return expDesc{}, err
		}
	case lualex.StringToken:
		if err := p.codeString(fs, p.curr.Value); err != nil {
			return expDesc{}, err
		}
		p.advance()
	case lualex.NilToken:
		if err := p.adjustStack(fs, -1); err != nil {
			return expDesc{}, err
		}
		p.advance()
	case lualex.LBraceToken:
		if err := p.constructor(fs); err != nil {
			return expDesc{}, err
		}
	case lualex.FunctionToken:
		line := p.curr.Position.Line
		p.advance()
		if err := p.body(fs, false, line); err != nil {
			return expDesc{}, err
		}
	case lualex.LParenToken:
		p.advance()
		v, err := p.expression(fs)
		if err != nil {
			return expDesc{}, err
		}
		if err := p.check(fs, lualex.RParenToken); err != nil {
			return expDesc{}, err
		}
		return v, nil
	case lualex.IdentifierToken, lualex.UpvalueToken:
		return p.variableOrFunction(fs)
	default:
		return expDesc{}, p.syntaxError(fs, "expression expected")
	}
	return closedExpDesc(), nil
}

// variableOrFunction parses a variable reference or function call.
//
//	varorfunc ::= ['%'] NAME varorfunctail
//
// Equivalent to `var_or_func` in upstream Lua.
func (p *parser) variableOrFunction(fs *funcState) (expDesc, error) {
	var v expDesc
	if p.optional(lualex.UpvalueToken) {
		name, err := p.name(fs)
		if err != nil {
			return expDesc{}, err
		}
		if err := p.pushUpvalue(fs, name); err != nil {
			return expDesc{}, err
		}
		v = closedExpDesc()
	} else {
		name, err := p.name(fs)
		if err != nil {
			return expDesc{}, err
		}
		v, err = p.singleVariable(fs, name)
		if err != nil {
			return expDesc{}, err
		}
	}
	return p.variableOrFunctionSuffix(fs, v)
}

// variableOrFunctionSuffix parses any sequence of
// field selections, index expressions, method calls, and call arguments
// following a variable reference.
//
//	varorfunctail ::= {'.' NAME | '[' exp1 ']' | ':' NAME funcparams | funcparams}
//
// Equivalent to `var_or_func_tail` in upstream Lua.
func (p *parser) variableOrFunctionSuffix(fs *funcState, v expDesc) (expDesc, error) {
	for {
		var err error
		switch p.curr.Kind {
		case lualex.DotToken:
			p.advance()
			if v, err = p.closeExpression(fs, v); err != nil {
				return expDesc{}, err
			}
			k, err := p.checkName(fs)
			if err != nil {
				return expDesc{}, err
			}
			if err := p.codeStringIndex(fs, k); err != nil {
				return expDesc{}, err
			}
			v = indexedExpDesc()
		case lualex.LBracketToken:
			p.advance()
			if v, err = p.closeExpression(fs, v); err != nil {
				return expDesc{}, err
			}
			if err := p.expression1(fs); err != nil {
				return expDesc{}, err
			}
			if err := p.check(fs, lualex.RBracketToken); err != nil {
				return expDesc{}, err
			}
			v = indexedExpDesc()
		case lualex.ColonToken:
			p.advance()
			k, err := p.checkName(fs)
			if err != nil {
				return expDesc{}, err
			}
			if v, err = p.closeExpression(fs, v); err != nil {
				return expDesc{}, err
			}
			if _, err := p.codeU(fs, OpPushSelf, k, 1); err != nil {
				return expDesc{}, err
			}
			pc, err := p.functionArguments(fs, 1)
			if err != nil {
				return expDesc{}, err
			}
			v = openCallExpDesc(pc)
		case lualex.LParenToken, lualex.StringToken, lualex.LBraceToken:
			if v, err = p.closeExpression(fs, v); err != nil {
				return expDesc{}, err
			}
			pc, err := p.functionArguments(fs, 0)
			if err != nil {
				return expDesc{}, err
			}
			v = openCallExpDesc(pc)
		default:
			return v, nil
		}
	}
}

// functionArguments parses the arguments of a call
// and emits the call instruction with an unfixed result count.
// It returns the code index of the call instruction.
//
//	funcparams ::= '(' explist ')' | constructor | STRING
//
// Equivalent to `funcparams` in upstream Lua.
func (p *parser) functionArguments(fs *funcState, self int) (int, error) {
	// Where the function sits in the stack.
	stackLevel := fs.stackDepth - self - 1
	switch p.curr.Kind {
	case lualex.LParenToken:
		start := p.curr.Position
		p.advance()
		d, err := p.expressionList(fs)
		if err != nil {
			return 0, err
		}
		if err := p.checkMatch(fs, start, lualex.LParenToken, lualex.RParenToken); err != nil {
			return 0, err
		}
		// A nested open call passes along all of its results.
		if err := p.closeCall(fs, d.pc, MultipleReturns); err != nil {
			return 0, err
		}
	case lualex.LBraceToken:
		if err := p.constructor(fs); err != nil {
			return 0, err
		}
	case lualex.StringToken:
		if err := p.codeString(fs, p.curr.Value); err != nil {
			return 0, err
		}
		p.advance()
	default:
		return 0, p.syntaxError(fs, "function arguments expected")
	}
	// The call removes the function and its arguments.
	fs.stackDepth = stackLevel
	return p.codeAB(fs, OpCall, stackLevel, 0, 0)
}

// expression1 parses an expression and materialises its value.
//
// Equivalent to `exp1` in upstream Lua.
func (p *parser) expression1(fs *funcState) error {
	v, err := p.expression(fs)
	if err != nil {
		return err
	}
	_, err = p.closeExpression(fs, v)
	return err
}

// body parses a function body and
// materialises the resulting closure in the enclosing function.
//
//	body ::= '(' parlist ')' chunk 'end'
//
// Equivalent to `body` in upstream Lua.
func (p *parser) body(fs *funcState, needSelf bool, line int) error {
	inner := p.openFunction(fs, fs.Source)
	inner.LineDefined = line
	if err := p.check(inner, lualex.LParenToken); err != nil {
		return err
	}
	if needSelf {
		if err := p.addLocalVariable(inner, "self"); err != nil {
			return err
		}
	}
	if err := p.parameterList(inner); err != nil {
		return err
	}
	if err := p.check(inner, lualex.RParenToken); err != nil {
		return err
	}
	if err := p.chunk(inner); err != nil {
		return err
	}
	if err := p.checkMatch(inner, lualex.Position{Line: line}, lualex.FunctionToken, lualex.EndToken); err != nil {
		return err
	}
	if err := p.closeFunction(inner); err != nil {
		return err
	}
	return p.closureOnStack(fs, inner)
}

// parameterList parses a function's parameters.
// A trailing '...' marks the function variadic
// and declares an implicit local named "arg".
//
//	parlist ::= [NAME {',' NAME} [',' '...'] | '...']
//
// Equivalent to `parlist` in upstream Lua.
func (p *parser) parameterList(fs *funcState) error {
	numParams := 0
	dots := false
	switch p.curr.Kind {
	case lualex.DotsToken:
		p.advance()
		dots = true
	case lualex.IdentifierToken:
		for {
			name, err := p.name(fs)
			if err != nil {
				return err
			}
			if err := p.storeLocalVariable(fs, name, numParams); err != nil {
				return err
			}
			numParams++
			if !p.optional(lualex.CommaToken) {
				break
			}
			if p.curr.Kind == lualex.DotsToken {
				p.advance()
				dots = true
				break
			}
			if p.curr.Kind != lualex.IdentifierToken {
				return p.syntaxError(fs, "name or '...' expected")
			}
		}
	case lualex.RParenToken:
		// Empty parameter list.
	default:
		return p.syntaxError(fs, "name or '...' expected")
	}
	return p.codeParameters(fs, numParams, dots)
}

// codeParameters activates a function's parameters
// and records the parameter count and varargs flag in the prototype.
//
// Equivalent to `code_args` in upstream Lua.
func (p *parser) codeParameters(fs *funcState, numParams int, dots bool) error {
	p.adjustLocalVariables(fs, numParams, 0)
	if err := p.checkLimit(fs, fs.numLocalVariables, maxParams, "parameters"); err != nil {
		return err
	}
	// "self" may already be there.
	numParams = fs.numLocalVariables
	fs.NumParams = uint8(numParams)
	fs.IsVararg = dots
	if !dots {
		return p.deltaStack(fs, numParams)
	}
	if err := p.deltaStack(fs, numParams+1); err != nil {
		return err
	}
	return p.addLocalVariable(fs, "arg")
}

// constructor parses a table constructor:
// up to two parts separated by ';',
// which must be of different kinds (list vs. record).
// The size hint of the [OpCreateTable] instruction
// is back-patched with the total element count.
//
//	constructor ::= '{' part [';' part] '}'
//
// Equivalent to `constructor` in upstream Lua.
func (p *parser) constructor(fs *funcState) error {
	start := p.curr.Position
	pc, err := p.codeU(fs, OpCreateTable, 0, 1)
	if err != nil {
		return err
	}
	if err := p.check(fs, lualex.LBraceToken); err != nil {
		return err
	}
	cd, err := p.constructorPart(fs)
	if err != nil {
		return err
	}
	numElements := cd.n
	if p.optional(lualex.SemiToken) {
		other, err := p.constructorPart(fs)
		if err != nil {
			return err
		}
		if cd.kind == other.kind && cd.kind != constructorKindEmpty {
			return p.syntaxError(fs, "invalid constructor syntax")
		}
		numElements += other.n
	}
	if err := p.checkMatch(fs, start, lualex.LBraceToken, lualex.RBraceToken); err != nil {
		return err
	}
	// Set the initial table size.
	i, ok := fs.Code[pc].WithArgU(uint32(numElements))
	if !ok {
		return p.syntaxError(fs, "table constructor too large")
	}
	fs.Code[pc] = i
	return nil
}

// constructorPart parses one half of a table constructor,
// inferring its kind from the first item.
//
// Equivalent to `constructor_part` in upstream Lua.
func (p *parser) constructorPart(fs *funcState) (constructorDesc, error) {
	switch p.curr.Kind {
	case lualex.SemiToken, lualex.RBraceToken:
		return constructorDesc{kind: constructorKindEmpty}, nil
	case lualex.IdentifierToken:
		v, err := p.expression(fs)
		if err != nil {
			return constructorDesc{}, err
		}
		if p.curr.Kind == lualex.AssignToken {
			k, err := p.variableName(fs, v)
			if err != nil {
				return constructorDesc{}, err
			}
			if err := p.codeStringIndex(fs, k); err != nil {
				return constructorDesc{}, err
			}
			p.advance() // Skip '='.
			if err := p.expression1(fs); err != nil {
				return constructorDesc{}, err
			}
			n, err := p.recordFields(fs)
			if err != nil {
				return constructorDesc{}, err
			}
			return constructorDesc{n: n, kind: constructorKindRecord}, nil
		}
		if _, err := p.closeExpression(fs, v); err != nil {
			return constructorDesc{}, err
		}
		n, err := p.listFields(fs)
		if err != nil {
			return constructorDesc{}, err
		}
		return constructorDesc{n: n, kind: constructorKindList}, nil
	case lualex.LBracketToken:
		if err := p.recordField(fs); err != nil {
			return constructorDesc{}, err
		}
		n, err := p.recordFields(fs)
		if err != nil {
			return constructorDesc{}, err
		}
		return constructorDesc{n: n, kind: constructorKindRecord}, nil
	default:
		if err := p.expression1(fs); err != nil {
			return constructorDesc{}, err
		}
		n, err := p.listFields(fs)
		if err != nil {
			return constructorDesc{}, err
		}
		return constructorDesc{n: n, kind: constructorKindList}, nil
	}
}

// recordField parses a single key-value entry of a record half.
//
//	recfield ::= (NAME | '[' exp1 ']') '=' exp1
//
// Equivalent to `recfield` in upstream Lua.
func (p *parser) recordField(fs *funcState) error {
	switch p.curr.Kind {
	case lualex.IdentifierToken:
		k, err := p.checkName(fs)
		if err != nil {
			return err
		}
		if err := p.codeStringIndex(fs, k); err != nil {
			return err
		}
	case lualex.LBracketToken:
		p.advance()
		if err := p.expression1(fs); err != nil {
			return err
		}
		if err := p.check(fs, lualex.RBracketToken); err != nil {
			return err
		}
	default:
		return p.syntaxError(fs, "name or '[' expected")
	}
	if err := p.check(fs, lualex.AssignToken); err != nil {
		return err
	}
	return p.expression1(fs)
}

// recordFields parses the remaining entries of a record half,
// flushing key-value pairs into the table
// with an [OpSetMap] instruction every [recordFieldsPerFlush] entries.
//
//	recfields ::= {',' recfield} [',']
//
// Equivalent to `recfields` in upstream Lua.
func (p *parser) recordFields(fs *funcState) (int, error) {
	// One entry has been read before.
	n, modN := 1, 1
	for p.curr.Kind == lualex.CommaToken {
		p.advance()
		if p.curr.Kind == lualex.SemiToken || p.curr.Kind == lualex.RBraceToken {
			break
		}
		if err := p.recordField(fs); err != nil {
			return n, err
		}
		n++
		modN++
		if modN == recordFieldsPerFlush {
			if _, err := p.codeU(fs, OpSetMap, recordFieldsPerFlush-1, -2*recordFieldsPerFlush); err != nil {
				return n, err
			}
			modN = 0
		}
	}
	if modN > 0 {
		if _, err := p.codeU(fs, OpSetMap, modN-1, -2*modN); err != nil {
			return n, err
		}
	}
	return n, nil
}

// listFields parses the remaining values of a list half,
// flushing values into the table
// with an [OpSetList] instruction every [listFieldsPerFlush] values.
//
//	listfields ::= {',' exp1} [',']
//
// Equivalent to `listfields` in upstream Lua.
func (p *parser) listFields(fs *funcState) (int, error) {
	// One value has been read before.
	n, modN := 1, 1
	for p.curr.Kind == lualex.CommaToken {
		p.advance()
		if p.curr.Kind == lualex.SemiToken || p.curr.Kind == lualex.RBraceToken {
			break
		}
		if err := p.expression1(fs); err != nil {
			return n, err
		}
		n++
		if err := p.checkLimit(fs, n, MaxArgA*listFieldsPerFlush, "items in a list initializer"); err != nil {
			return n, err
		}
		modN++
		if modN == listFieldsPerFlush {
			if _, err := p.codeAB(fs, OpSetList, n/listFieldsPerFlush-1, listFieldsPerFlush-1, -listFieldsPerFlush); err != nil {
				return n, err
			}
			modN = 0
		}
	}
	if modN > 0 {
		if _, err := p.codeAB(fs, OpSetList, n/listFieldsPerFlush, modN-1, -modN); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Table constructor flush batch sizes.
//
// Equivalent to `LFIELDS_PER_FLUSH` and `RFIELDS_PER_FLUSH` in upstream Lua.
const (
	listFieldsPerFlush   = 64
	recordFieldsPerFlush = 32
)

// name verifies that the current token is an identifier,
// advances past it,
// and returns the identifier value.
//
// Equivalent to `str_checkname` in upstream Lua.
func (p *parser) name(fs *funcState) (string, error) {
	if p.curr.Kind != lualex.IdentifierToken {
		return "", p.syntaxError(fs, "name expected")
	}
	v := p.curr.Value
	p.advance()
	return v, nil
}

// checkName parses an identifier
// and returns its string constant index.
//
// Equivalent to `checkname` in upstream Lua.
func (p *parser) checkName(fs *funcState) (int, error) {
	name, err := p.name(fs)
	if err != nil {
		return 0, err
	}
	return p.stringConstant(fs, name)
}

// check verifies that the current token is of the given kind
// and advances past it.
//
// Equivalent to `check` in upstream Lua.
func (p *parser) check(fs *funcState, kind lualex.TokenKind) error {
	if p.curr.Kind != kind {
		return p.syntaxError(fs, fmt.Sprintf("'%v' expected", kind))
	}
	p.advance()
	return nil
}

// optional advances past the current token if it is of the given kind,
// reporting whether it did.
//
// Equivalent to `optional` in upstream Lua.
func (p *parser) optional(kind lualex.TokenKind) bool {
	if p.curr.Kind != kind {
		return false
	}
	p.advance()
	return true
}

// checkMatch verifies that the current token is the closing token
// and advances past it.
// The error message names the opening token and its line
// when the opener is on a different line.
//
// Equivalent to `check_match` in upstream Lua.
func (p *parser) checkMatch(fs *funcState, start lualex.Position, open, close lualex.TokenKind) error {
	if p.curr.Kind != close {
		if p.curr.Position.Line == start.Line {
			return p.syntaxError(fs, fmt.Sprintf("'%v' expected", close))
		}
		return p.syntaxError(fs, fmt.Sprintf("'%v' expected (to close '%v' at line %d)", close, open, start.Line))
	}
	// Mark the closing token.
	if err := p.checkDebugLine(fs); err != nil {
		return err
	}
	p.advance()
	return nil
}

// checkLimit fails with a limit error when val exceeds limit.
//
// Equivalent to `checklimit` in upstream Lua.
func (p *parser) checkLimit(fs *funcState, val, limit int, what string) error {
	if val > limit {
		return p.syntaxError(fs, fmt.Sprintf("too many %s (limit=%d)", what, limit))
	}
	return nil
}

// syntaxError creates an error at the current token,
// preferring a pending scanner error when one exists.
func (p *parser) syntaxError(fs *funcState, msg string) error {
	if p.err != nil && p.err != io.EOF {
		return p.err
	}
	return syntaxError(fs.Source, p.curr, msg)
}

// syntaxError creates an error with the given parser context.
//
// Equivalent to `luaY_error`/`luaX_error` in upstream Lua.
func syntaxError(source Source, token lualex.Token, msg string) error {
	sb := new(strings.Builder)
	if source == "" {
		sb.WriteString("?")
	} else {
		sb.WriteString(source.String())
	}
	if token.Position.IsValid() {
		sb.WriteString(":")
		sb.WriteString(token.Position.String())
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if token.Kind != lualex.ErrorToken {
		sb.WriteString(" near ")
		sb.WriteString(token.String())
	}
	return errors.New(sb.String())
}
