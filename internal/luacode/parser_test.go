// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func mustParse(tb testing.TB, source string, mode Mode) *Prototype {
	tb.Helper()
	proto, err := Parse("", strings.NewReader(source), mode)
	if err != nil {
		tb.Fatalf("Parse(%q): %v", source, err)
	}
	return proto
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   *Prototype
	}{
		{
			name:   "ArithmeticPrecedence",
			source: "return 1 + 2 * 3",
			want: &Prototype{
				MaxStackSize: 3,
				Code: []Instruction{
					SInstruction(OpPushInt, 1),
					SInstruction(OpPushInt, 2),
					SInstruction(OpPushInt, 3),
					OpInstruction(OpMul),
					OpInstruction(OpAdd),
					UInstruction(OpRetCode, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "MultipleAssignmentSurplus",
			source: "local a, b = 1, 2, 3 return a + b",
			want: &Prototype{
				MaxStackSize: 4,
				Code: []Instruction{
					SInstruction(OpPushInt, 1),
					SInstruction(OpPushInt, 2),
					SInstruction(OpPushInt, 3),
					UInstruction(OpPop, 1),
					UInstruction(OpPushLocal, 0),
					UInstruction(OpPushLocal, 1),
					OpInstruction(OpAdd),
					UInstruction(OpRetCode, 2),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "MultipleAssignmentMissing",
			source: "local a, b, c = 1 return b",
			want: &Prototype{
				MaxStackSize: 4,
				Code: []Instruction{
					SInstruction(OpPushInt, 1),
					UInstruction(OpPushNil, 1),
					UInstruction(OpPushLocal, 1),
					UInstruction(OpRetCode, 3),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "MixedConstructor",
			source: "local t = {10, 20, 30; x = 1} return t[2] + t.x",
			want: &Prototype{
				MaxStackSize:    4,
				StringConstants: []string{"x"},
				Code: []Instruction{
					UInstruction(OpCreateTable, 4),
					SInstruction(OpPushInt, 10),
					SInstruction(OpPushInt, 20),
					SInstruction(OpPushInt, 30),
					ABInstruction(OpSetList, 0, 2),
					UInstruction(OpPushString, 0),
					SInstruction(OpPushInt, 1),
					UInstruction(OpSetMap, 0),
					UInstruction(OpPushLocal, 0),
					SInstruction(OpPushInt, 2),
					OpInstruction(OpGetTable),
					UInstruction(OpPushLocal, 0),
					UInstruction(OpPushString, 0),
					OpInstruction(OpGetTable),
					OpInstruction(OpAdd),
					UInstruction(OpRetCode, 1),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name: "WhileConditionReemission",
			source: "local s = \"\"\n" +
				"local i = 1\n" +
				"while i <= 3 do s = s .. i; i = i + 1 end\n" +
				"return s",
			want: &Prototype{
				MaxStackSize:    4,
				StringConstants: []string{""},
				Code: []Instruction{
					UInstruction(OpPushString, 0),
					SInstruction(OpPushInt, 1),
					SInstruction(OpJump, 8),
					UInstruction(OpPushLocal, 0),
					UInstruction(OpPushLocal, 1),
					OpInstruction(OpConcat),
					UInstruction(OpSetLocal, 0),
					UInstruction(OpPushLocal, 1),
					SInstruction(OpPushInt, 1),
					OpInstruction(OpAdd),
					UInstruction(OpSetLocal, 1),
					UInstruction(OpPushLocal, 1),
					SInstruction(OpPushInt, 3),
					OpInstruction(OpLessEqual),
					SInstruction(OpIfTrueJump, -12),
					UInstruction(OpPushLocal, 0),
					UInstruction(OpRetCode, 2),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "UpvalueClosure",
			source: "function f(x) return function(y) return %x + y end end return f(10)(32)",
			want: &Prototype{
				MaxStackSize:    2,
				StringConstants: []string{"f"},
				Functions: []*Prototype{
					{
						NumParams:    1,
						MaxStackSize: 3,
						LineDefined:  1,
						Functions: []*Prototype{
							{
								NumParams:    1,
								MaxStackSize: 3,
								LineDefined:  1,
								Code: []Instruction{
									UInstruction(OpPushUpvalue, 0),
									UInstruction(OpPushLocal, 0),
									OpInstruction(OpAdd),
									UInstruction(OpRetCode, 1),
									OpInstruction(OpEndCode),
								},
							},
						},
						Code: []Instruction{
							UInstruction(OpPushLocal, 0),
							ABInstruction(OpClosure, 0, 1),
							UInstruction(OpRetCode, 1),
							OpInstruction(OpEndCode),
						},
					},
				},
				Code: []Instruction{
					ABInstruction(OpClosure, 0, 0),
					UInstruction(OpSetGlobal, 0),
					UInstruction(OpGetGlobal, 0),
					SInstruction(OpPushInt, 10),
					ABInstruction(OpCall, 0, 1),
					SInstruction(OpPushInt, 32),
					ABInstruction(OpCall, 0, MultipleReturns),
					UInstruction(OpRetCode, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "CallStatement",
			source: "f()",
			want: &Prototype{
				MaxStackSize:    1,
				StringConstants: []string{"f"},
				Code: []Instruction{
					UInstruction(OpGetGlobal, 0),
					ABInstruction(OpCall, 0, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "CallResultNegotiation",
			source: "local a, b, c = f()",
			want: &Prototype{
				MaxStackSize:    3,
				StringConstants: []string{"f"},
				Code: []Instruction{
					UInstruction(OpGetGlobal, 0),
					ABInstruction(OpCall, 0, 3),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "CallSurplusValues",
			source: "local a = f(), g()",
			want: &Prototype{
				MaxStackSize:    2,
				StringConstants: []string{"f", "g"},
				Code: []Instruction{
					UInstruction(OpGetGlobal, 0),
					ABInstruction(OpCall, 0, 1),
					UInstruction(OpGetGlobal, 1),
					ABInstruction(OpCall, 1, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "IfWithoutElse",
			source: "local a if a then a = 1 end",
			want: &Prototype{
				MaxStackSize: 2,
				Code: []Instruction{
					UInstruction(OpPushNil, 0),
					UInstruction(OpPushLocal, 0),
					SInstruction(OpIfFalseJump, 2),
					SInstruction(OpPushInt, 1),
					UInstruction(OpSetLocal, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "IfWithElse",
			source: "local a if a then a = 1 else a = 2 end",
			want: &Prototype{
				MaxStackSize: 2,
				Code: []Instruction{
					UInstruction(OpPushNil, 0),
					UInstruction(OpPushLocal, 0),
					SInstruction(OpIfFalseJump, 3),
					SInstruction(OpPushInt, 1),
					UInstruction(OpSetLocal, 0),
					SInstruction(OpJump, 2),
					SInstruction(OpPushInt, 2),
					UInstruction(OpSetLocal, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "RepeatUntil",
			source: "local i = 0 repeat i = i + 1 until i",
			want: &Prototype{
				MaxStackSize: 3,
				Code: []Instruction{
					SInstruction(OpPushInt, 0),
					UInstruction(OpPushLocal, 0),
					SInstruction(OpPushInt, 1),
					OpInstruction(OpAdd),
					UInstruction(OpSetLocal, 0),
					UInstruction(OpPushLocal, 0),
					SInstruction(OpIfFalseJump, -6),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "ShortCircuitAnd",
			source: "return a and b",
			want: &Prototype{
				MaxStackSize:    1,
				StringConstants: []string{"a", "b"},
				Code: []Instruction{
					UInstruction(OpGetGlobal, 0),
					SInstruction(OpOnFalseJump, 1),
					UInstruction(OpGetGlobal, 1),
					UInstruction(OpRetCode, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "PowerRightAssociative",
			source: "return 2 ^ 3 ^ 2",
			want: &Prototype{
				MaxStackSize: 3,
				Code: []Instruction{
					SInstruction(OpPushInt, 2),
					SInstruction(OpPushInt, 3),
					SInstruction(OpPushInt, 2),
					OpInstruction(OpPow),
					OpInstruction(OpPow),
					UInstruction(OpRetCode, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "MethodCall",
			source: "t:m(1)",
			want: &Prototype{
				MaxStackSize:    3,
				StringConstants: []string{"t", "m"},
				Code: []Instruction{
					UInstruction(OpGetGlobal, 0),
					UInstruction(OpPushSelf, 1),
					SInstruction(OpPushInt, 1),
					ABInstruction(OpCall, 0, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "IndexedMultipleAssignment",
			source: "t[1], t[2] = 3, 4",
			want: &Prototype{
				MaxStackSize:    6,
				StringConstants: []string{"t"},
				Code: []Instruction{
					UInstruction(OpGetGlobal, 0),
					SInstruction(OpPushInt, 1),
					UInstruction(OpGetGlobal, 0),
					SInstruction(OpPushInt, 2),
					SInstruction(OpPushInt, 3),
					SInstruction(OpPushInt, 4),
					UInstruction(OpSetTable, 1),
					UInstruction(OpSetTable, 2),
					UInstruction(OpPop, 4),
					OpInstruction(OpEndCode),
				},
			},
		},
		{
			name:   "VarargFunction",
			source: "function f(...) return arg end",
			want: &Prototype{
				MaxStackSize:    1,
				StringConstants: []string{"f"},
				Functions: []*Prototype{
					{
						NumParams:    0,
						IsVararg:     true,
						MaxStackSize: 2,
						LineDefined:  1,
						Code: []Instruction{
							UInstruction(OpPushLocal, 0),
							UInstruction(OpRetCode, 1),
							OpInstruction(OpEndCode),
						},
					},
				},
				Code: []Instruction{
					ABInstruction(OpClosure, 0, 0),
					UInstruction(OpSetGlobal, 0),
					OpInstruction(OpEndCode),
				},
			},
		},
	}

	diffOptions := cmp.Options{
		cmpopts.EquateEmpty(),
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := mustParse(t, test.source, StripDebug)
			if diff := cmp.Diff(test.want, got, diffOptions); diff != "" {
				t.Errorf("Parse(%q) (-want +got):\n%s", test.source, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{
			name:    "OuterScopeAccess",
			source:  "f = function() local x return function() return x end end",
			wantMsg: "cannot access a variable in outer scope",
		},
		{
			name:    "UpvalueInMain",
			source:  "return %x",
			wantMsg: "cannot access upvalue in main",
		},
		{
			name:    "UpvalueShadowedByLocal",
			source:  "f = function() local x return %x end",
			wantMsg: "cannot access an upvalue in current scope",
		},
		{
			name:    "RepeatedConstructorParts",
			source:  "t = {1, 2; 3, 4}",
			wantMsg: "invalid constructor syntax",
		},
		{
			name:    "RepeatedRecordParts",
			source:  "t = {x = 1; y = 2}",
			wantMsg: "invalid constructor syntax",
		},
		{
			name:    "MissingExpression",
			source:  "return 1 +",
			wantMsg: "expression expected",
		},
		{
			name:    "UnmatchedIf",
			source:  "if x then return 1",
			wantMsg: "'end' expected",
		},
		{
			name:    "DanglingEnd",
			source:  "do end end",
			wantMsg: "<eof> expected",
		},
		{
			name:    "NestedFunctionStatement",
			source:  "f = function() function g() end end",
			wantMsg: "cannot use a function statement inside another function",
		},
		{
			name:    "StoreIntoCall",
			source:  "a, f() = 1, 2",
			wantMsg: "syntax error",
		},
		{
			name:    "ExpressionTooComplex",
			source:  "return " + strings.Repeat("not ", maxOperators+1) + "1",
			wantMsg: "expression too complex",
		},
		{
			name:    "TooManyLocals",
			source:  localDeclarations(maxLocals + 1),
			wantMsg: "too many local variables",
		},
		{
			name:    "WhileConditionTooComplex",
			source:  "while " + strings.Repeat("1+", maxWhileExpressionSize) + "1 do end",
			wantMsg: "while condition too complex",
		},
		{
			name:    "MalformedNumber",
			source:  "return 3x",
			wantMsg: "unexpected",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			proto, err := Parse("", strings.NewReader(test.source), 0)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded (%d instructions); want error containing %q",
					test.source, len(proto.Code), test.wantMsg)
			}
			if !strings.Contains(err.Error(), test.wantMsg) {
				t.Errorf("Parse(%q) error = %v; want message containing %q", test.source, err, test.wantMsg)
			}
		})
	}
}

func localDeclarations(n int) string {
	sb := new(strings.Builder)
	for i := range n {
		fmt.Fprintf(sb, "local x%d\n", i)
	}
	return sb.String()
}

func TestStringConstantsDeduplicated(t *testing.T) {
	proto := mustParse(t, "x = x x = x return x", StripDebug)
	if want := []string{"x"}; !cmp.Equal(want, proto.StringConstants) {
		t.Errorf("StringConstants = %q; want %q", proto.StringConstants, want)
	}
}

func TestDebugInfo(t *testing.T) {
	const source = "local a = 1\n" +
		"do\n" +
		"\tlocal b = 2\n" +
		"\ta = b\n" +
		"end\n" +
		"return a\n"
	proto := mustParse(t, source, 0)

	if len(proto.Code) == 0 || proto.Code[0].OpCode() != OpSetLine {
		t.Errorf("Code[0] = %v; want a %v instruction", proto.Code[0], OpSetLine)
	}

	want := []LocalVariable{
		{Name: "a", Line: 1},
		{Name: "b", Line: 3},
		{Name: "", Line: 4},
		{Name: "", Line: -1},
	}
	if diff := cmp.Diff(want, proto.LocalVariables); diff != "" {
		t.Errorf("LocalVariables (-want +got):\n%s", diff)
	}

	if got := proto.LocalName(0, 3); got != "a" {
		t.Errorf("LocalName(0, 3) = %q; want %q", got, "a")
	}
	if got := proto.LocalName(1, 3); got != "b" {
		t.Errorf("LocalName(1, 3) = %q; want %q", got, "b")
	}
	if got := proto.LocalName(1, 5); got != "" {
		t.Errorf("LocalName(1, 5) = %q; want %q", got, "")
	}
}

func TestStripDebugOmitsLineMarks(t *testing.T) {
	proto := mustParse(t, "local a = 1\nreturn a\n", StripDebug)
	for pc, i := range proto.Code {
		if i.OpCode() == OpSetLine {
			t.Errorf("Code[%d] = %v; want no %v instructions", pc, i, OpSetLine)
		}
	}
	if proto.LocalVariables != nil {
		t.Errorf("LocalVariables = %v; want nil", proto.LocalVariables)
	}
}

// simulationCorpus is a set of valid programs
// used for checking bytecode invariants.
var simulationCorpus = []string{
	"return 1 + 2 * 3",
	"local a, b = 1, 2, 3 return a + b",
	"local a, b, c = 1 return b",
	"local t = {10, 20, 30; x = 1} return t[2] + t.x",
	"local s = \"\" local i = 1 while i <= 3 do s = s .. i; i = i + 1 end return s",
	"function f(x) return function(y) return %x + y end end return f(10)(32)",
	"local a if a then a = 1 elseif 2 > 1 then a = 2 else a = 3 end return a",
	"local i = 0 repeat i = i + 1 until i >= 10 return i",
	"t = {} t.x = 1 t[1] = 2 t[1], t.y = t.x, t[1]",
	"local x = nil return x or 1, x and 2",
	"function obj.method(a) return a end",
	"function obj:method(a) return self, a end",
	"return -2 ^ 2, not nil",
	"do local a = 1 do local b = a end end",
	"x = (1 + 2) * (3 - 4) / 5 .. 'suffix'",
}

// TestStackSimulation executes the emitted bytecode symbolically
// and checks that the depth stays within the declared maximum
// and that every jump lands inside the function.
func TestStackSimulation(t *testing.T) {
	for _, source := range simulationCorpus {
		proto := mustParse(t, source, 0)
		var check func(f *Prototype)
		check = func(f *Prototype) {
			simulateStack(t, source, f)
			for _, inner := range f.Functions {
				check(inner)
			}
		}
		check(proto)
	}
}

// simulateStack walks a function's code from its entry point,
// tracking the operand stack depth along every path.
func simulateStack(t *testing.T, source string, f *Prototype) {
	t.Helper()
	depths := make(map[int]int)
	entry := int(f.NumParams)
	if f.IsVararg {
		entry++ // implicit "arg"
	}
	type state struct{ pc, depth int }
	queue := []state{{0, entry}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if s.pc < 0 || s.pc >= len(f.Code) {
			t.Errorf("source %q: jump target %d outside [0, %d)", source, s.pc, len(f.Code))
			continue
		}
		if prev, seen := depths[s.pc]; seen {
			if prev != s.depth {
				t.Errorf("source %q: pc %d reached with depths %d and %d", source, s.pc, prev, s.depth)
			}
			continue
		}
		depths[s.pc] = s.depth
		if s.depth < 0 || s.depth > f.MaxStackSize {
			t.Errorf("source %q: pc %d: depth %d outside [0, %d]", source, s.pc, s.depth, f.MaxStackSize)
		}

		i := f.Code[s.pc]
		switch op := i.OpCode(); op {
		case OpEndCode:
			// Terminal.
		case OpRetCode:
			// Terminal; the stack above locals is the return area.
		case OpJump:
			queue = append(queue, state{s.pc + 1 + int(i.ArgS()), s.depth})
		case OpIfTrueJump, OpIfFalseJump:
			queue = append(queue, state{s.pc + 1 + int(i.ArgS()), s.depth - 1})
			queue = append(queue, state{s.pc + 1, s.depth - 1})
		case OpOnTrueJump, OpOnFalseJump:
			// The value is kept when jumping and popped on fall-through.
			queue = append(queue, state{s.pc + 1 + int(i.ArgS()), s.depth})
			queue = append(queue, state{s.pc + 1, s.depth - 1})
		case OpCall:
			b := int(i.ArgB())
			if b == MultipleReturns {
				// The result count is dynamic; stop this path.
				continue
			}
			queue = append(queue, state{s.pc + 1, int(i.ArgA()) + b})
		default:
			queue = append(queue, state{s.pc + 1, s.depth + instructionStackDelta(i)})
		}
	}
}

// instructionStackDelta returns the static stack effect
// of a non-branching instruction.
func instructionStackDelta(i Instruction) int {
	switch op := i.OpCode(); op {
	case OpPushNil:
		return int(i.ArgU()) + 1
	case OpPop:
		return -int(i.ArgU())
	case OpPushInt, OpPushNum, OpPushString, OpPushLocal, OpPushUpvalue,
		OpGetGlobal, OpPushSelf, OpCreateTable:
		return 1
	case OpGetTable, OpSetLocal, OpSetGlobal, OpSetTable:
		return -1
	case OpSetTablePop:
		return -3
	case OpSetList:
		return -(int(i.ArgB()) + 1)
	case OpSetMap:
		return -2 * (int(i.ArgU()) + 1)
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpLessEqual, OpGreaterEqual,
		OpAdd, OpSub, OpMul, OpDiv, OpPow, OpConcat:
		return -1
	case OpMinus, OpNot, OpSetLine:
		return 0
	case OpClosure:
		return 1 - int(i.ArgB())
	default:
		return 0
	}
}
