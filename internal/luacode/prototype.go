// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"strings"
)

// Prototype represents a parsed function.
type Prototype struct {
	// NumParams is the number of fixed (named) parameters.
	NumParams uint8
	IsVararg  bool
	// MaxStackSize is the number of operand stack slots
	// needed by this function.
	MaxStackSize int

	// Code is the instruction stream,
	// terminated by an [OpEndCode] instruction.
	Code []Instruction
	// StringConstants is the string constant pool,
	// indexed by the unsigned operand of [OpPushString],
	// [OpGetGlobal], [OpSetGlobal], and [OpPushSelf].
	StringConstants []string
	// NumberConstants is the number constant pool,
	// indexed by the unsigned operand of [OpPushNum].
	NumberConstants []float64
	// Functions is the list of nested prototypes,
	// indexed by the upper operand of [OpClosure].
	Functions []*Prototype

	// Debug information:

	Source Source
	// LineDefined is the line of the "function" keyword that started
	// the function, or zero for a main chunk.
	LineDefined int
	// LocalVariables records local variable declarations
	// in declaration order.
	// An entry with an empty Name closes the scope
	// of the most recently opened named entry.
	// LocalVariables is nil when debug information is stripped.
	LocalVariables []LocalVariable
}

// IsMainChunk reports whether the prototype represents a parsed source file
// (as opposed to a function inside a file).
func (f *Prototype) IsMainChunk() bool {
	return f.LineDefined == 0
}

// LocalName returns the name of the given local variable slot
// as of the given source line,
// or the empty string if the slot does not name a local variable there
// (or the debug information has been stripped).
func (f *Prototype) LocalName(slot int, line int) string {
	active := make([]string, 0, len(f.LocalVariables))
	for _, v := range f.LocalVariables {
		if v.Line > line || v.Name == "" && v.Line < 0 {
			break
		}
		if v.Name != "" {
			active = append(active, v.Name)
		} else if len(active) > 0 {
			active = active[:len(active)-1]
		}
	}
	if slot < 0 || slot >= len(active) {
		return ""
	}
	return active[slot]
}

// StripDebugInfo returns a copy of a [Prototype]
// with the debug information removed.
func (f *Prototype) StripDebugInfo() *Prototype {
	f2 := new(Prototype)
	*f2 = *f
	f2.Source = ""
	f2.LocalVariables = nil

	if len(f.Functions) > 0 {
		f2.Functions = make([]*Prototype, len(f.Functions))
		for i, p := range f.Functions {
			f2.Functions[i] = p.StripDebugInfo()
		}
	}

	return f2
}

// LocalVariable is a declaration or scope-exit record
// in a [Prototype]'s debug information.
type LocalVariable struct {
	// Name is the declared name,
	// or the empty string for a scope-exit record.
	Name string
	// Line is the source line of the declaration or scope exit.
	Line int
}

// Source is a description of a chunk that created a [Prototype].
// The zero value describes an empty literal string.
type Source string

// UnknownSource is a placeholder for an unknown [Source].
const UnknownSource Source = "=?"

// FilenameSource returns a [Source] for a filesystem path.
// The path can be retrieved later using [Source.Filename].
//
// The underlying string in a filename source starts with "@".
func FilenameSource(path string) Source {
	return Source("@" + path)
}

// AbstractSource returns a [Source] from a user-dependent description.
// The description can be retrieved later using [Source.Abstract].
//
// The underlying string in an abstract source starts with "=".
func AbstractSource(description string) Source {
	return Source("=" + description)
}

// LiteralSource returns a [Source] for the given literal string.
// Because the type for a [Source] is determined by the first byte,
// if s starts with one of those symbols
// (which cannot occur in a syntactically valid Lua source file),
// then LiteralSource returns an [AbstractSource]
// with a condensed version of the string.
func LiteralSource(s string) Source {
	source := Source(s)
	if _, ok := source.Literal(); !ok {
		return AbstractSource(describeLiteralSource(s))
	}
	return source
}

// Filename returns the file name of the chunk
// provided to [FilenameSource].
func (source Source) Filename() (_ string, isFilename bool) {
	if !strings.HasPrefix(string(source), "@") {
		return "", false
	}
	return string(source[1:]), true
}

// Abstract returns the user-dependent description of the source
// provided to [AbstractSource].
func (source Source) Abstract() (_ string, isAbstract bool) {
	if !strings.HasPrefix(string(source), "=") {
		return "", false
	}
	return string(source[1:]), true
}

// Literal returns the string provided to [LiteralSource].
func (source Source) Literal() (_ string, isLiteral bool) {
	if len(source) != 0 && (source[0] == '@' || source[0] == '=') {
		return "", false
	}
	return string(source), true
}

const (
	// maxSourceSize is the maximum length of a string returned by [Source.String].
	maxSourceSize = 60

	sourceTruncationSignifier = "..."
)

// String formats the source in a concise manner
// suitable for debugging.
func (source Source) String() string {
	if s, ok := source.Abstract(); ok {
		if len(s) > maxSourceSize {
			return s[:maxSourceSize]
		}
		return s
	}
	if fname, ok := source.Filename(); ok {
		if len(source) > maxSourceSize {
			const n = maxSourceSize - len(sourceTruncationSignifier)
			return sourceTruncationSignifier + fname[len(fname)-n:]
		}
		return fname
	}
	return describeLiteralSource(string(source))
}

func describeLiteralSource(s string) string {
	const prefix = `[string "`
	const suffix = `"]`
	const stringSize = maxSourceSize - (len(prefix) + len(suffix))
	line, _, multipleLines := strings.Cut(s, "\n")
	if !multipleLines && len(line) <= stringSize {
		return prefix + line + suffix
	}
	if len(line)+len(sourceTruncationSignifier) > stringSize {
		line = line[:stringSize-len(sourceTruncationSignifier)]
	}
	return prefix + line + sourceTruncationSignifier + suffix
}
