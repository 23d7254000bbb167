// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// Signature is the magic header for a binary (pre-compiled) Lua chunk.
// Data with this prefix can be loaded in with [*Prototype.UnmarshalBinary].
const Signature = "\x1bLua"

const (
	luacVersion byte    = 3*16 + 2
	luacFormat  byte    = 0
	luacData            = "\x19\x93\r\n\x1a\n"
	luacTest    uint32  = 0x5678
	luacNum     float64 = 370.5
)

// MarshalBinary marshals the function as a precompiled chunk.
func (f *Prototype) MarshalBinary() ([]byte, error) {
	var buf []byte

	buf = append(buf, Signature...)
	buf = append(buf, luacVersion, luacFormat)
	buf = append(buf, luacData...)
	// Size of [Instruction] and [float64] in bytes.
	buf = append(buf, 4, 8)
	buf = binary.NativeEndian.AppendUint32(buf, luacTest)
	buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(luacNum))

	return dumpFunction(buf, f, "")
}

func dumpFunction(buf []byte, f *Prototype, parentSource Source) ([]byte, error) {
	if f.Source == "" || f.Source == parentSource {
		buf = dumpVarint(buf, 0)
	} else {
		buf = dumpString(buf, string(f.Source))
	}
	buf = dumpVarint(buf, f.LineDefined)
	buf = append(buf, f.NumParams)
	buf = dumpBool(buf, f.IsVararg)
	if f.MaxStackSize < 0 || f.MaxStackSize > maxStack {
		return nil, fmt.Errorf("dump lua chunk: max stack size (%d) out of range", f.MaxStackSize)
	}
	buf = dumpVarint(buf, f.MaxStackSize)

	// Code
	buf = dumpVarint(buf, len(f.Code))
	for _, code := range f.Code {
		buf = binary.NativeEndian.AppendUint32(buf, uint32(code))
	}

	// Constants
	buf = dumpVarint(buf, len(f.StringConstants))
	for _, s := range f.StringConstants {
		buf = dumpString(buf, s)
	}
	buf = dumpVarint(buf, len(f.NumberConstants))
	for _, n := range f.NumberConstants {
		buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(n))
	}

	// Nested prototypes
	buf = dumpVarint(buf, len(f.Functions))
	for _, p := range f.Functions {
		var err error
		buf, err = dumpFunction(buf, p, f.Source)
		if err != nil {
			return nil, err
		}
	}

	// Debug information
	buf = dumpVarint(buf, len(f.LocalVariables))
	for _, v := range f.LocalVariables {
		buf = dumpString(buf, v.Name)
		// Biased by one so the closing sentinel's -1 stays non-negative.
		buf = dumpVarint(buf, v.Line+1)
	}

	return buf, nil
}

func dumpString(buf []byte, s string) []byte {
	buf = dumpVarint(buf, len(s)+1)
	buf = append(buf, s...)
	return buf
}

// dumpVarint appends an integer to the byte slice
// in big-endian with a variable-length encoding,
// with the most significant bit indicating the end of the integer.
func dumpVarint(buf []byte, size int) []byte {
	start := len(buf)
	for {
		buf = append(buf, uint8(size&0x7f))
		size >>= 7
		if size == 0 {
			break
		}
	}
	slices.Reverse(buf[start:])
	buf[len(buf)-1] |= 0x80
	return buf
}

func dumpBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	} else {
		return append(buf, 0)
	}
}

// UnmarshalBinary unmarshals a precompiled chunk
// like those produced by [Prototype.MarshalBinary].
// UnmarshalBinary supports chunks from different architectures,
// but the chunk must use the same dialect version.
func (f *Prototype) UnmarshalBinary(data []byte) error {
	r, err := newChunkReader(data)
	if err != nil {
		return fmt.Errorf("load lua chunk: %v", err)
	}
	if err := loadFunction(f, r, ""); err != nil {
		return fmt.Errorf("load lua chunk: %v", err)
	}
	if _, hasMore := r.readByte(); hasMore {
		return errors.New("load lua chunk: trailing data")
	}
	return nil
}

func loadFunction(f *Prototype, r *chunkReader, parentSource Source) error {
	source, hasSource, err := r.readString()
	if err != nil {
		return fmt.Errorf("load function: source: %v", err)
	}
	if !hasSource {
		source = string(parentSource)
	}
	f.Source = Source(source)

	f.LineDefined, err = r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: line defined: %v", err)
	}
	var ok bool
	f.NumParams, ok = r.readByte()
	if !ok {
		return fmt.Errorf("load function: number of parameters: %v", io.ErrUnexpectedEOF)
	}
	f.IsVararg, ok = r.readBool()
	if !ok {
		return fmt.Errorf("load function: is vararg: %v", io.ErrUnexpectedEOF)
	}
	f.MaxStackSize, err = r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: max stack size: %v", err)
	}

	// Code
	n, err := r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: instruction length: %v", err)
	}
	f.Code = make([]Instruction, n)
	for i := range f.Code {
		word, ok := r.readUint32()
		if !ok {
			return fmt.Errorf("load function: instructions: %v", io.ErrUnexpectedEOF)
		}
		f.Code[i] = Instruction(word)
	}

	// Constants
	n, err = r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: string constant table size: %v", err)
	}
	f.StringConstants = make([]string, n)
	for i := range f.StringConstants {
		s, hasValue, err := r.readString()
		if err != nil {
			return fmt.Errorf("load function: string constant table [%d]: %v", i, err)
		}
		if !hasValue {
			return fmt.Errorf("load function: string constant table [%d]: missing value", i)
		}
		f.StringConstants[i] = s
	}
	if len(f.StringConstants) == 0 {
		f.StringConstants = nil
	}
	n, err = r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: number constant table size: %v", err)
	}
	f.NumberConstants = make([]float64, n)
	for i := range f.NumberConstants {
		var ok bool
		f.NumberConstants[i], ok = r.readNumber()
		if !ok {
			return fmt.Errorf("load function: number constant table [%d]: %v", i, io.ErrUnexpectedEOF)
		}
	}
	if len(f.NumberConstants) == 0 {
		f.NumberConstants = nil
	}

	// Nested prototypes
	n, err = r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: prototype table size: %v", err)
	}
	f.Functions = make([]*Prototype, n)
	for i := range f.Functions {
		f.Functions[i] = new(Prototype)
		if err := loadFunction(f.Functions[i], r, f.Source); err != nil {
			return fmt.Errorf("load function: prototypes [%d]: %v", i, err)
		}
	}
	if len(f.Functions) == 0 {
		f.Functions = nil
	}

	// Debug information
	n, err = r.readVarint()
	if err != nil {
		return fmt.Errorf("load function: local variables: %v", err)
	}
	f.LocalVariables = make([]LocalVariable, n)
	for i := range f.LocalVariables {
		name, _, err := r.readString()
		if err != nil {
			return fmt.Errorf("load function: local variables [%d]: %v", i, err)
		}
		line, err := r.readVarint()
		if err != nil {
			return fmt.Errorf("load function: local variables [%d]: %v", i, err)
		}
		f.LocalVariables[i] = LocalVariable{Name: name, Line: line - 1}
	}
	if len(f.LocalVariables) == 0 {
		f.LocalVariables = nil
	}

	return nil
}

type chunkReader struct {
	s         []byte
	byteOrder binary.ByteOrder
}

func newChunkReader(s []byte) (*chunkReader, error) {
	r := &chunkReader{s: s}
	if !r.literal(Signature) {
		return nil, errors.New("missing signature")
	}
	if version, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if version != luacVersion {
		return nil, errors.New("version mismatch")
	}
	if format, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if format != luacFormat {
		return nil, errors.New("format mismatch")
	}
	if !r.literal(luacData) {
		return nil, errors.New("corrupted chunk")
	}

	if instructionSize, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if instructionSize != 4 {
		return nil, errors.New("instruction size must be 4")
	}
	if numberSize, ok := r.readByte(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if numberSize != 8 {
		return nil, errors.New("number size must be 8")
	}

	// Determine endianness.
	if len(r.s) < 4 {
		return nil, io.ErrUnexpectedEOF
	}
	switch {
	case binary.LittleEndian.Uint32(r.s) == luacTest:
		r.byteOrder = binary.LittleEndian
	case binary.BigEndian.Uint32(r.s) == luacTest:
		r.byteOrder = binary.BigEndian
	default:
		return nil, errors.New("integer format mismatch")
	}
	r.s = r.s[4:]

	// Verify float.
	if n, ok := r.readNumber(); !ok {
		return nil, io.ErrUnexpectedEOF
	} else if n != luacNum {
		return nil, errors.New("float format mismatch")
	}

	return r, nil
}

func (r *chunkReader) literal(s string) bool {
	if len(r.s) < len(s) || string(r.s[:len(s)]) != s {
		return false
	}
	r.s = r.s[len(s):]
	return true
}

func (r *chunkReader) readByte() (byte, bool) {
	if len(r.s) == 0 {
		return 0, false
	}
	b := r.s[0]
	r.s = r.s[1:]
	return b, true
}

func (r *chunkReader) readBool() (bool, bool) {
	b, ok := r.readByte()
	return b != 0, ok
}

func (r *chunkReader) readUint32() (uint32, bool) {
	if len(r.s) < 4 {
		return 0, false
	}
	x := r.byteOrder.Uint32(r.s)
	r.s = r.s[4:]
	return x, true
}

func (r *chunkReader) readNumber() (float64, bool) {
	if len(r.s) < 8 {
		return 0, false
	}
	f := math.Float64frombits(r.byteOrder.Uint64(r.s))
	r.s = r.s[8:]
	return f, true
}

// readVarint reads an integer
// in the variable-length encoding written by dumpVarint.
func (r *chunkReader) readVarint() (int, error) {
	result := 0
	for {
		b, ok := r.readByte()
		if !ok {
			return 0, io.ErrUnexpectedEOF
		}
		if result > math.MaxInt>>7 {
			return 0, errors.New("integer overflow")
		}
		result = result<<7 | int(b&0x7f)
		if b&0x80 != 0 {
			return result, nil
		}
	}
}

// readString reads a length-prefixed string.
// hasValue is false if and only if the string is absent
// (which is distinct from an empty string).
func (r *chunkReader) readString() (_ string, hasValue bool, err error) {
	size, err := r.readVarint()
	if err != nil {
		return "", false, err
	}
	if size == 0 {
		return "", false, nil
	}
	size--
	if len(r.s) < size {
		return "", true, io.ErrUnexpectedEOF
	}
	s := string(r.s[:size])
	r.s = r.s[size:]
	return s, true, nil
}
