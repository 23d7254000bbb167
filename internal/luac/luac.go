// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

// Package luac provides a Cobra command for the classic Lua compiler.
// Its command-line options and behavior are roughly the same as luac(1).
package luac

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"lua3.256lights.llc/pkg/internal/luacode"
	"zombiezen.com/go/log"
)

type options struct {
	inputFilename  string
	source         string
	outputFilename string
	list           int
	parseOnly      bool
	stripDebug     bool
	rawPC          bool
}

// New returns a new luac command.
func New() *cobra.Command {
	c := &cobra.Command{
		Use:                   "lua3-luac FILE",
		Short:                 "compile classic Lua to bytecode",
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(options)
	c.Flags().CountVarP(&opts.list, "list", "l", "produce a listing of compiled bytecode")
	c.Flags().StringVarP(&opts.outputFilename, "output", "o", "luac.out", "output to `filename`")
	c.Flags().BoolVarP(&opts.parseOnly, "parse-only", "p", false, "do not write bytecode")
	c.Flags().BoolVarP(&opts.stripDebug, "strip-debug", "s", false, "strip debug information")
	c.Flags().BoolVarP(&opts.rawPC, "raw-pc", "0", false, "show literal PC values")
	c.Flags().StringVar(&opts.source, "source", "", "source `name` to show in debug information instead of filename")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.inputFilename = args[0]
		return run(cmd, opts)
	}
	return c
}

func run(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	f, err := os.Open(opts.inputFilename)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var proto *luacode.Prototype
	if header, _ := br.Peek(len(luacode.Signature)); string(header) == luacode.Signature {
		bytecode, err := io.ReadAll(br)
		if err != nil {
			return err
		}
		proto = new(luacode.Prototype)
		if err := proto.UnmarshalBinary(bytecode); err != nil {
			return err
		}
	} else {
		var sourceName luacode.Source
		if opts.source != "" {
			sourceName = luacode.Source(opts.source)
		} else {
			sourceName = luacode.FilenameSource(opts.inputFilename)
		}
		var mode luacode.Mode
		if opts.stripDebug {
			mode |= luacode.StripDebug
		}
		start := time.Now()
		proto, err = luacode.Parse(sourceName, br, mode)
		if err != nil {
			return err
		}
		log.Debugf(ctx, "compiled %v in %v: %d instructions, %d strings, %d numbers, %d functions",
			sourceName, time.Since(start),
			len(proto.Code), len(proto.StringConstants), len(proto.NumberConstants), len(proto.Functions))
	}

	if opts.list > 0 {
		functionNames := make(map[*luacode.Prototype]string)
		nameFunctions(functionNames, proto)
		pcBase := 0
		if !opts.rawPC {
			pcBase = 1
		}
		if err := printFunction(proto, functionNames, pcBase, opts.list > 1); err != nil {
			return err
		}
	}

	if opts.parseOnly {
		return nil
	}
	output, err := proto.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.outputFilename, output, 0o666); err != nil {
		return err
	}

	return nil
}

func printFunction(f *luacode.Prototype, functionNames map[*luacode.Prototype]string, pcBase int, full bool) error {
	var source string
	if s, ok := f.Source.Abstract(); ok {
		source = s
	} else if s, ok := f.Source.Filename(); ok {
		source = s
	} else if strings.HasPrefix(string(f.Source), luacode.Signature[:1]) {
		source = "(bstring)"
	} else {
		source = "(string)"
	}
	ifElse := func(b bool, t, f string) string {
		if b {
			return t
		} else {
			return f
		}
	}
	plural := func(n int, unit string, unitPlural string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %s", n, unitPlural)
	}
	pluralUnit := func(n int, unit string, unitPlural string) string {
		if n == 1 {
			return unit
		}
		return unitPlural
	}
	_, err := fmt.Printf(
		"\n%s <%s:%d> (%s for %s)\n",
		ifElse(f.IsMainChunk(), "main", "function"),
		source,
		f.LineDefined,
		plural(len(f.Code), "instruction", "instructions"),
		functionNames[f],
	)
	if err != nil {
		return err
	}

	_, err = fmt.Printf(
		"%d%s %s, %s, %s, %s, %s\n",
		f.NumParams,
		ifElse(f.IsVararg, "+", ""),
		pluralUnit(int(f.NumParams), "param", "params"),
		plural(f.MaxStackSize, "slot", "slots"),
		plural(len(f.StringConstants), "string", "strings"),
		plural(len(f.NumberConstants), "number", "numbers"),
		plural(len(f.Functions), "function", "functions"),
	)
	if err != nil {
		return err
	}

	lineBuf := new(bytes.Buffer)
	for pc, i := range f.Code {
		lineBuf.Reset()
		fmt.Fprintf(lineBuf, "\t%d\t", pcBase+pc)
		lineBuf.WriteString(i.String())

		// Contextual comments.
		switch i.OpCode() {
		case luacode.OpPushString, luacode.OpGetGlobal, luacode.OpSetGlobal, luacode.OpPushSelf:
			if u := i.ArgU(); int(u) < len(f.StringConstants) {
				fmt.Fprintf(lineBuf, "\t; %q", f.StringConstants[u])
			}
		case luacode.OpPushNum:
			if u := i.ArgU(); int(u) < len(f.NumberConstants) {
				fmt.Fprintf(lineBuf, "\t; %v", f.NumberConstants[u])
			}
		case luacode.OpClosure:
			if a := i.ArgA(); int(a) < len(f.Functions) {
				fmt.Fprintf(lineBuf, "\t; %s", functionNames[f.Functions[a]])
			}
		case luacode.OpJump, luacode.OpIfTrueJump, luacode.OpIfFalseJump,
			luacode.OpOnTrueJump, luacode.OpOnFalseJump:
			fmt.Fprintf(lineBuf, "\t; to %d", pcBase+pc+1+int(i.ArgS()))
		}

		lineBuf.WriteByte('\n')
		if _, err := os.Stdout.Write(lineBuf.Bytes()); err != nil {
			return err
		}
	}

	if full {
		if _, err := fmt.Printf("strings (%d) for %s\n", len(f.StringConstants), functionNames[f]); err != nil {
			return err
		}
		for i, s := range f.StringConstants {
			if _, err := fmt.Printf("\t%d\t%q\n", i, s); err != nil {
				return err
			}
		}

		if _, err := fmt.Printf("numbers (%d) for %s\n", len(f.NumberConstants), functionNames[f]); err != nil {
			return err
		}
		for i, n := range f.NumberConstants {
			if _, err := fmt.Printf("\t%d\t%v\n", i, n); err != nil {
				return err
			}
		}

		if _, err := fmt.Printf("locals (%d) for %s\n", len(f.LocalVariables), functionNames[f]); err != nil {
			return err
		}
		for i, v := range f.LocalVariables {
			name := v.Name
			if name == "" {
				name = "(end of scope)"
			}
			if _, err := fmt.Printf("\t%d\t%s\t%d\n", i, name, v.Line); err != nil {
				return err
			}
		}
	}

	for _, f := range f.Functions {
		if err := printFunction(f, functionNames, pcBase, full); err != nil {
			return err
		}
	}

	return nil
}

func nameFunctions(names map[*luacode.Prototype]string, f *luacode.Prototype) {
	base := names[f]
	isTop := base == ""
	if isTop {
		if f.IsMainChunk() {
			base = "main"
		} else {
			base = "top"
		}
		names[f] = base
	}

	for i, f := range f.Functions {
		var name string
		if isTop {
			name = fmt.Sprintf("F[%d]", i)
		} else {
			name = fmt.Sprintf("%s[%d]", base, i)
		}
		names[f] = name
		nameFunctions(names, f)
	}
}
