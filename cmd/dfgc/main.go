/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/dfg"
	"github.com/cloudwego/dfg/internal/dfg/bytecode"
	"github.com/cloudwego/dfg/internal/dfg/cfa"
	"github.com/cloudwego/dfg/internal/dfg/traits"
	"github.com/davecgh/go-spew/spew"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

var dumper = spew.ConfigState{
	Indent:                  "    ",
	MaxDepth:                3,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

func main() {
	cfaCmd := &cli.Command{
		Name:        "cfa",
		Description: "find the basic blocks and captured locals of bytecode listings",
		Action:      cfaAct,
		Args:        cli.Args{},
	}

	dumpCmd := &cli.Command{
		Name:        "dump",
		Description: "dump the control flow analysis result of bytecode listings",
		Action:      dumpAct,
		Args:        cli.Args{},
	}

	traitsCmd := &cli.Command{
		Name:        "traits",
		Description: "check trait tables against the host, or print the built-in one",
		Action:      traitsAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "dfgc",
		Description: "dfgc inspects the inputs of the DFG compiler",
		Commands: []*cli.Command{
			cfaCmd,
			dumpCmd,
			traitsCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func analyze(ctx context.Context, path string) (res *cfa.Result, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "dfgc: analyze", "path", path)
	defer tr.Finish("err", &err)

	s, err := bytecode.LoadListing(path)
	if err != nil {
		return nil, errors.Wrap(err, "load %v", path)
	}

	res = cfa.Analyze(s)
	tr.Printw("analyzed", "bytecodes", s.CurLength(), "locals", s.NumLocals(), "blocks", len(res.Blocks))
	return res, nil
}

func cfaAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		res, err := analyze(ctx, a)
		if err != nil {
			return err
		}

		fmt.Printf("%s:\n", a)
		for _, bb := range res.Blocks {
			succ := make([]string, 0, len(bb.Successors))
			for _, s := range bb.Successors {
				succ = append(succ, s.String())
			}
			fmt.Printf("    %v: %d bytecodes, succ [%s], captured %v\n", bb, bb.NumBytecodes, strings.Join(succ, " "), bb.CapturedInBB)
		}
	}

	return nil
}

func dumpAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		res, err := analyze(ctx, a)
		if err != nil {
			return err
		}

		dumper.Fdump(os.Stdout, res)
	}

	return nil
}

func traitsAct(c *cli.Command) (err error) {
	if len(c.Args) == 0 {
		fmt.Printf("%v", traits.Default())
		return nil
	}

	for _, a := range c.Args {
		t, err := dfg.LoadTraitTable(a)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d opcodes, ok\n", a, t.NumOpcodes())
	}

	return nil
}
