// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_cbor "github.com/fxamacker/cbor/v2"

	"github.com/ton-blockchain/ton-trustless-bridge-relayer/cell"
)

type cmdFlags struct {
	flagset *flag.FlagSet
	file    string
	hexData string
	format  string
	root    int
}

func newCmdFlags() *cmdFlags {
	f := &cmdFlags{
		flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	f.flagset.StringVar(
		&f.file,
		"file",
		"",
		"path to a bag-of-cells file",
	)
	f.flagset.StringVar(
		&f.hexData,
		"hex",
		"",
		"hex-encoded bag-of-cells",
	)
	f.flagset.StringVar(
		&f.format,
		"format",
		"dump",
		"output format: dump, json, or cbor (base64)",
	)
	f.flagset.IntVar(
		&f.root,
		"root",
		0,
		"root cell to print",
	)
	return f
}

func main() {
	f := newCmdFlags()
	if err := f.flagset.Parse(os.Args[1:]); err != nil {
		fmt.Printf("failed to parse command args: %s\n", err)
		os.Exit(1)
	}

	var roots []*cell.Cell
	var err error
	switch {
	case f.hexData != "":
		roots, err = cell.DeserializeBOCHex(f.hexData)
	case f.file != "":
		var data []byte
		data, err = os.ReadFile(f.file)
		if err != nil {
			fmt.Printf("failed to read %s: %s\n", f.file, err)
			os.Exit(1)
		}
		roots, err = cell.DeserializeBOC(data)
	default:
		fmt.Println("you must specify either -file or -hex")
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("failed to decode bag of cells: %s\n", err)
		os.Exit(1)
	}
	if f.root < 0 || f.root >= len(roots) {
		fmt.Printf(
			"root %d out of range: container has %d root(s)\n",
			f.root,
			len(roots),
		)
		os.Exit(1)
	}
	root := roots[f.root]

	switch f.format {
	case "dump":
		fmt.Print(root.Dump())
	case "json":
		out, err := json.MarshalIndent(root.Object(), "", "  ")
		if err != nil {
			fmt.Printf("failed to encode JSON: %s\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	case "cbor":
		out, err := _cbor.Marshal(root.Object())
		if err != nil {
			fmt.Printf("failed to encode CBOR: %s\n", err)
			os.Exit(1)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(out))
	default:
		fmt.Printf("unknown output format: %s\n", f.format)
		os.Exit(1)
	}
}
