// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// The gen-testdata command writes random tuples in the text form that
// `slrdata load` reads.  Element ids follow a power-law-ish distribution
// so that some elements have very high degree, which exercises incidence
// list relocation.
package main

import (
	"bufio"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := crand.Read(seedBytes[:]); err != nil {
			panic(err)
		}
		seed = int64(binary.LittleEndian.Uint64(seedBytes[:]))
	}
	return rand.New(rand.NewSource(seed))
}

func generate(w io.Writer, rng *rand.Rand, tuples, arity, elements uint64, skew float64) error {
	if elements == 0 {
		return fmt.Errorf("--elements must be at least 1")
	}
	var zipf *rand.Zipf
	if skew > 1 {
		zipf = rand.NewZipf(rng, skew, 1, elements-1)
	}
	bw := bufio.NewWriter(w)
	var line []byte
	for i := uint64(0); i < tuples; i++ {
		line = line[:0]
		for j := uint64(0); j < arity; j++ {
			if j > 0 {
				line = append(line, ',')
			}
			var e uint64
			if zipf != nil {
				e = zipf.Uint64()
			} else {
				e = uint64(rng.Int63n(int64(elements)))
			}
			line = strconv.AppendUint(line, e, 10)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func main() {
	app := &cli.App{
		Name:  "gen-testdata",
		Usage: "Write random tuples to stdout",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "tuples", Value: 1000000, Usage: "Number of tuples"},
			&cli.Uint64Flag{Name: "arity", Value: 3, Usage: "Elements per tuple"},
			&cli.Uint64Flag{Name: "elements", Value: 100000, Usage: "Size of the element universe"},
			&cli.Float64Flag{Name: "skew", Value: 1.1, Usage: "Zipf exponent for element ids (<= 1 for uniform)"},
			&cli.Int64Flag{Name: "seed", Usage: "Random seed (0 for a random one)"},
		},
		Action: func(c *cli.Context) error {
			rng := newRand(c.Int64("seed"))
			return generate(os.Stdout, rng, c.Uint64("tuples"), c.Uint64("arity"), c.Uint64("elements"), c.Float64("skew"))
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gen-testdata: %s\n", err)
		os.Exit(1)
	}
}
