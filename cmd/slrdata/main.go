// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// The slrdata command creates, loads, indexes and inspects slrdata
// datasets.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/bpowers/slrdata"
)

const (
	defaultNormDegree = 16
	defaultMaxDegree  = 1 << 32
)

func relationFlag() cli.Flag {
	return &cli.StringFlag{Name: "relation", Aliases: []string{"r"}, Required: true, Usage: "Relation name"}
}

func degreeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Uint64Flag{Name: "norm-degree", Value: defaultNormDegree, Usage: "Incidence list entries reserved per element, and added on each relocation", EnvVars: []string{"SLRDATA_NORM_DEGREE"}},
		&cli.Uint64Flag{Name: "max-degree", Value: defaultMaxDegree, Usage: "Largest allowed number of tuples containing one element", EnvVars: []string{"SLRDATA_MAX_DEGREE"}},
	}
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})), nil
}

func openDataset(c *cli.Context, readonly bool) (*slrdata.Dataset, error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	return slrdata.Open(c.String("dir"), readonly, slrdata.WithLogger(logger))
}

// withDataset opens the dataset, runs fn and closes it again, reporting
// the first error.
func withDataset(c *cli.Context, readonly bool, fn func(d *slrdata.Dataset) error) (err error) {
	d, err := openDataset(c, readonly)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(d)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:      "slrdata",
		Usage:     "Build and query on-disk hypergraph datasets",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Required: true, Usage: "Dataset directory", EnvVars: []string{"SLRDATA_DIR"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (debug, info, warn, error)", EnvVars: []string{"SLRDATA_LOG_LEVEL"}},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "create",
			Usage: "Create an empty dataset",
			Action: func(c *cli.Context) error {
				logger, err := newLogger(c)
				if err != nil {
					return err
				}
				d, err := slrdata.Create(c.String("dir"), slrdata.WithLogger(logger))
				if err != nil {
					return err
				}
				return d.Close()
			},
		},
		{
			Name:  "add-elements",
			Usage: "Add elements to the universe",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "Number of elements to add"},
			},
			Action: func(c *cli.Context) error {
				return withDataset(c, false, func(d *slrdata.Dataset) error {
					n := c.Uint64("count")
					first, err := d.AddElements(n)
					if err != nil {
						return err
					}
					if n == 0 {
						fmt.Fprintln(c.App.Writer, "added no elements")
						return nil
					}
					fmt.Fprintf(c.App.Writer, "added elements %d..%d\n", first, d.ElementCount()-1)
					return nil
				})
			},
		},
		{
			Name:      "create-relation",
			Usage:     "Create an empty relation",
			ArgsUsage: "NAME",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return fmt.Errorf("create-relation takes exactly one relation name")
				}
				return withDataset(c, false, func(d *slrdata.Dataset) error {
					_, err := d.CreateRelation(c.Args().First())
					return err
				})
			},
		},
		{
			Name:      "load",
			Usage:     "Append tuples, one comma-separated line each, from FILE (or stdin)",
			ArgsUsage: "[FILE]",
			Flags:     append([]cli.Flag{relationFlag()}, degreeFlags()...),
			Action: func(c *cli.Context) error {
				in := io.Reader(os.Stdin)
				if path := c.Args().First(); path != "" && path != "-" {
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					in = f
				}
				return withDataset(c, false, func(d *slrdata.Dataset) error {
					idx := &slrdata.IndexOptions{NormDegree: c.Uint64("norm-degree"), MaxDegree: c.Uint64("max-degree")}
					added, err := d.LoadTuples(c.String("relation"), in, idx)
					fmt.Fprintf(c.App.Writer, "loaded %d tuples\n", added)
					return err
				})
			},
		},
		{
			Name:  "index",
			Usage: "Build a relation's incidence lists",
			Flags: append([]cli.Flag{relationFlag()}, degreeFlags()...),
			Action: func(c *cli.Context) error {
				return withDataset(c, false, func(d *slrdata.Dataset) error {
					return d.Index(c.String("relation"), c.Uint64("norm-degree"), c.Uint64("max-degree"))
				})
			},
		},
		{
			Name:  "compact",
			Usage: "Rewrite relations without incidence list slack",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "relation", Aliases: []string{"r"}, Usage: "Relation to compact (default: all)"},
			},
			Action: func(c *cli.Context) error {
				return withDataset(c, false, func(d *slrdata.Dataset) error {
					names := c.StringSlice("relation")
					if len(names) == 0 {
						names = d.RelationNames()
					}
					for _, name := range names {
						if err := d.Compact(name); err != nil {
							return err
						}
					}
					return nil
				})
			},
		},
		{
			Name:  "info",
			Usage: "Describe the dataset and its relations",
			Action: func(c *cli.Context) error {
				return withDataset(c, true, func(d *slrdata.Dataset) error {
					return printInfo(c.App.Writer, d)
				})
			},
		},
		{
			Name:  "incident",
			Usage: "Print the tuples containing an element",
			Flags: []cli.Flag{
				relationFlag(),
				&cli.Uint64Flag{Name: "element", Aliases: []string{"e"}, Required: true, Usage: "Element id"},
			},
			Action: func(c *cli.Context) error {
				return withDataset(c, true, func(d *slrdata.Dataset) error {
					return printIncident(c.App.Writer, d, c.String("relation"), c.Uint64("element"))
				})
			},
		},
		{
			Name:  "dump",
			Usage: "Print a relation's tuples in the form load reads",
			Flags: []cli.Flag{relationFlag()},
			Action: func(c *cli.Context) error {
				return withDataset(c, true, func(d *slrdata.Dataset) error {
					return d.WriteTuples(c.String("relation"), c.App.Writer)
				})
			},
		},
		{
			Name:  "verify",
			Usage: "Check every relation's incidence lists against its tuples",
			Action: func(c *cli.Context) error {
				return withDataset(c, true, func(d *slrdata.Dataset) error {
					if err := d.Verify(); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "ok")
					return nil
				})
			},
		},
	}
	return app
}

func printInfo(w io.Writer, d *slrdata.Dataset) error {
	mf := d.Main()
	fmt.Fprintf(w, "dataset %s\n", d.Dir())
	fmt.Fprintf(w, "  elements:  %d\n", mf.ElementCount())
	fmt.Fprintf(w, "  relations: %d\n", mf.RelationCount())
	fmt.Fprintf(w, "  size:      %s\n", humanize.IBytes(mf.Size()))
	for _, name := range d.RelationNames() {
		rel, err := d.Relation(name)
		if err != nil {
			return err
		}
		fingerprint, err := rel.Fingerprint()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "relation %s\n", name)
		fmt.Fprintf(w, "  arity:       %d\n", rel.Arity())
		fmt.Fprintf(w, "  tuples:      %s\n", humanize.Comma(int64(rel.TupleCount())))
		fmt.Fprintf(w, "  indexed:     %t\n", rel.Indexed())
		fmt.Fprintf(w, "  size:        %s\n", humanize.IBytes(rel.Size()))
		fmt.Fprintf(w, "  fingerprint: %016x\n", fingerprint)
		if !rel.Indexed() {
			continue
		}
		var maxDegree, reserved, used uint64
		for e := uint64(0); e < rel.ElementCount(); e++ {
			degree, err := rel.Degree(e)
			if err != nil {
				return err
			}
			capacity, err := rel.Capacity(e)
			if err != nil {
				return err
			}
			used += degree
			reserved += capacity
			if degree > maxDegree {
				maxDegree = degree
			}
		}
		fmt.Fprintf(w, "  max degree:  %d\n", maxDegree)
		fmt.Fprintf(w, "  slack:       %d of %d incidence entries\n", reserved-used, reserved)
	}
	return nil
}

func printIncident(w io.Writer, d *slrdata.Dataset, name string, e uint64) error {
	rel, err := d.Relation(name)
	if err != nil {
		return err
	}
	indexes, err := rel.IncidentTupleIndexes(e)
	if err != nil {
		return err
	}
	var tuple []uint64
	for _, t := range indexes {
		if tuple, err = rel.AppendTuple(tuple[:0], t); err != nil {
			return err
		}
		fmt.Fprintf(w, "%d: %v\n", t, tuple)
	}
	return nil
}

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "slrdata: %s\n", err)
		os.Exit(1)
	}
}
