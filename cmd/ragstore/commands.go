package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ragstore/chunk"
	"ragstore/indexlog"
	"ragstore/ragstore"
	"ragstore/store"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store counts and compression strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := storeOptions(cmd)
			if err != nil {
				return err
			}
			dsBase, tcBase := basePaths(cmd)
			ds, err := store.LoadDatasetStore(dsBase, opts...)
			if err != nil {
				return err
			}
			tc, err := store.LoadTestcaseStore(tcBase, opts...)
			if err != nil {
				return err
			}

			cases := 0
			for _, list := range tc.All() {
				cases += len(list)
			}
			fmt.Printf("dataset file:   %s\n", ds.Path())
			fmt.Printf("testcase file:  %s\n", tc.Path())
			fmt.Printf("compression:    %s\n", ds.Strategy())
			fmt.Printf("indices:        %d\n", ds.Len())
			fmt.Printf("cases:          %d\n", cases)
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <fingerprint>",
		Short: "Print the decompressed chunks of a stored index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := storeOptions(cmd)
			if err != nil {
				return err
			}
			dsBase, _ := basePaths(cmd)
			ds, err := store.LoadDatasetStore(dsBase, opts...)
			if err != nil {
				return err
			}
			seq, err := ds.Get(args[0])
			if err != nil {
				return err
			}
			for i, e := range seq {
				label := fmt.Sprintf("%d", i)
				if e.Source != "" {
					label = e.Source
				}
				switch e.Chunk.Kind {
				case chunk.KindRaw:
					fmt.Printf("[%s] %s\n", label, e.Chunk.Text)
				case chunk.KindExternal:
					fmt.Printf("[%s] external(%s) %s\n", label, e.Chunk.ExtType, e.Chunk.ExtProj)
				default:
					fmt.Printf("[%s] %s %s\n", label, e.Chunk.Kind, e.Chunk.Collection)
				}
			}
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recorded query events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := indexlog.Filter{}
			if since, _ := cmd.Flags().GetString("since"); since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("parse --since: %w", err)
				}
				filter.Start = t
			}
			if until, _ := cmd.Flags().GetString("until"); until != "" {
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("parse --until: %w", err)
				}
				filter.End = t
			}
			filter.Contains, _ = cmd.Flags().GetString("grep")

			opts, err := storeOptions(cmd)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			name, _ := cmd.Flags().GetString("name")
			logger := indexlog.New(filepath.Join(dir, name),
				indexlog.WithLogger(baseLogger(cmd)),
				indexlog.WithStoreOptions(ragstore.WithStoreOptions(opts...)))
			entries, err := logger.Logs(filter)
			if err != nil {
				return err
			}
			for _, e := range entries {
				ts := "-"
				if t, ok := e.Case.Timestamp(); ok {
					ts = t.Format(time.RFC3339)
				}
				answer, _ := e.Case[store.FieldReturnedAnswer].(string)
				if answer != "" {
					fmt.Printf("%s  %s  %q -> %q\n", ts, e.IndexID, e.Case.Question(), answer)
				} else {
					fmt.Printf("%s  %s  %q\n", ts, e.IndexID, e.Case.Question())
				}
			}
			return nil
		},
	}
	cmd.Flags().String("since", "", "window start (RFC3339)")
	cmd.Flags().String("until", "", "window end (RFC3339)")
	cmd.Flags().String("grep", "", "retain questions containing substring")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Round-trip every stored index and report broken references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := storeOptions(cmd)
			if err != nil {
				return err
			}
			dsBase, _ := basePaths(cmd)
			ds, err := store.LoadDatasetStore(dsBase, opts...)
			if err != nil {
				return err
			}

			// Decompression never mutates the store, so reads can fan out.
			var g errgroup.Group
			g.SetLimit(runtime.NumCPU())
			for _, id := range ds.Collections() {
				id := id
				g.Go(func() error {
					seq, err := ds.Get(id)
					if err != nil {
						return fmt.Errorf("index %s: %w", id, err)
					}
					if got := chunk.Fingerprint(seq); got != id {
						return fmt.Errorf("index %s: fingerprint mismatch after decompression (%s)", id, got)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			fmt.Printf("verified %d indices\n", ds.Len())
			return nil
		},
	}
}
