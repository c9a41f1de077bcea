// Command ragstore inspects and verifies RAG dataset stores on disk.
//
// Logging:
//   - Base logger is created here with output level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragstore/internal/codec"
	"ragstore/store"
)

func main() {
	root := &cobra.Command{
		Use:           "ragstore",
		Short:         "Inspect RAG dataset stores",
		Long:          "Inspect the dataset and testcase files of a RAG store: counts, stored indices, query logs, and reference integrity.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("dir", ".", "cache directory holding the store files")
	root.PersistentFlags().String("name", "ragstore", "store base name")
	root.PersistentFlags().String("codec", "json", "store codec: json or msgpack")
	root.PersistentFlags().Bool("zst", false, "stores are zstd-compressed at rest")
	root.PersistentFlags().Bool("verbose", false, "log at debug level")

	root.AddCommand(
		newStatsCmd(),
		newGetCmd(),
		newLogsCmd(),
		newVerifyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// storeOptions builds store options from the persistent flags.
func storeOptions(cmd *cobra.Command) ([]store.Option, error) {
	name, _ := cmd.Flags().GetString("codec")
	var c codec.Codec
	switch name {
	case "json":
		c = codec.JSON()
	case "msgpack":
		c = codec.Msgpack()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	if zst, _ := cmd.Flags().GetBool("zst"); zst {
		c = codec.Zstd(c)
	}
	return []store.Option{
		store.WithCodec(c),
		store.WithLogger(baseLogger(cmd)),
	}, nil
}

func baseLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func basePaths(cmd *cobra.Command) (dataset, testcase string) {
	dir, _ := cmd.Flags().GetString("dir")
	name, _ := cmd.Flags().GetString("name")
	return filepath.Join(dir, name+"_dataset"), filepath.Join(dir, name+"_testcase")
}
