package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <search-index.js> [...]",
	Short: "Load rustdoc search indexes into the daemon",
	Long: `Load one or more rustdoc search indexes. Accepts search-index.js as written
by rustdoc, its JSON payload, or either compressed with zstd. A crate loaded
later replaces a crate of the same name from an earlier file.`,
	Example: `  ferrisfind load target/doc/search-index.js
  ferrisfind load ~/.rustup/toolchains/stable-x86_64-unknown-linux-gnu/share/doc/rust/html/search-index*.js`,
	Args: cobra.MinimumNArgs(1),
	Run:  runLoad,
}

func runLoad(cmd *cobra.Command, args []string) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			log.Fatalf("invalid path %s: %v", arg, err)
		}
		paths = append(paths, abs)
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Load(context.Background(), paths, func(msg string) {
		fmt.Printf("  %s\n", msg)
	})
	if err != nil {
		log.Fatalf("failed to load indexes: %v", err)
	}

	failed := false
	for _, r := range resp.Results {
		if r.Error != "" {
			failed = true
			fmt.Printf("  %s: error: %s\n", r.Name, r.Error)
		} else {
			fmt.Printf("  %s: %d crates, %d items\n", r.Name, len(r.Crates), r.Items)
		}
	}
	if failed {
		os.Exit(1)
	}
}

var unloadCmd = &cobra.Command{
	Use:   "unload <name|path> [...]",
	Short: "Remove loaded indexes by name or file path",
	Long: `Remove loaded indexes. An argument naming an existing file is taken as the
path the index was loaded from; anything else is a name shown by status.`,
	Example: `  ferrisfind unload search-index.js
  ferrisfind unload ../other/target/doc/search-index.js`,
	Args: cobra.MinimumNArgs(1),
	Run:  runUnload,
}

func runUnload(cmd *cobra.Command, args []string) {
	// The daemon resolves paths against its own working directory, so send
	// existing files as absolute paths.
	keys := make([]string, 0, len(args))
	for _, arg := range args {
		if _, err := os.Stat(arg); err == nil {
			if abs, err := filepath.Abs(arg); err == nil {
				arg = abs
			}
		}
		keys = append(keys, arg)
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Unload(context.Background(), keys)
	if err != nil {
		log.Fatalf("unload failed: %v", err)
	}

	for _, name := range resp.Removed {
		fmt.Printf("  %s: unloaded\n", name)
	}
	if missing := len(keys) - len(resp.Removed); missing > 0 {
		fmt.Printf("  %d of %d not loaded\n", missing, len(keys))
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loaded indexes and daemon state",
	Run:   runStatus,
}

var statusOutput string

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text, json, or yaml")
}

func runStatus(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Status(context.Background())
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}

	if statusOutput != "text" {
		if err := writeStructured(os.Stdout, statusOutput, resp); err != nil {
			log.Fatal(err)
		}
		return
	}

	if len(resp.Sources) == 0 {
		fmt.Println("no indexes loaded")
		return
	}

	for _, src := range resp.Sources {
		fmt.Printf("%s (%s, loaded %s)\n", src.Name, src.Path, src.LoadedAt.Local().Format("2006-01-02 15:04"))
		for _, c := range src.Crates {
			fmt.Printf("  %s: %d items\n", c.Name, c.Items)
		}
	}
	fmt.Printf("%d items searchable\n", resp.Items)
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached index snapshots no loaded source refers to",
	Run:   runPrune,
}

func runPrune(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Prune(context.Background())
	if err != nil {
		log.Fatalf("prune failed: %v", err)
	}
	fmt.Printf("removed %d snapshots\n", resp.Removed)
}
