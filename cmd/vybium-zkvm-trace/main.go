// vybium-zkvm-trace executes a transaction batch and prints the shape of
// the generated trace tables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	vybiumzkvm "github.com/vybium/vybium-zkvm/pkg/vybium-zkvm"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type options struct {
	configPath   string
	inputPath    string
	logLevel     string
	storagePath  string
	checkLookups bool
	concurrency  int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal(err.Error())
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "vybium-zkvm-trace",
		Short: "Execute a transaction batch and generate its trace tables",
		Long: `Reads a JSON batch (programs, transactions, block metadata), executes it
on the Vybium zkVM and prints the height, width and digest of every trace table.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			level, _ := logrus.ParseLevel(config.LogLevel)
			logrus.SetLevel(level)

			in, closeIn, err := openInput(opts.inputPath)
			if err != nil {
				return err
			}
			defer closeIn()
			batch, err := parseInput(in)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, config, batch, cmd.OutOrStdout())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (yaml, json or toml)")
	flags.StringVarP(&opts.inputPath, "input", "i", "-", "Batch input file, - for stdin")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.storagePath, "storage", "", "LevelDB directory for contract storage (in memory when empty)")
	flags.BoolVar(&opts.checkLookups, "check-lookups", true, "Verify cross-table lookups after generation")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "Max table generators running at once (0 = one per table)")

	return rootCmd
}

// loadConfig layers explicitly set flags over the config file
func loadConfig(cmd *cobra.Command, opts options) (*vybiumzkvm.Config, error) {
	config, err := vybiumzkvm.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		config.WithLogLevel(opts.logLevel)
	}
	if flags.Changed("storage") {
		config.WithStoragePath(opts.storagePath)
	}
	if flags.Changed("check-lookups") {
		config.WithCheckLookups(opts.checkLookups)
	}
	if flags.Changed("concurrency") {
		config.WithConcurrency(opts.concurrency)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func run(ctx context.Context, config *vybiumzkvm.Config, batch *parsedBatch, out io.Writer) error {
	exec, err := vybiumzkvm.NewExecutor(config)
	if err != nil {
		return err
	}
	defer exec.Close()

	for _, addr := range batch.order {
		if err := exec.Deploy(addr, batch.programs[addr]); err != nil {
			return fmt.Errorf("deploy %s: %w", addr, err)
		}
	}

	traces, err := exec.Run(ctx, batch.txs, batch.metadata)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, summary(len(batch.txs), traces).String())
	return err
}

func summary(txs int, traces *vybiumzkvm.Traces) treeprint.Tree {
	tree := treeprint.New()
	pv := traces.PublicValues
	tree.SetValue(fmt.Sprintf("batch: %d txs, block %d", txs, pv.BlockMetadata.BlockNumber))
	tree.AddNode(fmt.Sprintf("state root before: %s", pv.TrieRootsBefore.StateRoot))
	tree.AddNode(fmt.Sprintf("state root after:  %s", pv.TrieRootsAfter.StateRoot))

	tbls := tree.AddBranch("tables")
	for _, id := range vybiumzkvm.AllTables() {
		tbl := traces.Tables[id]
		branch := tbls.AddBranch(id.String())
		branch.AddNode(fmt.Sprintf("height: %d", tbl.Height()))
		branch.AddNode(fmt.Sprintf("width: %d", tbl.Width()))
		branch.AddNode(fmt.Sprintf("digest: %#x", traces.Digests[id].Value()))
	}

	if traces.Lookups != nil {
		tree.AddNode(fmt.Sprintf("lookups: %d verified", len(traces.Lookups)))
	} else {
		tree.AddNode("lookups: not checked")
	}
	return tree
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}
