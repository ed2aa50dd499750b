package main

import (
	goflag "flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/HigherOrderCO/hvm-bench/bench"
)

var (
	repoDir     string
	revs        []string
	timeoutSecs int
	buildSecs   int
	jobs        int
	programsDir string
	configPath  string
	keepWorkDir bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hvm-bench",
		Short:         "Compare hvm revisions across interpreted and compiled runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	klog.InitFlags(nil)
	root.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Build the given revisions and run the benchmark suite under every runtime",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd)
		},
	}
	benchCmd.Flags().StringVar(&repoDir, "repo-dir", "./hvm", "path to the local hvm repository")
	benchCmd.Flags().StringArrayVar(&revs, "revs", nil, "revision to benchmark (repeatable)")
	benchCmd.Flags().IntVar(&timeoutSecs, "timeout", 60, "per-benchmark timeout in seconds")
	benchCmd.Flags().IntVar(&buildSecs, "build-timeout", 600, "per-revision build timeout in seconds")
	benchCmd.Flags().IntVar(&jobs, "jobs", 1, "number of matrix cells to run concurrently")
	benchCmd.Flags().StringVar(&programsDir, "programs-dir", "./programs", "directory holding the benchmark programs")
	benchCmd.Flags().StringVar(&configPath, "config", "", "runtime matrix configuration file")
	benchCmd.Flags().BoolVar(&keepWorkDir, "keep", false, "keep checkouts and build outputs after the run")
	_ = benchCmd.MarkFlagRequired("revs")

	root.AddCommand(benchCmd)
	return root
}

func main() {
	defer klog.Flush()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBench(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := bench.LoadConfiguration(configPath)
	if err != nil {
		return err
	}
	files, err := bench.DiscoverSuite(programsDir)
	if err != nil {
		return err
	}

	work, err := os.MkdirTemp("", "hvm-bench-")
	if err != nil {
		return fmt.Errorf("unable to create the work directory: %w", err)
	}
	if keepWorkDir {
		klog.Infof("keeping work directory %s", work)
	} else {
		defer os.RemoveAll(work)
	}

	revisions, err := bench.ResolveRevisions(ctx, repoDir, revs, work)
	if err != nil {
		return err
	}
	showRevisions(os.Stderr, revisions)

	spawner := bench.NewSpawner()
	builder := bench.NewBuilder(
		bench.NewBuildRunner(cfg.Build, spawner),
		bench.NewToolchainProber(),
		time.Duration(buildSecs)*time.Second,
	)
	executor := bench.NewExecutor(spawner, work)
	scheduler := bench.NewScheduler(builder, executor, jobs, time.Duration(timeoutSecs)*time.Second)

	kinds := cfg.Kinds()
	matrix := scheduler.Execute(ctx, revisions, kinds, files)

	// Per-cell failures are already in the matrix; reaching this point is a
	// successful run.
	fmt.Print(bench.Render(matrix, revisions, kinds, files))
	return nil
}

func showRevisions(w io.Writer, revisions []bench.Revision) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Revision", "Commit"})
	for _, rev := range revisions {
		table.Append([]string{rev.Name, rev.ID})
	}
	table.Render()
}
