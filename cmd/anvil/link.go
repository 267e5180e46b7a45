package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"anvil/internal/artifact"
	"anvil/internal/harness"
	"anvil/internal/link"
	"anvil/internal/observ"
)

var (
	linkStrategy     string
	linkOutputDir    string
	linkSearchPath   string
	linkLibrary      string
	linkExtraObjects []string
	linkRun          bool
	linkJobs         int
)

func init() {
	linkCmd.Flags().StringVar(&linkStrategy, "strategy", "dynamic-pie", "link strategy (dynamic-pie|static)")
	linkCmd.Flags().StringVarP(&linkOutputDir, "output-dir", "o", ".", "directory for produced executables")
	linkCmd.Flags().StringVarP(&linkSearchPath, "search-path", "L", "", "extra library search path")
	linkCmd.Flags().StringVarP(&linkLibrary, "library", "l", "", "extra library name (dynamic-pie only)")
	linkCmd.Flags().StringArrayVar(&linkExtraObjects, "extra-object", nil, "extra object file linked after the artifact (repeatable)")
	linkCmd.Flags().BoolVar(&linkRun, "run", false, "run each executable after linking and report its exit code")
	linkCmd.Flags().IntVar(&linkJobs, "jobs", 0, "number of parallel link jobs (0 = GOMAXPROCS)")
}

var linkCmd = &cobra.Command{
	Use:   "link [flags] <artifact" + artifact.Ext + ">...",
	Short: "Link artifact files into executables",
	Long:  "Link relocatable artifact files against the system C runtime, producing one executable per input.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  linkExecution,
}

type linkResult struct {
	input    string
	output   string
	imports  []string
	exitCode int
	ran      bool
	err      error
}

func linkExecution(cmd *cobra.Command, args []string) error {
	if err := applyColorMode(cmd); err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return err
	}

	strategy, err := link.ParseStrategy(linkStrategy)
	if err != nil {
		return err
	}
	cfg, err := link.ResolveConfig(".")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(linkOutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	timer := observ.NewTimer()
	jobs := linkJobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]linkResult, len(args))
	phase := timer.Begin("link")

	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(min(jobs, len(args)))
	for i, input := range args {
		g.Go(func(i int, input string) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				results[i] = linkOne(gctx, &cfg, strategy, input)
				return nil
			}
		}(i, input))
	}
	if err := g.Wait(); err != nil {
		return err
	}
	timer.End(phase, fmt.Sprintf("%d artifact(s)", len(args)))

	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("error:"), res.input, res.err)
			continue
		}
		if quiet {
			continue
		}
		line := fmt.Sprintf("%s %s -> %s", color.GreenString("linked"), res.input, res.output)
		if len(res.imports) > 0 {
			line += fmt.Sprintf(" (imports: %s)", strings.Join(res.imports, ", "))
		}
		fmt.Println(line)
		if res.ran {
			fmt.Printf("%s %s exited with code %d\n", color.CyanString("ran"), res.output, res.exitCode)
		}
	}
	if showTimings {
		fmt.Print(timer.Summary())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d link(s) failed", failed, len(args))
	}
	return nil
}

func linkOne(ctx context.Context, cfg *link.Config, strategy link.Strategy, input string) linkResult {
	res := linkResult{input: input}

	art, err := artifact.Load(input)
	if err != nil {
		res.err = err
		return res
	}
	res.imports = art.Imports

	sess, err := harness.NewSession(art.Name)
	if err != nil {
		res.err = err
		return res
	}
	if err := sess.WriteObject(art.Object); err != nil {
		res.err = err
		return res
	}

	outName := strings.TrimSuffix(filepath.Base(input), artifact.Ext)
	outPath := filepath.Join(linkOutputDir, outName)
	plan := &link.Plan{
		Name:            art.Name,
		ObjectPath:      sess.ObjectPath,
		ExtraSearchPath: linkSearchPath,
		ExtraLibrary:    linkLibrary,
		ExtraObjects:    linkExtraObjects,
		OutputPath:      outPath,
		Strategy:        strategy,
	}
	out, err := link.Link(ctx, cfg, plan)
	if err != nil {
		// The object file stays behind for inspection.
		res.err = fmt.Errorf("%w (object retained at %s)", err, sess.ObjectPath)
		return res
	}
	res.output = out
	if err := os.Remove(sess.ObjectPath); err != nil {
		res.err = fmt.Errorf("failed to remove temp object: %w", err)
		return res
	}

	if linkRun {
		code, err := harness.Run(ctx, out)
		if err != nil {
			res.err = err
			return res
		}
		res.ran = true
		res.exitCode = code
	}
	return res
}
