package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/pipeline"
)

var (
	runExecMode  string
	runChartOut  string
	runJSON      bool
	runDelimiter string
	runTimeout   int
)

var runScriptCmd = &cobra.Command{
	Use:   "run <file> <script.lua>",
	Short: "Run a local Lua analysis script against a dataset",
	Long: `Run executes a Lua script with the same globals generated code sees
(df, vz, result, chart). Use it to replay or tweak code from a previous answer.`,
	Example: `  vizloom run titanic.csv fares.lua --chart-out fares.png
  vizloom run titanic.csv fares.lua --exec-mode sandboxed --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		dopt, err := datasetOptions(cfg, runDelimiter)
		if err != nil {
			return err
		}
		ds, err := loadDatasetFile(args[0], dopt)
		if err != nil {
			return err
		}
		ex, err := newExecutor(cfg, runExecMode)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(runTimeout)*time.Second)
			defer cancel()
		}

		p := pipeline.New(nil, ex, pipelineOptions(cfg, ""), pipeline.WithLogger(log))
		res, runErr := p.Run(ctx, ds, string(code))
		if err := writeResult(nil, res, runErr, outputOptions{
			JSON:     runJSON,
			ChartOut: runChartOut,
			ChartW:   chartWidth(),
			ChartH:   chartHeight(),
			Writer:   cmd.OutOrStdout(),
		}); err != nil {
			return err
		}
		if runErr != nil {
			return fmt.Errorf("%s", pipeline.UserMessage(runErr))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runScriptCmd)
	runScriptCmd.Flags().StringVar(&runExecMode, "exec-mode", "", "how to run the script: trusted|sandboxed")
	runScriptCmd.Flags().StringVar(&runChartOut, "chart-out", "", "write the chart to this PNG file")
	runScriptCmd.Flags().BoolVar(&runJSON, "json", false, "emit the result as JSON")
	runScriptCmd.Flags().StringVar(&runDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (auto if omitted)")
	runScriptCmd.Flags().IntVar(&runTimeout, "timeout-sec", 0, "abort the script after this many seconds (0 uses the exec mode default)")
}
