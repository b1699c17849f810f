package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/render"
	"github.com/KaramelBytes/vizloom/internal/utils"
)

var (
	inspectRows      int
	inspectFull      bool
	inspectDelimiter string
	inspectMaxRows   int
	inspectOutput    string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the schema summary and preview of a dataset",
	Example: `  vizloom inspect titanic.csv
  vizloom inspect sales.csv --delimiter ';' --rows 10
  vizloom inspect titanic.csv --full --output titanic.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dopt, err := datasetOptions(cfg, inspectDelimiter)
		if err != nil {
			return err
		}
		if inspectRows > 0 {
			dopt.SampleRows = inspectRows
		}
		if inspectMaxRows > 0 {
			dopt.MaxRows = inspectMaxRows
		}
		ds, err := loadDatasetFile(args[0], dopt)
		if err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString(ds.Summary().Markdown())
		if inspectFull {
			b.WriteString("\n## All rows\n\n")
			b.WriteString(render.TableText(&executor.Table{Columns: ds.ColumnNames(), Rows: ds.Rows()}, 0))
		}
		out := b.String()

		if inspectOutput != "" {
			if err := utils.SafeWriteFile(inspectOutput, []byte(out)); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote summary of %s (%d rows, %d columns) to %s\n", ds.Name, ds.NumRows(), ds.NumCols(), inspectOutput)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().IntVar(&inspectRows, "rows", 0, "number of preview rows (default from config)")
	inspectCmd.Flags().BoolVar(&inspectFull, "full", false, "print every row after the summary")
	inspectCmd.Flags().StringVar(&inspectDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (auto if omitted)")
	inspectCmd.Flags().IntVar(&inspectMaxRows, "max-rows", 0, "stop reading after this many rows (0 = all)")
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "", "write the summary to a file instead of stdout")
}
