package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run <workbook.xlsx>",
	Short: "Process a single workbook and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		up, err := readUpload(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, up)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("workbook processed",
			zap.String("run_id", result.RunID),
			zap.Int("sheets", len(result.ProcessedSheets)),
			zap.Int("summary_points", len(result.GeneralSummary)),
		)

		return writeResult(os.Stdout, result)
	},
}

// readUpload loads an xlsx file from disk.
func readUpload(path string) (pipeline.Upload, error) {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return pipeline.Upload{}, eris.Errorf("only .xlsx files are supported: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, eris.Wrapf(err, "read %s", path)
	}
	return pipeline.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func writeResult(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
