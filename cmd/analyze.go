package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/analysis"
)

var (
	analyzeInput    string
	analyzeBuffer   int
	analyzeContext  string
	analyzeTheme    string
	analyzeDatasets []string
	analyzeGuidance bool
	analyzeQuality  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a GeoJSON geometry and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := readInput(cmd.InOrStdin(), analyzeInput)
		if err != nil {
			return err
		}

		req, err := buildRequest(raw)
		if err != nil {
			return err
		}

		env, err := initAnalysis(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Runner.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis complete", zap.Int("datasets", len(resp.ResultList)))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

// readInput reads the geometry from a file, or from in when path is "-".
func readInput(in io.Reader, path string) ([]byte, error) {
	if path == "" {
		return nil, eris.New("--input is required")
	}
	if path == "-" {
		data, err := io.ReadAll(in)
		return data, eris.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// buildRequest assembles an analysis request from the command flags.
func buildRequest(geometry []byte) (analysis.Request, error) {
	req := analysis.Request{
		InputGeometry:   json.RawMessage(geometry),
		Buffer:          analyzeBuffer,
		Context:         analyzeContext,
		Theme:           analyzeTheme,
		IncludeGuidance: analyzeGuidance,
		IncludeQuality:  analyzeQuality,
	}
	for _, s := range analyzeDatasets {
		id, err := uuid.Parse(s)
		if err != nil {
			return req, eris.Wrapf(err, "invalid dataset id %q", s)
		}
		req.Datasets = append(req.Datasets, id)
	}
	return req, nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "GeoJSON geometry file, or - for stdin")
	analyzeCmd.Flags().IntVar(&analyzeBuffer, "buffer", 0, "buffer distance in meters")
	analyzeCmd.Flags().StringVar(&analyzeContext, "context", "", "request context used to filter quality indicators")
	analyzeCmd.Flags().StringVar(&analyzeTheme, "theme", "", "only analyze datasets with this theme")
	analyzeCmd.Flags().StringSliceVar(&analyzeDatasets, "dataset", nil, "dataset id to analyze (repeatable)")
	analyzeCmd.Flags().BoolVar(&analyzeGuidance, "guidance", true, "include guidance texts")
	analyzeCmd.Flags().BoolVar(&analyzeQuality, "quality", true, "include quality measurements")
	rootCmd.AddCommand(analyzeCmd)
}
