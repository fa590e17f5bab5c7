package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newGenCmd creates the 'gen' command, which writes an example input
// file for trying out the pipeline.
func newGenCmd() *cobra.Command {
	var (
		outputPath string
		count      int
		model      string
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate an example JSONL input file",
		Long: `Generate an example JSONL input file of chat completion requests.

Each line carries a numbered prompt and a metadata field with the row
number, so the unordered results can be joined back to their inputs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outputPath, err)
			}
			defer f.Close()

			w := bufio.NewWriter(f)
			enc := json.NewEncoder(w)
			for i := 0; i < count; i++ {
				request := map[string]any{
					"model": model,
					"messages": []map[string]any{
						{"role": "user", "content": fmt.Sprintf("Say hello %d times.", i+1)},
					},
					"max_tokens": 50,
					"metadata":   map[string]any{"row_id": i + 1},
				}
				if err := enc.Encode(request); err != nil {
					return fmt.Errorf("writing request %d: %w", i+1, err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("writing %s: %w", outputPath, err)
			}

			GetLogger().Infof("wrote %d example requests to %s", count, outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "requests.jsonl", "Output file path")
	cmd.Flags().IntVarP(&count, "count", "n", 100, "Number of requests to generate")
	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "Model name to place in each request")

	return cmd
}
