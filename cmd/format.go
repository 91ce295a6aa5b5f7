package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/depobot/internal/transcript"
)

func newFormatCmd() *cobra.Command {
	var (
		pageSize int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "format <raw-transcript.json>",
		Short: "Render a raw transcript as paginated Q/A text",
		Long: `Read a transcript downloaded from Recall.ai (the *.json files stored under
meeting_transcripts/) and print it in the deposition format: numbered lines,
host lines marked Q and everyone else A, grouped into pages.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return formatFile(args[0], pageSize, cmd.OutOrStdout())
			}
			return formatToFile(args[0], pageSize, output)
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", transcript.DefaultPageSize, "Lines per page")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

// formatToFile writes the rendered transcript to output. A failed close is
// reported since it can mean the data never reached disk.
func formatToFile(path string, pageSize int, output string) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to write %s: %w", output, closeErr)
		}
	}()
	return formatFile(path, pageSize, f)
}

func formatFile(path string, pageSize int, w io.Writer) error {
	if pageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	raw, err := transcript.Parse(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, transcript.Render(transcript.Format(raw, pageSize)))
	return err
}
