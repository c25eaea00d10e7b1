package main

import (
	"fmt"
	"io"
	"os"

	"github.com/getpup/streamcoord/command"
	"github.com/getpup/streamcoord/execution"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// submitOutput is the JSON report printed by submit.
type submitOutput struct {
	Kind     string `json:"kind"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message,omitempty"`
	Executed int    `json:"executed"`
	Failed   int    `json:"failed"`
}

func newSubmitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit FILE",
		Short: "Execute a JSON command tree (- reads stdin) and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			c, err := command.Decode(data)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, opts.signalsOut, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.coord.Submit(cmd.Context(), c)
			if err := printReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Result.Failed() {
				return fmt.Errorf("command failed: %s", report.Result)
			}
			return nil
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read command file: %w", err)
	}
	return data, nil
}

func printReport(w io.Writer, report execution.Report) error {
	out := submitOutput{
		Kind:     "none",
		Code:     report.Result.Code.String(),
		Category: string(report.Result.Code.Category()),
		Message:  report.Result.Message,
		Executed: report.Executed,
		Failed:   report.Failed,
	}
	if report.Result.Command != nil {
		out.Kind = report.Result.Command.Kind().String()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
