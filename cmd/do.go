package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mj1618/web-bridge/internal/platform"
	"github.com/mj1618/web-bridge/internal/server"
)

// DoResult is the output of a batch do command.
type DoResult struct {
	OK        bool                `json:"ok"`
	Action    string              `json:"action"`
	Steps     int                 `json:"steps"`
	Completed int                 `json:"completed"`
	Error     string              `json:"error,omitempty"`
	Results   []server.StepResult `json:"results"`
}

var doCmd = &cobra.Command{
	Use:   "do",
	Short: "Execute multiple commands in a batch",
	Long: `Execute a sequence of commands from a YAML list on stdin.

Each step is a command name mapped to its fields. Steps execute sequentially
against the same tab, and by default execution stops on the first error.

Example:
  web-bridge do --file signup.html <<'EOF'
  - fill: { selector: "#email", value: "john@example.com" }
  - select_option: { selector: "#plan", value: "Pro" }
  - click_by_text: { text: "Create account" }
  - wait_for_selector: { selector: ".welcome", timeout: 5000 }
  EOF`,
	RunE: runDo,
}

func init() {
	rootCmd.AddCommand(doCmd)
	addHostFlags(doCmd)
	doCmd.Flags().String("url", "", "Open this URL first")
	doCmd.Flags().String("file", "", "Open this local HTML file first")
	doCmd.Flags().String("html", "", "Open this inline markup first")
	doCmd.Flags().Bool("stop-on-error", true, "Stop execution on first error (default: true)")
}

func runDo(cmd *cobra.Command, args []string) error {
	stopOnError, _ := cmd.Flags().GetBool("stop-on-error")

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	steps, err := parseSteps(data)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	h, err := openHost(cmd)
	if err != nil {
		return err
	}
	defer h.Close()

	target, err := execTarget(cmd)
	if err != nil {
		return err
	}
	if target != nil {
		if err := h.open(ctx, []platform.CreateOptions{*target}); err != nil {
			return err
		}
	}

	srv := server.New(h.dispatch, server.Config{Logger: logger})
	results := srv.RunSteps(ctx, steps, nil, stopOnError)

	out := DoResult{OK: true, Action: "do", Steps: len(steps), Results: results}
	for _, r := range results {
		if r.OK {
			out.Completed++
			continue
		}
		out.OK = false
		if out.Error == "" && r.Error != nil {
			out.Error = fmt.Sprintf("step %d: %s", r.Step, r.Error.Message)
		}
	}
	if err := printer.Print(out); err != nil {
		return err
	}
	if !out.OK {
		cmd.SilenceErrors = true
		return errors.New(out.Error)
	}
	return nil
}

// parseSteps reads a YAML list of steps. A step is either a single
// command key mapped to its fields or a mapping with an "action" key.
func parseSteps(data []byte) ([]map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no steps provided on stdin, pipe a YAML list of commands")
	}
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML steps: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no steps provided, expected a YAML list of commands")
	}

	steps := make([]map[string]any, 0, len(raw))
	for i, step := range raw {
		if _, ok := step["action"]; ok {
			steps = append(steps, step)
			continue
		}
		if len(step) != 1 {
			return nil, fmt.Errorf("step %d: expected exactly one command key, got %d", i+1, len(step))
		}
		for action, params := range step {
			out := map[string]any{"action": action}
			switch p := params.(type) {
			case nil:
			case map[string]any:
				for k, v := range p {
					out[k] = v
				}
			default:
				return nil, fmt.Errorf("step %d: fields of %s must be a mapping", i+1, action)
			}
			steps = append(steps, out)
		}
	}
	return steps, nil
}
