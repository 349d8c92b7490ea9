package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mj1618/web-bridge/internal/dispatch"
	"github.com/mj1618/web-bridge/internal/platform"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture a screenshot of a page",
	Long: `Render a page in Chrome and capture its viewport for vision model fallback.

With --annotate every interactive element in view is outlined and labelled
with its index, so a vision model can answer with an index that the page
commands accept.`,
	RunE: runScreenshot,
}

func init() {
	rootCmd.AddCommand(screenshotCmd)
	addHostFlags(screenshotCmd)
	screenshotCmd.Flags().String("url", "", "Open this URL first")
	screenshotCmd.Flags().String("file", "", "Open this local HTML file first")
	screenshotCmd.Flags().String("html", "", "Open this inline markup first")
	screenshotCmd.Flags().String("output", "", "Output file path (default: stdout as base64)")
	screenshotCmd.Flags().String("format", "png", "Output format: png, jpg")
	screenshotCmd.Flags().Int("quality", 80, "JPEG quality 1-100")
	screenshotCmd.Flags().Float64("scale", 0.5, "Scale factor 0.1-1.0 (for token efficiency)")
	screenshotCmd.Flags().Bool("annotate", false, "Outline interactive elements")
	screenshotCmd.Flags().String("labels", "index", "Annotation labels: index, coords")
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	quality, _ := cmd.Flags().GetInt("quality")
	scale, _ := cmd.Flags().GetFloat64("scale")
	annotate, _ := cmd.Flags().GetBool("annotate")
	labels, _ := cmd.Flags().GetString("labels")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	target, err := execTarget(cmd)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("one of --url, --file or --html is required")
	}
	h, err := openHost(cmd)
	if err != nil {
		return err
	}
	defer h.Close()
	if err := h.open(ctx, []platform.CreateOptions{*target}); err != nil {
		return err
	}

	payload, err := json.Marshal(platform.ScreenshotOptions{
		Format:   format,
		Quality:  quality,
		Scale:    scale,
		Annotate: annotate,
		Labels:   labels,
	})
	if err != nil {
		return err
	}
	res, err := h.dispatch.HandleCommand(ctx, "screenshot", payload)
	if err != nil {
		return err
	}
	var shot dispatch.Screenshot
	if err := json.Unmarshal(res, &shot); err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}

	if output != "" {
		data, err := base64.StdEncoding.DecodeString(shot.Data)
		if err != nil {
			return fmt.Errorf("decode screenshot: %w", err)
		}
		return os.WriteFile(output, data, 0644)
	}

	// Default: base64 on stdout for easy agent consumption.
	_, err = fmt.Fprintln(cmd.OutOrStdout(), shot.Data)
	return err
}
