package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/page"
	"github.com/mj1618/web-bridge/internal/platform"
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [payload]",
	Short: "Run one command against a page",
	Long: `Load a page into a headless tab and run one command against it.

The payload is a JSON or YAML object with the command's fields. Page
commands run in every same-origin frame unless the payload names a frameId.

Examples:
  web-bridge exec list_elements --url https://example.com
  web-bridge exec get_form_structure --file signup.html
  web-bridge exec fill '{selector: "#email", value: a@b.test}' --file signup.html --then get_form_structure`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	addHostFlags(execCmd)
	execCmd.Flags().String("url", "", "Open this URL first")
	execCmd.Flags().String("file", "", "Open this local HTML file first")
	execCmd.Flags().String("html", "", "Open this inline markup first")
	execCmd.Flags().String("payload", "", "Read the payload from this file instead of an argument")
	execCmd.Flags().StringArray("then", nil, "Run another command (no payload) afterwards and print its result instead")
	execCmd.Flags().Bool("list", false, "List the available commands and exit")
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	h, err := openHost(cmd)
	if err != nil {
		return err
	}
	defer h.Close()

	if list, _ := cmd.Flags().GetBool("list"); list {
		return printer.Print(commandNames(h))
	}

	target, err := execTarget(cmd)
	if err != nil {
		return err
	}
	if target != nil {
		if err := h.open(ctx, []platform.CreateOptions{*target}); err != nil {
			return err
		}
	}

	raw := ""
	if len(args) > 1 {
		raw = args[1]
	}
	if path, _ := cmd.Flags().GetString("payload"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		raw = string(data)
	}
	payload, err := parsePayload(raw)
	if err != nil {
		return err
	}

	res, err := h.dispatch.HandleCommand(ctx, args[0], payload)
	if err != nil {
		return err
	}
	then, _ := cmd.Flags().GetStringArray("then")
	for _, action := range then {
		if res, err = h.dispatch.HandleCommand(ctx, action, nil); err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
	}
	return printer.Print(res)
}

// execTarget reads --url, --file and --html. At most one may be set.
func execTarget(cmd *cobra.Command) (*platform.CreateOptions, error) {
	u, _ := cmd.Flags().GetString("url")
	file, _ := cmd.Flags().GetString("file")
	html, _ := cmd.Flags().GetString("html")
	set := 0
	for _, s := range []string{u, file, html} {
		if s != "" {
			set++
		}
	}
	switch {
	case set > 1:
		return nil, fmt.Errorf("--url, --file and --html are exclusive")
	case u != "":
		return &platform.CreateOptions{URL: u}, nil
	case file != "":
		fu, err := fileURL(file)
		if err != nil {
			return nil, err
		}
		return &platform.CreateOptions{URL: fu}, nil
	case html != "":
		return &platform.CreateOptions{HTML: html}, nil
	}
	return nil, nil
}

// commandNames lists tab-level and page commands together.
func commandNames(h *host) map[string][]string {
	tab := h.dispatch.Commands()
	sort.Strings(tab)
	return map[string][]string{
		"tab":  tab,
		"page": pageCommands(),
	}
}

func pageCommands() []string {
	loop := dom.NewLoop()
	defer loop.Stop()
	names := page.New(loop, dom.MustParse(""), page.Options{}).Actions()
	sort.Strings(names)
	return names
}
