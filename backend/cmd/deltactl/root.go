package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"deltaServer/backend/internal/ot/delta"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var pretty bool
	root := &cobra.Command{
		Use:   "deltactl",
		Short: "Compose, transform and diff rich-text deltas",
		Long: `deltactl runs the delta algebra on JSON deltas. Every <delta> argument
is either a path to a JSON file, "-" for stdin, or inline JSON starting with
'[' or '{'. Both the bare op array and the {"ops":[...]} form are accepted.

Example:
  deltactl compose doc.json change.json
  deltactl transform '[{"insert":"A"}]' '[{"insert":"B"}]' --priority
  deltactl position change.json 12`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "Indent JSON output")

	out := func(cmd *cobra.Command, v any) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		if pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(v)
	}

	root.AddCommand(
		newPairCmd("compose <a> <b>", "Apply b on top of a", out,
			func(a, b delta.Delta, _ bool) (delta.Delta, error) { return a.Compose(b) }),
		newPairCmd("diff <a> <b>", "Change that turns document a into document b", out,
			func(a, b delta.Delta, _ bool) (delta.Delta, error) { return a.Diff(b) }),
		newPairCmd("transform <a> <b>", "Rewrite b to apply after a; --priority means a happened first", out,
			func(a, b delta.Delta, priority bool) (delta.Delta, error) { return a.Transform(b, priority) }),
		newPairCmd("invert <change> <base>", "Change that undoes <change> applied to <base>", out,
			func(change, base delta.Delta, _ bool) (delta.Delta, error) { return change.Invert(base) }),
		newPositionCmd(out),
		newStatCmd(out),
		newFmtCmd(),
		newAppendCmd(out),
	)
	return root
}

// readDelta 支持文件路径、"-"（stdin）和内联 JSON
func readDelta(cmd *cobra.Command, arg string) (delta.Delta, error) {
	var (
		data []byte
		err  error
	)
	trimmed := bytes.TrimSpace([]byte(arg))
	switch {
	case arg == "-":
		data, err = io.ReadAll(cmd.InOrStdin())
	case len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{'):
		data = trimmed
	default:
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, err
	}
	d, err := delta.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", arg, err)
	}
	return d, nil
}
