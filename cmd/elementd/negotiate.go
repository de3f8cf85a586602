package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"elementd/internal/registry"
	"elementd/internal/service"
	"elementd/pkg/types"
)

var negotiateCmd = &cobra.Command{
	Use:   "negotiate <element-file>",
	Short: "Score an element's representations for a set of client capabilities",
	Args:  cobra.ExactArgs(1),
	RunE:  runNegotiate,
}

func init() {
	rootCmd.AddCommand(negotiateCmd)
	negotiateCmd.Flags().String("accept", "*/*", "Comma-separated accept entries, e.g. image/webp,image/*;q=0.8")
	negotiateCmd.Flags().Int("width", 0, "Viewport width in px")
	negotiateCmd.Flags().Int("height", 0, "Viewport height in px")
	negotiateCmd.Flags().Float64("density", 0, "Device pixel ratio")
	negotiateCmd.Flags().String("network", "", "FAST, SLOW or CELLULAR")
	negotiateCmd.Flags().Int64("max-bytes", 0, "Largest acceptable payload in bytes")
	negotiateCmd.Flags().Bool("json", false, "Print the full result as JSON")
}

// capabilitiesFromFlags builds capabilities; hints stay nil when no hint flag is set.
func capabilitiesFromFlags(cmd *cobra.Command) types.Capabilities {
	f := cmd.Flags()
	accept, _ := f.GetString("accept")
	caps := types.Capabilities{Accept: splitCSV(accept)}
	var h types.Hints
	h.Width, _ = f.GetInt("width")
	h.Height, _ = f.GetInt("height")
	h.Density, _ = f.GetFloat64("density")
	network, _ := f.GetString("network")
	h.Network = types.NetworkClass(network)
	h.MaxBytes, _ = f.GetInt64("max-bytes")
	if h != (types.Hints{}) {
		caps.Hints = &h
	}
	return caps
}

func runNegotiate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	el, err := registry.LoadFile(args[0])
	if err != nil {
		return err
	}
	caps := capabilitiesFromFlags(cmd)
	if err := caps.Validate(); err != nil {
		return err
	}
	sel := service.ConfigFrom(cfg, nil).Resolver.Selector
	res := types.NegotiateResponse{Candidates: sel.Rank(el, caps)}
	if best, ok := sel.SelectBest(el, caps); ok {
		res.Selected = &best
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printRanking(cmd.OutOrStdout(), res)
	return nil
}

func printRanking(w io.Writer, res types.NegotiateResponse) {
	for i, c := range res.Candidates {
		mark := " "
		if res.Selected != nil && *res.Selected == c.Source {
			mark = "*"
		}
		loc := c.Source.URI
		if c.Source.Type == types.SourceInline {
			loc = fmt.Sprintf("inline (%d bytes)", c.Source.ByteSize())
		}
		fmt.Fprintf(w, "%s %d  %-24s matched=%-5v score=%.3f  %s\n", mark, i, c.Source.MediaType, c.Matched, c.Score, loc)
	}
	if res.Selected == nil {
		fmt.Fprintln(w, "no suitable representation")
	}
}
