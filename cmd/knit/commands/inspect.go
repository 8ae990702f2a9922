package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.trai.ch/knit/internal/core/domain"
)

func (c *CLI) newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the result of the last build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ov, err := overrides(cmd, nil)
			if err != nil {
				return err
			}
			result, err := c.app.Inspect(cmd.Context(), projectDir(cmd), ov)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return renderJSON(cmd.OutOrStdout(), result)
			}
			return renderText(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().Bool("json", false, "Print machine-readable JSON")
	return cmd
}

type inspectReport struct {
	Bundler  string              `json:"bundler"`
	Bundles  []domain.BundleInfo `json:"bundles"`
	Assets   []inspectAsset      `json:"assets"`
	Requests inspectRequests     `json:"requests"`
}

type inspectAsset struct {
	FilePath     string `json:"filePath"`
	Type         string `json:"type"`
	Size         int    `json:"size"`
	Dependencies int    `json:"dependencies"`
	Entry        bool   `json:"entry,omitempty"`
}

type inspectRequests struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"byState"`
	ByKind  map[string]int `json:"byKind"`
}

func newInspectReport(result *domain.BuildResult) inspectReport {
	report := inspectReport{
		Bundles: result.BundleInfo,
		Assets:  []inspectAsset{},
		Requests: inspectRequests{
			ByState: map[string]int{},
			ByKind:  map[string]int{},
		},
	}
	if report.Bundles == nil {
		report.Bundles = []domain.BundleInfo{}
	}
	if result.BundleGraph != nil {
		report.Bundler = result.BundleGraph.Bundler
	}
	if g := result.AssetGraph; g != nil {
		entries := make(map[domain.AssetIndex]bool, len(g.Entries))
		for _, e := range g.Entries {
			entries[e] = true
		}
		for idx, a := range g.Walk() {
			report.Assets = append(report.Assets, inspectAsset{
				FilePath:     a.FilePath.String(),
				Type:         a.Type.String(),
				Size:         len(a.Content),
				Dependencies: len(a.Dependencies),
				Entry:        entries[idx],
			})
		}
		slices.SortFunc(report.Assets, func(a, b inspectAsset) int {
			return strings.Compare(a.FilePath, b.FilePath)
		})
	}
	if snap := result.RequestTracker; snap != nil {
		report.Requests.Total = len(snap.Nodes)
		for state, n := range snap.CountByState() {
			report.Requests.ByState[state.String()] = n
		}
		for kind, n := range snap.CountByKind() {
			report.Requests.ByKind[string(kind)] = n
		}
	}
	return report
}

func renderJSON(w io.Writer, result *domain.BuildResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newInspectReport(result))
}

func renderText(w io.Writer, result *domain.BuildResult) error {
	report := newInspectReport(result)
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(tw, "Bundler: %s\n\n", report.Bundler)

	_, _ = fmt.Fprintf(tw, "Bundles (%d)\n", len(report.Bundles))
	_, _ = fmt.Fprintln(tw, "  FILE\tTYPE\tSIZE\tASSETS\tHASH")
	for _, b := range report.Bundles {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\n", b.FilePath, b.Type, b.Size, b.AssetCount, shortHash(b.Hash))
	}

	_, _ = fmt.Fprintf(tw, "\nAssets (%d)\n", len(report.Assets))
	_, _ = fmt.Fprintln(tw, "  FILE\tTYPE\tSIZE\tDEPS\t")
	for _, a := range report.Assets {
		marker := ""
		if a.Entry {
			marker = "entry"
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\n", a.FilePath, a.Type, a.Size, a.Dependencies, marker)
	}

	_, _ = fmt.Fprintf(tw, "\nRequests (%d)\n", report.Requests.Total)
	for _, kind := range slices.Sorted(maps.Keys(report.Requests.ByKind)) {
		_, _ = fmt.Fprintf(tw, "  %s\t%d\n", kind, report.Requests.ByKind[kind])
	}
	for _, state := range slices.Sorted(maps.Keys(report.Requests.ByState)) {
		_, _ = fmt.Fprintf(tw, "  [%s]\t%d\n", state, report.Requests.ByState[state])
	}
	return tw.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
