// output.go renders the run report in the format selected with -o/--output.
//
// The text format goes through the ui package. JSON and YAML share one
// serializable view of the report, so both carry the same field names:
// per-target errors are flattened to strings and every result gets an
// explicit "ok" flag for scripts.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/mkhosts/internal/model"
	"github.com/shinji-kodama/mkhosts/internal/ui"
)

// Report formats accepted by -o/--output.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// validateOutputFormat rejects unknown -o values before a command runs.
func validateOutputFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid output format %q: valid values are text, json, yaml", format))
	}
}

// reportView is the serialized form of a RunReport. HostResult errors are
// not serializable, so results carry their message instead.
type reportView struct {
	NamePrefix   string            `json:"namePrefix" yaml:"namePrefix"`
	Addresses    model.AddressList `json:"addresses" yaml:"addresses"`
	Entries      []model.HostEntry `json:"entries" yaml:"entries"`
	LocalEntries []model.HostEntry `json:"localEntries,omitempty" yaml:"localEntries,omitempty"`
	Results      []resultView      `json:"results" yaml:"results"`
}

// resultView flattens a HostResult. The embedded fields are inlined in
// both JSON and YAML.
type resultView struct {
	model.HostResult `yaml:",inline"`
	OK               bool   `json:"ok" yaml:"ok"`
	Error            string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newReportView(r *model.RunReport) reportView {
	v := reportView{
		NamePrefix:   r.NamePrefix,
		Addresses:    r.Addresses,
		Entries:      r.Entries,
		LocalEntries: r.LocalEntries,
		Results:      make([]resultView, 0, len(r.Results)),
	}
	// Empty lists are written as [] rather than null.
	if v.Addresses.Private == nil {
		v.Addresses.Private = []string{}
	}
	if v.Addresses.Public == nil {
		v.Addresses.Public = []string{}
	}
	if v.Entries == nil {
		v.Entries = []model.HostEntry{}
	}
	for _, res := range r.Results {
		v.Results = append(v.Results, resultView{HostResult: res, OK: res.OK(), Error: res.Error()})
	}
	return v
}

// writeReport renders r to w in the given format.
func writeReport(w io.Writer, r *model.RunReport, format string) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(newReportView(r), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case formatYAML:
		// Two-space indentation matches the JSON output.
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newReportView(r)); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()

	default:
		_, err := io.WriteString(w, ui.Report(r))
		return err
	}
}
