package cmd

import (
	"fmt"
	"runtime"

	"github.com/bytedance/sonic"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/core/window"
)

var (
	extended    bool
	versionJSON bool
)

type versionReport struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Go        string `json:"go,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
	Crucible  string `json:"crucible,omitempty"`
	Capacity  int    `json:"buffer_capacity,omitempty"`
}

func buildVersionReport(full bool) versionReport {
	report := versionReport{Name: config.AppName, Version: versionInfo.Version}
	if !full {
		return report
	}
	v := crucible.GetVersion()
	report.Commit = versionInfo.Commit
	report.BuildDate = versionInfo.BuildDate
	report.Go = runtime.Version()
	report.Gofulmen = v.Gofulmen
	report.Crucible = v.Crucible
	report.Capacity = window.Capacity
	return report
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, toolchain and buffer details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := buildVersionReport(extended)
		out := cmd.OutOrStdout()

		if versionJSON {
			data, err := sonic.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		}

		fmt.Fprintf(out, "%s %s\n", report.Name, report.Version)
		if !extended {
			return nil
		}
		fmt.Fprintf(out, "Commit: %s\nBuilt: %s\nGo: %s\n\n", report.Commit, report.BuildDate, report.Go)
		fmt.Fprintf(out, "Gofulmen: %s\nCrucible: %s\n\n", report.Gofulmen, report.Crucible)
		fmt.Fprintf(out, "Event buffer capacity: %d\n", report.Capacity)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
}
