package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eventwindow/eventwindow/internal/output"
)

// outputSink is where a command writes its rendered result.
type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

var stdoutSink = &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}

// addOutputFlags registers the shared --output-format, --out and --out-dir flags.
func addOutputFlags(cmd *cobra.Command, formats ...output.Format) {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	cmd.Flags().String("output-format", names[0], "Output format: "+strings.Join(names, "|"))
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory")
}

// outputFormat parses --output-format and checks it against allowed.
func outputFormat(cmd *cobra.Command, allowed ...output.Format) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	format, err := output.ParseFormat(value)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if a == format {
			return format, nil
		}
	}
	return "", fmt.Errorf("unsupported output format for %s: %s", cmd.Name(), format)
}

// openOutput opens the sink selected by --out or --out-dir. With --out-dir
// the file is named <stem>.<ext> inside that directory.
func openOutput(cmd *cobra.Command, format output.Format, stem string) (*outputSink, error) {
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return nil, err
	}
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	switch {
	case outPath != "" && outDir != "":
		return nil, fmt.Errorf("--out and --out-dir are mutually exclusive")
	case outDir != "":
		outPath = filepath.Join(outDir, stem+"."+outputExtension(format))
	case outPath == "" || outPath == "-":
		return stdoutSink, nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(outPath) // #nosec G304 -- user-selected output path
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: outPath}, nil
}

func outputExtension(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "json"
	case output.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}
