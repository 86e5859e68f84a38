// Package reporting renders a finished run into a machine-readable report.
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/jharden0x1/steppilot/api/schemas"
)

// Reporter writes one run result to an output.
type Reporter interface {
	// Write renders the run result.
	Write(result *schemas.RunResult) error
	// Close finalizes the report and releases the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer with a no-op Close, so stdout is never
// closed by a reporter.
type nopWriteCloser struct {
	io.Writer
}

func (*nopWriteCloser) Close() error { return nil }

// New creates a reporter for the given format, writing to outputPath or
// stdout when the path is empty.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdout := outputPath == "" || outputPath == "stdout"
	if isStdout {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json", "":
		return NewJSONReporter(writer), nil
	case "junit":
		return NewJUnitReporter(writer), nil
	default:
		if !isStdout {
			writer.Close()
		}
		return nil, fmt.Errorf("unknown report format %q (supported: json, junit)", format)
	}
}
