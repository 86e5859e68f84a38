package reporting

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/jharden0x1/steppilot/api/schemas"
)

// JUnitReporter renders the run as JUnit XML: one testsuite per feature and
// one testcase per scenario, so CI systems ingest the run natively.
type JUnitReporter struct {
	writer io.WriteCloser
}

// NewJUnitReporter takes ownership of the writer.
func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

func (r *JUnitReporter) Write(result *schemas.RunResult) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", "steppilot")
	suites.CreateAttr("time", seconds(result.FinishedAt.Sub(result.StartedAt)))

	for _, feature := range result.Features {
		suite := suites.CreateElement("testsuite")
		suite.CreateAttr("name", feature.Name)
		if feature.Path != "" {
			suite.CreateAttr("file", feature.Path)
		}
		suite.CreateAttr("time", seconds(feature.Duration))

		var failures, skipped int
		for _, scenario := range feature.Scenarios {
			tc := suite.CreateElement("testcase")
			tc.CreateAttr("name", scenario.Name)
			tc.CreateAttr("classname", feature.Name)
			tc.CreateAttr("time", seconds(scenario.Duration))

			switch scenario.Status {
			case schemas.StatusFailed:
				failures++
				failure := tc.CreateElement("failure")
				failure.CreateAttr("message", scenarioFailureMessage(scenario))
				failure.SetText(scenarioFailureDetail(scenario))
			case schemas.StatusSkipped:
				skipped++
				tc.CreateElement("skipped")
			}
		}
		suite.CreateAttr("tests", strconv.Itoa(len(feature.Scenarios)))
		suite.CreateAttr("failures", strconv.Itoa(failures))
		suite.CreateAttr("skipped", strconv.Itoa(skipped))
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write JUnit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	return r.writer.Close()
}

func scenarioFailureMessage(sc schemas.ScenarioResult) string {
	if sc.Error != "" {
		return sc.Error
	}
	for _, step := range sc.Steps {
		if step.Status == schemas.StatusFailed {
			return step.Error
		}
	}
	return "scenario failed"
}

// scenarioFailureDetail lists every step with its outcome, so the report
// shows how far the scenario got.
func scenarioFailureDetail(sc schemas.ScenarioResult) string {
	detail := ""
	for _, step := range sc.Steps {
		detail += fmt.Sprintf("[%s] %s %s\n", step.Status, step.Step.Keyword, step.Step.Text)
		if step.Error != "" {
			detail += "    " + step.Error + "\n"
		}
	}
	return detail
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
