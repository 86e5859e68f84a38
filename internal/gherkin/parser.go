// Package gherkin parses feature files into the record types the runner
// consumes. The parser is a line-oriented state machine: it understands tags,
// a Feature header, one optional Background, Scenario blocks, and the five
// step keywords. Doc strings and data tables are not supported.
package gherkin

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jharden0x1/steppilot/api/schemas"
)

var stepKeywords = []string{"Given", "When", "Then", "And", "But"}

// ParseFile reads and parses a single feature file.
func ParseFile(path string) (*schemas.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer f.Close()

	feature, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	feature.Path = path
	return feature, nil
}

// Parse parses feature file content from a reader.
func Parse(r io.Reader) (*schemas.Feature, error) {
	var (
		feature     *schemas.Feature
		current     *schemas.Scenario // block steps are appended to
		pendingTags []string
		lineNo      int
	)

	flush := func() {
		if current == nil || feature == nil {
			return
		}
		if current.Name == backgroundName {
			bg := *current
			feature.Background = &bg
		} else {
			feature.Scenarios = append(feature.Scenarios, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue

		case strings.HasPrefix(line, "@"):
			pendingTags = append(pendingTags, parseTags(line)...)

		case strings.HasPrefix(line, "Feature:"):
			if feature != nil {
				return nil, fmt.Errorf("line %d: multiple Feature headers", lineNo)
			}
			feature = &schemas.Feature{
				Name: strings.TrimSpace(strings.TrimPrefix(line, "Feature:")),
				Tags: pendingTags,
			}
			pendingTags = nil

		case strings.HasPrefix(line, "Background:"):
			if feature == nil {
				return nil, fmt.Errorf("line %d: Background before Feature", lineNo)
			}
			if feature.Background != nil || (current != nil && current.Name == backgroundName) {
				return nil, fmt.Errorf("line %d: multiple Background sections", lineNo)
			}
			flush()
			current = &schemas.Scenario{Name: backgroundName, Line: lineNo}
			pendingTags = nil

		case strings.HasPrefix(line, "Scenario:") || strings.HasPrefix(line, "Example:"):
			if feature == nil {
				return nil, fmt.Errorf("line %d: Scenario before Feature", lineNo)
			}
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "Scenario:"), "Example:"))
			current = &schemas.Scenario{Name: name, Tags: pendingTags, Line: lineNo}
			pendingTags = nil

		default:
			keyword, text, ok := splitStep(line)
			if !ok {
				// Free text such as feature descriptions is ignored.
				continue
			}
			if current == nil {
				return nil, fmt.Errorf("line %d: step outside of a Scenario or Background", lineNo)
			}
			current.Steps = append(current.Steps, schemas.Step{Keyword: keyword, Text: text, Line: lineNo})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if feature == nil {
		return nil, fmt.Errorf("no Feature header found")
	}
	flush()
	return feature, nil
}

// backgroundName marks the in-flight block as the Background section.
const backgroundName = "\x00background"

func parseTags(line string) []string {
	var tags []string
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "@") && len(field) > 1 {
			tags = append(tags, field)
		}
	}
	return tags
}

func splitStep(line string) (keyword, text string, ok bool) {
	for _, kw := range stepKeywords {
		if strings.HasPrefix(line, kw+" ") {
			return kw, strings.TrimSpace(line[len(kw)+1:]), true
		}
	}
	return "", "", false
}

// Discover walks the given paths and returns every .feature file found.
// Plain file arguments are returned as-is; directories are walked recursively.
func Discover(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".feature") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	return files, nil
}
