package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Discover returns the scenario files under path. A file path is returned
// as is; a directory is searched recursively for .yaml and .yml files.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var paths []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	slices.Sort(paths)
	return paths, nil
}

// Summary contains the results of running a set of scenarios.
type Summary struct {
	Total    int       `json:"total"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure is a scenario that could not be loaded, could not run, or failed
// its expectations.
type Failure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

// RunAll loads and runs every scenario in paths. Scenario failures are
// collected in the summary; only context cancellation aborts the run.
func RunAll(ctx context.Context, paths []string) (*Summary, error) {
	summary := &Summary{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			summary.fail(Failure{Path: path, Errors: []string{err.Error()}})
			continue
		}

		result, err := Run(ctx, scenario)
		if err != nil {
			summary.fail(Failure{Path: path, Name: scenario.Name, Errors: []string{err.Error()}})
			continue
		}
		if !result.Pass {
			summary.fail(Failure{Path: path, Name: scenario.Name, Errors: result.Errors})
			continue
		}
		summary.Passed++
	}
	return summary, nil
}

func (s *Summary) fail(f Failure) {
	s.Failed++
	s.Failures = append(s.Failures, f)
}
