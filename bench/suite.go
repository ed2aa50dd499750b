package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BenchmarkFile is one program of the benchmark suite.
type BenchmarkFile struct {
	Name string
	Path string
}

// DiscoverSuite lists the benchmark programs under dir in name order. The
// order is fixed for the whole invocation and carries through to the report.
func DiscoverSuite(dir string) ([]BenchmarkFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read the benchmark suite directory: %w", err)
	}

	var files []BenchmarkFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		files = append(files, BenchmarkFile{
			Name: name,
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no benchmark programs found in '%s'", dir)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
