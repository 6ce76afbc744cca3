package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dgallion1/genqa/internal/convert"
)

// expandInputs resolves extract arguments into document paths. Arguments are
// kept in the order given; the matches of a single glob are sorted. A
// directory argument expands to every supported file below it. Duplicates
// keep their first position.
func expandInputs(args []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil {
			if !info.IsDir() {
				add(arg)
				continue
			}
			matches, err := supportedMatches(filepath.Join(arg, "**", "*"))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		if !doublestar.ValidatePathPattern(arg) {
			return nil, fmt.Errorf("invalid glob pattern %q", arg)
		}
		matches, err := supportedMatches(arg)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			// Keep the literal so the batch reports it as a failed document.
			add(arg)
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

func supportedMatches(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	var out []string
	for _, m := range matches {
		if convert.IsSupportedExtension(m) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
