// Package bundle turns a multi-file entry script into a single classic
// script the engines can evaluate.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// File bundles entry and everything it imports into one IIFE script. A
// source without import statements is returned as-is.
func File(entry string) (string, error) {
	source, err := os.ReadFile(entry)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", entry, err)
	}
	src := string(source)

	// Skip bundling if there are no import statements.
	if !NeedsBundling(src) && filepath.Ext(entry) != ".ts" {
		return src, nil
	}

	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", entry, err)
	}
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2020,
		TreeShaking:   esbuild.TreeShakingFalse,
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling %s: %s", entry, strings.Join(msgs, "; "))
	}

	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", entry)
	}

	return string(result.OutputFiles[0].Contents), nil
}

// NeedsBundling checks if a script contains import statements that
// require bundling.
func NeedsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "export ") ||
		strings.Contains(source, "require(")
}
