// Package seed imports targets listed in a YAML file at startup.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/service"
)

// Entry is one target in the seed file.
type Entry struct {
	URL   string `yaml:"url"`
	Name  string `yaml:"name"`
	Owner string `yaml:"owner"`
}

// File is the top-level seed document.
type File struct {
	Targets []Entry `yaml:"targets"`
}

// Adder creates targets.
type Adder interface {
	AddTarget(ctx context.Context, req service.AddRequest) (monitor.Target, error)
}

// Report counts what Apply did.
type Report struct {
	Added   int
	Skipped int
	Failed  int
}

// Load parses the seed file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	return f, nil
}

// Apply adds every entry. Entries that are already monitored are skipped;
// other failures are logged and counted.
func Apply(ctx context.Context, adder Adder, f File, logger *zap.Logger) Report {
	if logger == nil {
		logger = zap.NewNop()
	}
	var report Report
	for _, entry := range f.Targets {
		if ctx.Err() != nil {
			break
		}
		target, err := adder.AddTarget(ctx, service.AddRequest{
			URL:   entry.URL,
			Name:  entry.Name,
			Owner: entry.Owner,
		})
		switch {
		case err == nil:
			report.Added++
			logger.Info("seed target added", zap.String("target_id", target.ID), zap.String("url", target.URL))
		case errors.Is(err, monitor.ErrDuplicateTarget):
			report.Skipped++
			logger.Debug("seed target already monitored", zap.String("url", entry.URL))
		default:
			report.Failed++
			logger.Warn("seed target rejected", zap.String("url", entry.URL), zap.Error(err))
		}
	}
	logger.Info("seed applied",
		zap.Int("added", report.Added),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}
