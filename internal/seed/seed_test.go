package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/monitor"
	"github.com/JakeFAU/restock-watch/internal/service"
)

const seedYAML = `
targets:
  - url: https://www.example.com/us/products/1739/Plush
    owner: alice
  - url: https://www.example.com/us/products/2468/Molly
    name: Molly
    owner: bob
  - url: https://www.example.com/us/products/1739/Plush
    owner: carol
  - url: https://www.example.com/about
    owner: dave
`

type recordingAdder struct {
	seen map[string]bool
	reqs []service.AddRequest
}

func (a *recordingAdder) AddTarget(_ context.Context, req service.AddRequest) (monitor.Target, error) {
	a.reqs = append(a.reqs, req)
	id, ok := monitor.ExtractProductID(req.URL)
	if !ok {
		return monitor.Target{}, monitor.ErrInvalidIdentifier
	}
	if a.seen[req.URL] {
		return monitor.Target{}, monitor.ErrDuplicateTarget
	}
	a.seen[req.URL] = true
	return monitor.Target{ID: "t-" + id, URL: req.URL}, nil
}

func TestLoadAndApply(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Targets, 4)
	require.Equal(t, "Molly", f.Targets[1].Name)

	adder := &recordingAdder{seen: map[string]bool{}}
	report := Apply(context.Background(), adder, f, zap.NewNop())

	require.Equal(t, Report{Added: 2, Skipped: 1, Failed: 1}, report)
	require.Equal(t, "bob", adder.reqs[1].Owner)
}

func TestParseEmptyDocument(t *testing.T) {
	t.Parallel()

	f, err := Parse(nil)
	require.NoError(t, err)
	require.Empty(t, f.Targets)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("targets:\n  - link: https://example.com\n"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	adder := &recordingAdder{seen: map[string]bool{}}
	report := Apply(ctx, adder, File{Targets: []Entry{{URL: "https://www.example.com/us/products/1/x"}}}, nil)
	require.Zero(t, report.Added)
	require.Empty(t, adder.reqs)
}

func TestApplyCountsUnexpectedFailures(t *testing.T) {
	t.Parallel()

	adder := failingAdder{err: errors.New("database is down")}
	report := Apply(context.Background(), adder, File{Targets: []Entry{{URL: "u1"}, {URL: "u2"}}}, zap.NewNop())
	require.Equal(t, 2, report.Failed)
}

type failingAdder struct{ err error }

func (f failingAdder) AddTarget(context.Context, service.AddRequest) (monitor.Target, error) {
	return monitor.Target{}, f.err
}
