package opwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/opwatch/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "opwatch"
	}

	// go test changes the CWD to the test package directory, relative paths would be wrong.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("OPWATCH_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("opwatch binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "OPWATCH_INTEGRATION"
		envBinary     = "OPWATCH_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// RunOpwatchCmd runs an opwatch command against the simulated back office with a specific db path.
func RunOpwatchCmd(ctx context.Context, config Config, dbPath, cmdArgs string) (stdout, stderr []byte, err error) {
	args := fmt.Sprintf("--no-log --fake-api --db-path %s %s", dbPath, cmdArgs)
	return testutils.RunOpwatch(ctx, nil, config.Binary, args, true)
}

// RunScan runs `opwatch scan run <subject> --format json`.
func RunScan(ctx context.Context, config Config, dbPath, subject string) (stdout, stderr []byte, err error) {
	return RunOpwatchCmd(ctx, config, dbPath, "scan run --format json "+subject)
}

// RunStatus runs `opwatch status --view <view> --format json`.
func RunStatus(ctx context.Context, config Config, dbPath, view string) (stdout, stderr []byte, err error) {
	return RunOpwatchCmd(ctx, config, dbPath, "status --format json --view "+view)
}
