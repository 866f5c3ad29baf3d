package session

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/hashdeck/hashdeck/internal/parser"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// RunBenchmark runs the worker in benchmark mode for one hash type and
// returns the measured speed in hashes per second. Benchmarks run to
// completion synchronously and are never registered as sessions.
func RunBenchmark(ctx context.Context, binary string, hashType int) (float64, error) {
	args := []string{
		"-b",
		"-m", strconv.Itoa(hashType),
		"--machine-readable",
		"--quiet",
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("benchmark failed: %w", err)
	}

	speed, ok := parser.ParseSpeed(string(output))
	if !ok {
		return 0, fmt.Errorf("could not parse speed from benchmark output")
	}

	debug.Info("Benchmark for hash type %d: %.0f H/s", hashType, speed)
	return speed, nil
}
