package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"
)

// Fpcalc computes Chromaprint fingerprints with the fpcalc tool.
type Fpcalc struct {
	Path string
}

type fpcalcOutput struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// Fingerprint runs fpcalc -json on path.
func (f *Fpcalc) Fingerprint(ctx context.Context, path string) (Fingerprint, error) {
	cmd := exec.CommandContext(ctx, f.Path, "-json", path)
	cmd.WaitDelay = 2 * time.Second
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Fingerprint{}, ctx.Err()
		}
		return Fingerprint{}, fmt.Errorf("fpcalc failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	return parseFpcalc(out)
}

func parseFpcalc(out []byte) (Fingerprint, error) {
	var parsed fpcalcOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to parse fpcalc output: %w", err)
	}
	if parsed.Fingerprint == "" {
		return Fingerprint{}, fmt.Errorf("fpcalc returned an empty fingerprint")
	}
	return Fingerprint{
		Duration: int(math.Round(parsed.Duration)),
		Value:    parsed.Fingerprint,
	}, nil
}
