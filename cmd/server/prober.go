package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"streamtube/internal/api"
)

// ffprobeProber shells out to ffprobe to read the duration of an uploaded
// video before it is published.
type ffprobeProber struct {
	path string
}

func newFFProbeProber(path string) api.MediaProber {
	return ffprobeProber{path: path}
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p ffprobeProber) Probe(ctx context.Context, url string) (api.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		return api.MediaInfo{}, fmt.Errorf("run ffprobe: %w", err)
	}
	var parsed ffprobeFormat
	if err := json.Unmarshal(output, &parsed); err != nil {
		return api.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if parsed.Format.Duration == "" {
		return api.MediaInfo{}, fmt.Errorf("ffprobe reported no duration")
	}
	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return api.MediaInfo{}, fmt.Errorf("parse ffprobe duration %q: %w", parsed.Format.Duration, err)
	}
	return api.MediaInfo{Duration: duration}, nil
}
