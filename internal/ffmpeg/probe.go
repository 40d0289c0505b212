package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// VideoInfo is the subset of stream metadata the pipeline cares about.
type VideoInfo struct {
	Width       int
	Height      int
	DurationSec float64
}

// ProbeDuration returns a media file's duration in seconds.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %s: %w", path, err)
	}
	return dur, nil
}

// ProbeVideo returns resolution and duration of the first video stream.
func ProbeVideo(ctx context.Context, path string) (*VideoInfo, error) {
	out, err := exec.CommandContext(ctx, ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info := &VideoInfo{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) == 2 {
			info.Width, _ = strconv.Atoi(fields[0])
			info.Height, _ = strconv.Atoi(fields[1])
			continue
		}
		if len(fields) == 1 {
			if d, err := strconv.ParseFloat(fields[0], 64); err == nil {
				info.DurationSec = d
			}
		}
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("ffprobe %s: no video stream", path)
	}
	return info, nil
}
