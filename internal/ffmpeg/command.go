// Package ffmpeg wraps the external media-processing tool behind a typed
// command builder. Invocations are assembled as structured operations and
// validated before being serialized to argument syntax, instead of building
// argument strings ad hoc at every call site.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	ffmpegBin  = "ffmpeg"
	ffprobeBin = "ffprobe"
)

// Input is one -i source with its preceding options (e.g. -stream_loop).
type Input struct {
	Path    string
	Options []string
}

// Command is a single ffmpeg invocation under construction.
type Command struct {
	inputs        []Input
	videoFilter   string
	audioFilter   string
	filterComplex string
	maps          []string
	outputOpts    []string
	output        string
}

// New starts an empty command. Output is always overwritten.
func New() *Command {
	return &Command{}
}

// Input appends a source file, with optional input-side flags.
func (c *Command) Input(path string, opts ...string) *Command {
	c.inputs = append(c.inputs, Input{Path: path, Options: opts})
	return c
}

// VideoFilter sets the simple -vf chain.
func (c *Command) VideoFilter(filter string) *Command {
	c.videoFilter = filter
	return c
}

// AudioFilter sets the simple -af chain.
func (c *Command) AudioFilter(filter string) *Command {
	c.audioFilter = filter
	return c
}

// FilterComplex sets the -filter_complex graph.
func (c *Command) FilterComplex(graph string) *Command {
	c.filterComplex = graph
	return c
}

// Map appends a -map selection.
func (c *Command) Map(spec string) *Command {
	c.maps = append(c.maps, spec)
	return c
}

// OutputOptions appends raw output-side flags.
func (c *Command) OutputOptions(opts ...string) *Command {
	c.outputOpts = append(c.outputOpts, opts...)
	return c
}

// Output sets the destination file.
func (c *Command) Output(path string) *Command {
	c.output = path
	return c
}

// Args validates the command and serializes it to argv (without the binary
// name).
func (c *Command) Args() ([]string, error) {
	if len(c.inputs) == 0 {
		return nil, fmt.Errorf("ffmpeg command has no inputs")
	}
	if c.output == "" {
		return nil, fmt.Errorf("ffmpeg command has no output")
	}
	if c.filterComplex != "" && (c.videoFilter != "" || c.audioFilter != "") {
		return nil, fmt.Errorf("ffmpeg command mixes -filter_complex with -vf/-af")
	}

	args := []string{"-y", "-hide_banner"}
	for _, in := range c.inputs {
		if in.Path == "" {
			return nil, fmt.Errorf("ffmpeg input has empty path")
		}
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	if c.filterComplex != "" {
		args = append(args, "-filter_complex", c.filterComplex)
	}
	if c.videoFilter != "" {
		args = append(args, "-vf", c.videoFilter)
	}
	if c.audioFilter != "" {
		args = append(args, "-af", c.audioFilter)
	}
	for _, m := range c.maps {
		args = append(args, "-map", m)
	}
	args = append(args, c.outputOpts...)
	args = append(args, c.output)
	return args, nil
}

// Run executes the command. A non-zero exit is returned as an error carrying
// the tail of stderr.
func (c *Command) Run(ctx context.Context) error {
	args, err := c.Args()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, ffmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderrTail(stderr.String()))
	}
	return nil
}

// RunProgress executes the command while parsing the tool's progress
// reporting. The callback receives the completion percentage computed from
// elapsed media time against totalSec.
func (c *Command) RunProgress(ctx context.Context, totalSec float64, progress func(percent float64)) error {
	args, err := c.Args()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, ffmpegBin, args...)

	pipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	var tail []string
	scanner := bufio.NewScanner(pipe)
	scanner.Split(scanLinesAndCR)
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
		if progress == nil || totalSec <= 0 {
			continue
		}
		if elapsed, ok := ParseProgressLine(line); ok {
			pct := elapsed / totalSec * 100
			if pct > 100 {
				pct = 100
			}
			progress(pct)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderrTail(strings.Join(tail, "\n")))
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

// ParseProgressLine extracts the elapsed media time from an ffmpeg status
// line ("... time=00:00:12.48 bitrate=...").
func ParseProgressLine(line string) (float64, bool) {
	idx := strings.Index(line, "time=")
	if idx < 0 {
		return 0, false
	}
	field := line[idx+len("time="):]
	if end := strings.IndexByte(field, ' '); end >= 0 {
		field = field[:end]
	}
	return ParseTimestamp(field)
}

// ParseTimestamp converts "HH:MM:SS.xx" to seconds.
func ParseTimestamp(ts string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 {
		return 0, false
	}
	return h*3600 + m*60 + s, true
}

// scanLinesAndCR splits on \n and \r since ffmpeg rewrites its status line
// with carriage returns.
func scanLinesAndCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

// EscapeFilterPath escapes a path for use inside a filter argument such as
// subtitles=. Colons and backslashes are significant to the filter parser.
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "\\'")
	return path
}
