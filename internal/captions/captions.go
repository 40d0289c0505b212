// Package captions converts narration text into word-level timings and
// renders them as an ASS subtitle track with karaoke markup so words reveal
// progressively as they are spoken.
package captions

import (
	"fmt"
	"os"
	"strings"

	"github.com/adhielesmana/promptweaver/internal/types"
)

const (
	// wordsPerMinute is the assumed natural speaking rate.
	wordsPerMinute = 150.0
	// maxSpokenShare caps the estimated spoken duration relative to the
	// requested total, leaving headroom at the end of the video.
	maxSpokenShare = 0.95
	// wordsPerLine groups words into caption lines.
	wordsPerLine = 3
	// trailingBufferSec keeps a line on screen briefly after its last word.
	trailingBufferSec = 0.2
)

// Word is one caption word with its reveal window.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Line is one rendered caption line.
type Line struct {
	Start float64
	End   float64
	Words []Word
}

// Track is a full subtitle track for one video.
type Track struct {
	Lines       []Line
	Orientation types.Orientation
}

// Build lays out caption timing for the given text against a total target
// duration. The estimated spoken duration never exceeds 95% of the target,
// and screen time is distributed across words proportionally to their
// character length so long words are not clipped. Orientation affects only
// layout metrics, never timing.
func Build(text string, targetSec float64, orientation types.Orientation) *Track {
	track := &Track{Orientation: orientation}
	words := strings.Fields(text)
	if len(words) == 0 || targetSec <= 0 {
		return track
	}

	spoken := float64(len(words)) / wordsPerMinute * 60
	if limit := targetSec * maxSpokenShare; spoken > limit {
		spoken = limit
	}

	totalRunes := 0
	for _, w := range words {
		totalRunes += len([]rune(w))
	}

	elapsed := 0.0
	var line Line
	for i, w := range words {
		dur := spoken * float64(len([]rune(w))) / float64(totalRunes)
		word := Word{Text: strings.ToUpper(w), Start: elapsed, End: elapsed + dur}
		elapsed += dur

		if len(line.Words) == 0 {
			line.Start = word.Start
		}
		line.Words = append(line.Words, word)
		if len(line.Words) == wordsPerLine || i == len(words)-1 {
			line.End = word.End + trailingBufferSec
			track.Lines = append(track.Lines, line)
			line = Line{}
		}
	}
	return track
}

// FromScenes builds a track from per-scene caption text when no narration
// exists. Scenes without captions are skipped.
func FromScenes(scenes []types.Scene, targetSec float64, orientation types.Orientation) *Track {
	var parts []string
	for _, s := range scenes {
		if s.Caption != "" {
			parts = append(parts, s.Caption)
		}
	}
	return Build(strings.Join(parts, " "), targetSec, orientation)
}

// layout returns canvas size, font size and vertical margin for the
// orientation.
func (t *Track) layout() (w, h, fontSize, marginV int) {
	w, h = t.Orientation.Canvas()
	if t.Orientation == types.OrientationPortrait {
		return w, h, 96, 320
	}
	return w, h, 72, 96
}

// RenderASS renders the track as an ASS document. Each word carries a
// karaoke duration tag so players reveal it at its own start time.
func (t *Track) RenderASS() string {
	w, h, fontSize, marginV := t.layout()

	var sb strings.Builder
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\nPlayResY: %d\n", w, h)
	sb.WriteString("WrapStyle: 0\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Outline, Shadow, Alignment, MarginL, MarginR, MarginV\n")
	fmt.Fprintf(&sb, "Style: Default,Arial,%d,&H00FFFFFF,&H007F7F7F,&H00000000,&H80000000,-1,3,1,2,60,60,%d\n\n", fontSize, marginV)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Text\n")
	for _, line := range t.Lines {
		var text strings.Builder
		for i, word := range line.Words {
			if i > 0 {
				text.WriteByte(' ')
			}
			// \k takes centiseconds of reveal delay per word.
			fmt.Fprintf(&text, "{\\k%d}%s", int((word.End-word.Start)*100+0.5), word.Text)
		}
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,%s\n",
			assTimestamp(line.Start), assTimestamp(line.End), text.String())
	}
	return sb.String()
}

// WriteFile renders the track to disk. An empty track writes nothing and
// returns an empty path.
func (t *Track) WriteFile(path string) (string, error) {
	if len(t.Lines) == 0 {
		return "", nil
	}
	if err := os.WriteFile(path, []byte(t.RenderASS()), 0644); err != nil {
		return "", fmt.Errorf("write subtitle track: %w", err)
	}
	return path, nil
}

func assTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int(sec*100 + 0.5)
	h := cs / 360000
	m := cs % 360000 / 6000
	s := cs % 6000 / 100
	c := cs % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, c)
}
