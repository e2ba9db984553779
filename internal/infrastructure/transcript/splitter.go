package transcript

import (
	"strings"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// Line is one utterance of a transcript: an optional timestamp and speaker
// followed by what was said.
type Line struct {
	Timestamp string
	Speaker   string
	Text      string
}

// Splitter groups transcript lines into retrieval chunks. Chunks are bounded
// by character count and overlap by a number of trailing lines so a thought
// cut at a boundary still appears whole in one chunk.
type Splitter struct {
	ChunkSize    int
	OverlapLines int
}

func NewSplitter(chunkSize, overlapLines int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlapLines < 0 {
		overlapLines = 0
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		OverlapLines: overlapLines,
	}
}

// Split turns an episode transcript into chunks. Each chunk carries the
// timestamp and speaker of its first line as provenance.
func (s *Splitter) Split(episodeID, sourcePath, raw string) []domain.RetrievalResult {
	lines := ParseLines(raw)
	if len(lines) == 0 {
		return nil
	}

	var out []domain.RetrievalResult
	start := 0
	for start < len(lines) {
		end := start
		size := 0
		for end < len(lines) {
			size += len(lines[end].Text) + 1
			end++
			if size >= s.ChunkSize {
				break
			}
		}

		out = append(out, domain.RetrievalResult{
			SourceType: domain.SourceRAG,
			Text:       joinLines(lines[start:end]),
			Speaker:    lines[start].Speaker,
			EpisodeID:  episodeID,
			Timestamp:  lines[start].Timestamp,
			SourcePath: sourcePath,
		})

		if end == len(lines) {
			break
		}
		next := end - s.OverlapLines
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// ParseLines reads the "[hh:mm:ss] speaker: text" transcript layout. Lines
// without a timestamp or speaker prefix are kept as bare text; blank lines
// are dropped.
func ParseLines(raw string) []Line {
	var lines []Line
	for _, rawLine := range strings.Split(raw, "\n") {
		text := strings.TrimSpace(rawLine)
		if text == "" {
			continue
		}

		var line Line
		if strings.HasPrefix(text, "[") {
			if closing := strings.Index(text, "]"); closing > 0 {
				line.Timestamp = strings.TrimSpace(text[1:closing])
				text = strings.TrimSpace(text[closing+1:])
			}
		}
		if colon := strings.Index(text, ":"); colon > 0 && colon < 40 && !strings.Contains(text[:colon], " ") {
			line.Speaker = strings.TrimSpace(text[:colon])
			text = strings.TrimSpace(text[colon+1:])
		}
		if text == "" {
			continue
		}
		line.Text = text
		lines = append(lines, line)
	}
	return lines
}

func joinLines(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Speaker != "" {
			parts = append(parts, line.Speaker+": "+line.Text)
		} else {
			parts = append(parts, line.Text)
		}
	}
	return strings.Join(parts, "\n")
}
