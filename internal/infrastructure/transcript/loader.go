package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// LoadDir reads every .txt transcript in dir and splits it into chunks. The
// file name without extension becomes the episode id. Used to seed the
// in-memory store in dev mode.
func LoadDir(dir string, splitter *Splitter) ([]domain.RetrievalResult, error) {
	if splitter == nil {
		splitter = NewSplitter(0, 1)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read transcript dir: %w", err)
	}

	var chunks []domain.RetrievalResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read transcript %s: %w", entry.Name(), err)
		}
		episodeID := strings.TrimSuffix(entry.Name(), ".txt")
		chunks = append(chunks, splitter.Split(episodeID, path, string(raw))...)
	}
	return chunks, nil
}
