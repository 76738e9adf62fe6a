// Package checkpoint persists the crawl cursor and depth bookkeeping between
// runs.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alvmarrod/tag-weaver/internal/storage"
)

// ErrCorruptCheckpoint is returned alongside a default state when the
// checkpoint file cannot be decoded
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// fileState also accepts "after", the cursor key of older state files
type fileState struct {
	storage.CrawlState
	After string `json:"after,omitempty"`
}

// Load reads the crawl state at path. An absent or empty file yields the
// start state and no error.
func Load(path string) (storage.CrawlState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storage.CrawlState{}, nil
	}
	if err != nil {
		return storage.CrawlState{}, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return storage.CrawlState{}, nil
	}

	var fsState fileState
	if err := json.Unmarshal(data, &fsState); err != nil {
		return storage.CrawlState{}, fmt.Errorf("%w %s: %v", ErrCorruptCheckpoint, path, err)
	}

	state := fsState.CrawlState
	if state.Cursor == "" {
		state.Cursor = fsState.After
	}
	if state.MaxDepthReached < 0 {
		state.MaxDepthReached = 0
		state.MaxDepthSubreddit = ""
	}
	return state, nil
}

// Save writes state to path atomically
func Save(path string, state storage.CrawlState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint %s: %w", path, err)
	}
	return nil
}
