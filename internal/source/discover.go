// Package source finds and reads the raw JSON-lines datasets: the song
// catalog and the activity log. Inputs live on an afero filesystem, or in
// S3 and are staged to local disk first.
package source

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/franz/playlake/internal/util"
)

// Dataset names, also used as metric and event labels
const (
	SongData = "song_data"
	LogData  = "log_data"
)

// Default glob patterns, relative to the input root
const (
	DefaultSongPattern = "song_data/*/*/*/*.json"
	DefaultLogPattern  = "log_data/*/*/*.json"
)

// Discover returns the files under root matching pattern, sorted by path.
// An empty match set is an error wrapping util.ErrNoInput.
func Discover(fs afero.Fs, root, pattern string) ([]string, error) {
	matches, err := afero.Glob(fs, filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
	}

	files := matches[:0]
	for _, m := range matches {
		info, err := fs.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", m, err)
		}
		if !info.IsDir() {
			files = append(files, m)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%s matched nothing under %s: %w", pattern, root, util.ErrNoInput)
	}

	sort.Strings(files)
	return files, nil
}
