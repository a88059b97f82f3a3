package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// WatchlistEntry is one video re-analyzed on schedule
type WatchlistEntry struct {
	ID    string `toml:"id"`
	Title string `toml:"title"`
}

type watchlistFile struct {
	Videos []string         `toml:"videos"`
	Video  []WatchlistEntry `toml:"video"`
}

// LoadWatchlist reads content ids from a TOML file. Both a flat list and
// [[video]] tables are accepted:
//
//	videos = ["BV1xx411c7mD"]
//
//	[[video]]
//	id = "BV1GJ411x7h7"
//	title = "finale"
func LoadWatchlist(path string) ([]string, error) {
	var f watchlistFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to read watchlist %s: %w", path, err)
	}

	ids := make([]string, 0, len(f.Videos)+len(f.Video))
	for _, id := range f.Videos {
		ids = append(ids, strings.TrimSpace(id))
	}
	for _, v := range f.Video {
		ids = append(ids, strings.TrimSpace(v.ID))
	}
	return mergeIDs(nil, ids), nil
}
