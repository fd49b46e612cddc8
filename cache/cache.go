// Package cache keeps rendered page HTML on disk.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// noTheme names the directory of pages rendered without an active theme.
const noTheme = "_"

// Store is a file cache of rendered pages keyed by page slug and the theme
// the page was rendered with. Entries older than MaxAge are misses.
type Store struct {
	root   string
	maxAge time.Duration
	log    zerolog.Logger
}

func NewStore(root string, maxAge time.Duration, log zerolog.Logger) *Store {
	return &Store{root: root, maxAge: maxAge, log: log.With().Str("module", "cache").Logger()}
}

// Key is the xxhash of a page slug and theme slug as 16 hex digits.
func Key(pageSlug, themeSlug string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(themeSlug+"\x00"+pageSlug))
}

func themeDir(themeSlug string) string {
	if themeSlug == "" {
		return noTheme
	}
	return themeSlug
}

// Path returns the cache file of a page rendered with a theme.
func (s *Store) Path(pageSlug, themeSlug string) string {
	return filepath.Join(s.root, themeDir(themeSlug), fmt.Sprintf("%s_%s.html", pageSlug, Key(pageSlug, themeSlug)))
}

func (s *Store) Get(pageSlug, themeSlug string) (string, bool) {
	path := s.Path(pageSlug, themeSlug)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if s.maxAge > 0 && time.Since(info.ModTime()) > s.maxAge {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (s *Store) Put(pageSlug, themeSlug, html string) error {
	path := s.Path(pageSlug, themeSlug)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(html), 0o644)
}

// InvalidatePage drops every cached rendering of a page, whatever theme it
// was rendered with.
func (s *Store) InvalidatePage(pageSlug string) error {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", pageSlug+"_*.html"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	s.log.Debug().Str("page", pageSlug).Int("files", len(matches)).Msg("page cache invalidated")
	return nil
}

func (s *Store) InvalidateAll() error {
	if err := os.RemoveAll(s.root); err != nil {
		return err
	}
	s.log.Debug().Msg("page cache cleared")
	return nil
}

// Prune removes entries older than MaxAge.
func (s *Store) Prune() error {
	if s.maxAge <= 0 {
		return nil
	}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if time.Since(info.ModTime()) > s.maxAge {
			return os.Remove(path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
