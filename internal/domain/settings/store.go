package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// DirName is the per-directory settings folder inside a worktree.
const DirName = ".agentos"

// FileNames are the settings files looked up inside DirName, in priority
// order. Only the first existing one per directory is read.
var FileNames = []string{"terminal.toml", "terminal.yaml", "terminal.yml"}

// skipDirs are never descended into when scanning a worktree.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
}

// Store holds the settings layers of one project.
type Store struct {
	mu        sync.RWMutex
	global    compiled
	worktrees map[int]map[string]compiled // worktree id -> relative dir -> file
}

// NewStore creates a store with built-in defaults only.
func NewStore() *Store {
	return &Store{worktrees: make(map[int]map[string]compiled)}
}

// SetGlobal installs the global settings layer.
func (s *Store) SetGlobal(c Content) error {
	cc, err := compile(c)
	if err != nil {
		return fmt.Errorf("global settings: %w", err)
	}
	s.mu.Lock()
	s.global = cc
	s.mu.Unlock()
	return nil
}

// LoadGlobalFile reads the global settings file. A missing file leaves the
// defaults in place.
func (s *Store) LoadGlobalFile(filename string) error {
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	c, err := Parse(data, filename)
	if err != nil {
		return err
	}
	return s.SetGlobal(c)
}

// SetWorktreeContent installs the settings file for dir ("" for the root)
// inside a worktree.
func (s *Store) SetWorktreeContent(worktreeID int, dir string, c Content) error {
	cc, err := compile(c)
	if err != nil {
		return fmt.Errorf("worktree %d %q: %w", worktreeID, dir, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.worktrees[worktreeID]
	if !ok {
		files = make(map[string]compiled)
		s.worktrees[worktreeID] = files
	}
	files[cleanRel(dir)] = cc
	return nil
}

// LoadWorktree scans root for settings directories and replaces the
// worktree's layers with what it finds.
func (s *Store) LoadWorktree(ctx context.Context, worktreeID int, root string) error {
	var (
		mu    sync.Mutex
		found = make(map[string]string) // relative dir -> file
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] && p != root {
			return filepath.SkipDir
		}
		if d.Name() != DirName {
			return nil
		}

		for _, name := range FileNames {
			file := filepath.Join(p, name)
			if info, statErr := os.Stat(file); statErr == nil && !info.IsDir() {
				rel, relErr := filepath.Rel(root, filepath.Dir(p))
				if relErr != nil {
					break
				}
				mu.Lock()
				found[cleanRel(filepath.ToSlash(rel))] = file
				mu.Unlock()
				break
			}
		}
		return filepath.SkipDir
	})
	if err != nil {
		return fmt.Errorf("failed to scan worktree %s: %w", root, err)
	}

	files := make(map[string]compiled, len(found))
	for dir, file := range found {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read settings: %w", err)
		}
		c, err := Parse(data, file)
		if err != nil {
			return err
		}
		cc, err := compile(c)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		files[dir] = cc
	}

	s.mu.Lock()
	s.worktrees[worktreeID] = files
	s.mu.Unlock()
	return nil
}

// RemoveWorktree drops all layers of a worktree.
func (s *Store) RemoveWorktree(worktreeID int) {
	s.mu.Lock()
	delete(s.worktrees, worktreeID)
	s.mu.Unlock()
}

// Get resolves settings for loc; nil means global settings.
func (s *Store) Get(loc *Location) TerminalSettings {
	out := Default()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rel := ""
	if loc != nil {
		rel = cleanRel(loc.Path)
	}

	s.global.applyTo(&out, rel, loc != nil)
	if loc == nil {
		return out
	}

	files := s.worktrees[loc.WorktreeID]
	dirs := make([]string, 0, len(files))
	for dir := range files {
		if containsPath(dir, rel) {
			dirs = append(dirs, dir)
		}
	}
	// Shallow to deep, so deeper files win.
	sort.Slice(dirs, func(i, j int) bool { return depth(dirs[i]) < depth(dirs[j]) })

	for _, dir := range dirs {
		files[dir].applyTo(&out, relativeWithin(dir, rel), true)
	}
	return out
}

// applyTo applies the base layer and, when scoped, every override whose glob
// matches rel.
func (c compiled) applyTo(s *TerminalSettings, rel string, scoped bool) {
	c.base.applyTo(s)
	if !scoped {
		return
	}
	for _, o := range c.overrides {
		if o.matches(rel) {
			o.layer.applyTo(s)
		}
	}
}

func (o override) matches(rel string) bool {
	for _, pattern := range o.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func validPattern(p string) bool {
	return doublestar.ValidatePattern(p)
}

func cleanRel(rel string) string {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	return rel
}

func depth(rel string) int {
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func containsPath(dir, rel string) bool {
	return dir == "" || rel == dir || strings.HasPrefix(rel, dir+"/")
}

func relativeWithin(dir, rel string) string {
	if dir == "" {
		return rel
	}
	return strings.TrimPrefix(strings.TrimPrefix(rel, dir), "/")
}
