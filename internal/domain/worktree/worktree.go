// Package worktree tracks the root directories that make up a project.
//
// A worktree scopes terminal settings: a terminal opened inside a worktree
// reads that worktree's settings files, keyed by its path relative to the
// worktree root.
package worktree

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotAbsolute is returned when a worktree root is not an absolute path.
var ErrNotAbsolute = errors.New("worktree root must be absolute")

// Worktree is one root directory of a project.
type Worktree struct {
	ID   int
	Root string
}

// Set holds the worktrees of a project.
type Set struct {
	mu     sync.RWMutex
	nextID int
	trees  []*Worktree
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{nextID: 1}
}

// Add registers root and returns its worktree. Adding the same root twice
// returns the existing worktree.
func (s *Set) Add(root string) (*Worktree, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("%w: %q", ErrNotAbsolute, root)
	}
	root = filepath.Clean(root)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, wt := range s.trees {
		if wt.Root == root {
			return wt, nil
		}
	}

	wt := &Worktree{ID: s.nextID, Root: root}
	s.nextID++
	s.trees = append(s.trees, wt)
	return wt, nil
}

// Remove drops the worktree with the given id.
func (s *Set) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, wt := range s.trees {
		if wt.ID == id {
			s.trees = append(s.trees[:i], s.trees[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the worktree with the given id.
func (s *Set) Get(id int) (*Worktree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, wt := range s.trees {
		if wt.ID == id {
			return wt, true
		}
	}
	return nil, false
}

// List returns worktrees ordered by id.
func (s *Set) List() []*Worktree {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Worktree, len(s.trees))
	copy(out, s.trees)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Find returns the worktree containing path and the slash separated path
// relative to its root ("" for the root itself). With nested worktrees the
// deepest root wins. Relative paths never match.
func (s *Set) Find(path string) (*Worktree, string, bool) {
	if path == "" || !filepath.IsAbs(path) {
		return nil, "", false
	}
	path = filepath.Clean(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best    *Worktree
		bestRel string
	)
	for _, wt := range s.trees {
		rel, ok := relativeTo(wt.Root, path)
		if !ok {
			continue
		}
		if best == nil || len(wt.Root) > len(best.Root) {
			best, bestRel = wt, rel
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, bestRel, true
}

func relativeTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}
