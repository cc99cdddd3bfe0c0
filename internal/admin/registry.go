// Package admin holds the navigation links of the admin area. Packages that
// add admin screens register their links with the Registry handed to them
// at startup.
package admin

import (
	"fmt"
	"strings"
	"sync"
)

// Link is one entry in the admin navigation.
type Link struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Registry collects admin links in registration order.
type Registry struct {
	mu    sync.RWMutex
	links []Link
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a link. Paths must be absolute and unique.
func (r *Registry) Register(title, path string) error {
	if title == "" {
		return fmt.Errorf("admin link for %q has no title", path)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("admin link path must be absolute: %q", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.links {
		if l.Path == path {
			return fmt.Errorf("admin link already registered: %s", path)
		}
	}
	r.links = append(r.links, Link{Title: title, Path: path})
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(title, path string) {
	if err := r.Register(title, path); err != nil {
		panic(err)
	}
}

// Links returns a copy of the registered links.
func (r *Registry) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Link, len(r.links))
	copy(out, r.links)
	return out
}
