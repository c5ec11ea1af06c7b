// Package colors assigns calendar colors to projects, recycling the least
// recently used color once every slot is taken.
package colors

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// NoProject is the color of tasks outside any project.
const NoProject = "8"

// slots are the Google Calendar event colors handed out to projects.
const slots = 11

type ProjectState struct {
	ColorID      string    `json:"color_id"`
	LastModified time.Time `json:"last_modified"`
}

type ColorCache struct {
	Path     string
	Projects map[string]*ProjectState `json:"projects"`
	Now      func() time.Time `json:"-"`
	mu       sync.Mutex
	dirty    bool
}

// NewColorCache loads the cache at path. An empty path keeps it in memory.
func NewColorCache(path string) (*ColorCache, error) {
	cache := &ColorCache{
		Path:     path,
		Projects: make(map[string]*ProjectState),
		Now:      time.Now,
	}
	if path == "" {
		return cache, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := cache.Load(); err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func (c *ColorCache) Load() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.NewDecoder(f).Decode(&c.Projects)
}

func (c *ColorCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || c.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(c.Projects)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(c.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ColorID returns the color of project, assigning one when needed.
func (c *ColorCache) ColorID(project string) string {
	if project == "" {
		return NoProject
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.Projects[project]; ok {
		state.LastModified = c.Now()
		c.dirty = true
		return state.ColorID
	}
	return c.assignColor(project)
}

func (c *ColorCache) assignColor(project string) string {
	used := make(map[string]bool)
	for _, s := range c.Projects {
		used[s.ColorID] = true
	}
	for i := 1; i <= slots; i++ {
		id := strconv.Itoa(i)
		if !used[id] {
			c.claim(project, id)
			return id
		}
	}

	// Every slot is taken: recycle the least recently used one.
	var oldest string
	var oldestTime time.Time
	for p, s := range c.Projects {
		if oldest == "" || s.LastModified.Before(oldestTime) || (s.LastModified.Equal(oldestTime) && p < oldest) {
			oldest, oldestTime = p, s.LastModified
		}
	}
	id := c.Projects[oldest].ColorID
	delete(c.Projects, oldest)
	c.claim(project, id)
	return id
}

func (c *ColorCache) claim(project, id string) {
	c.Projects[project] = &ProjectState{ColorID: id, LastModified: c.Now()}
	c.dirty = true
}
