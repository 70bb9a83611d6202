package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/edgard/cupidbot/internal/logger"
)

// Template categories.
const (
	CategoryOpener   = "opener"
	CategoryFollowUp = "follow_up"
	CategoryQuestion = "question"
	CategoryGeneric  = "generic"
)

// DefaultTemplates seeds a new template file.
var DefaultTemplates = map[string][]string{
	CategoryOpener: {
		"Hey {name}, {hook}",
		"Hi {name}! I noticed {interest} in your profile. {hook}",
		"Hello {name}! {hook} How's your day going?",
	},
	CategoryFollowUp: {
		"That's really interesting! {hook}",
		"I can relate to that. {hook}",
		"I'd love to hear more about {interest}. {hook}",
	},
	CategoryQuestion: {
		"What do you enjoy most about {interest}?",
		"How did you get into {interest}?",
		"What's your favorite thing about {interest}?",
	},
	CategoryGeneric: {
		"How's your week going so far?",
		"Any exciting plans for the weekend?",
		"What's been keeping you busy lately?",
	},
}

// Built-in pools used when a category is missing or empty in the loaded bank.
var (
	fallbackOpeners = []string{
		"Hey {name}, I noticed {interest} in your profile. {hook}",
		"Hi {name}! {hook}",
		"Hello {name}! I'm interested in {interest} too. {hook}",
	}
	fallbackReplies = []string{
		"That's interesting! {hook}",
		"I'd love to hear more about that. {hook}",
		"Thanks for sharing. {hook}",
	}
)

const reloadDebounce = 250 * time.Millisecond

// TemplateBank holds message templates by category, optionally backed by a
// YAML file. It is safe for concurrent use.
type TemplateBank struct {
	mu        sync.RWMutex
	path      string
	templates map[string][]string
	log       *slog.Logger
}

// NewTemplateBank loads templates from path. A missing file is created with
// DefaultTemplates. An empty path keeps the bank in memory only.
func NewTemplateBank(path string, log *slog.Logger) (*TemplateBank, error) {
	b := &TemplateBank{
		path:      path,
		templates: cloneTemplates(DefaultTemplates),
		log:       logger.OrDiscard(log).With("component", "template_bank"),
	}
	if path == "" {
		return b, nil
	}

	if err := b.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		b.log.Info("Template file not found, writing defaults", "path", path)
		if err := b.save(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Load replaces the bank's contents with the file's.
func (b *TemplateBank) Load() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("failed to read templates %s: %w", b.path, err)
	}

	loaded := map[string][]string{}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse templates %s: %w", b.path, err)
	}
	if loaded == nil {
		loaded = map[string][]string{}
	}

	b.mu.Lock()
	b.templates = loaded
	b.mu.Unlock()

	b.log.Debug("Templates loaded", "path", b.path, "categories", len(loaded))
	return nil
}

// Templates returns the pool for category, falling back to the built-in pool
// when the bank has none.
func (b *TemplateBank) Templates(category string) []string {
	b.mu.RLock()
	pool := b.templates[category]
	b.mu.RUnlock()
	if len(pool) > 0 {
		return slices.Clone(pool)
	}

	switch category {
	case CategoryOpener:
		return slices.Clone(fallbackOpeners)
	case CategoryFollowUp, CategoryGeneric:
		return slices.Clone(fallbackReplies)
	default:
		return slices.Clone(DefaultTemplates[category])
	}
}

// AddTemplate appends text to category and persists the bank.
func (b *TemplateBank) AddTemplate(category, text string) error {
	if category == "" || text == "" {
		return errors.New("template category and text are required")
	}
	b.mu.Lock()
	b.templates[category] = append(b.templates[category], text)
	b.mu.Unlock()

	if b.path == "" {
		return nil
	}
	return b.save()
}

func (b *TemplateBank) save() error {
	b.mu.RLock()
	data, err := yaml.Marshal(b.templates)
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create template directory: %w", err)
		}
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write templates %s: %w", b.path, err)
	}
	return nil
}

// Watch reloads the bank whenever its file changes, until ctx is cancelled.
// Reload errors are logged and the previous templates are kept.
func (b *TemplateBank) Watch(ctx context.Context) error {
	if b.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory; editors often replace the file instead of writing it.
	if err := w.Add(filepath.Dir(b.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", b.path, err)
	}
	target := filepath.Clean(b.path)
	b.log.Info("Watching template file", "path", target)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(reloadDebounce)
		case <-debounce:
			debounce = nil
			if err := b.Load(); err != nil {
				b.log.Warn("Template reload failed, keeping previous templates", "error", err)
				continue
			}
			b.log.Info("Templates reloaded", "path", target)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("Template watcher error", "error", err)
		}
	}
}

func cloneTemplates(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}
