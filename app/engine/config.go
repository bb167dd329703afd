package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lmzhao/zhisieve/app/keyword"
	"github.com/lmzhao/zhisieve/app/store"
)

// FilterConfig is the keyword configuration for one filter pass. It is
// rebuilt from the store at the start of every pass; configuration may
// change between passes without explicit invalidation.
type FilterConfig struct {
	AuthorKeywords   keyword.Set
	QuestionKeywords keyword.Set
	AnswerKeywords   keyword.Set
	CommentKeywords  keyword.Set
	BlockingEnabled  bool
}

func (e *Engine) loadFilterConfig(ctx context.Context) (*FilterConfig, error) {
	enabled, err := store.GetDefault(ctx, e.store, store.BucketSync, store.KeyBlockingEnabled, "true")
	if err != nil {
		return nil, fmt.Errorf("failed to read blocking state: %w", err)
	}

	cfg := &FilterConfig{BlockingEnabled: enabled != "false"}

	keys := []struct {
		key string
		set *keyword.Set
	}{
		{store.KeyAuthorKeywords, &cfg.AuthorKeywords},
		{store.KeyQuestionKeywords, &cfg.QuestionKeywords},
		{store.KeyAnswerKeywords, &cfg.AnswerKeywords},
		{store.KeyCommentKeywords, &cfg.CommentKeywords},
	}
	for _, k := range keys {
		raw, err := store.GetDefault(ctx, e.store, store.BucketSync, k.key, "")
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", k.key, err)
		}
		*k.set = keyword.NewSet(raw)
	}

	return cfg, nil
}

// SeedConfig is the YAML import/export form of the keyword
// configuration.
type SeedConfig struct {
	BlockingEnabled  *bool    `yaml:"blocking_enabled,omitempty"`
	AuthorKeywords   []string `yaml:"author_keywords,omitempty"`
	QuestionKeywords []string `yaml:"question_keywords,omitempty"`
	AnswerKeywords   []string `yaml:"answer_keywords,omitempty"`
	CommentKeywords  []string `yaml:"comment_keywords,omitempty"`
}

// ImportConfigFile seeds the sync store from a YAML file. A missing
// file is not an error. A malformed file is recovered locally: the
// store is reset to defaults (empty keyword lists, blocking enabled)
// and a warning surfaced, never a failure.
func (e *Engine) ImportConfigFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var seed SeedConfig
	if err := yaml.Unmarshal(data, &seed); err != nil {
		slog.Warn("Imported configuration is malformed, falling back to defaults",
			"file", path, "error", err)
		seed = SeedConfig{}
	}

	return e.applySeed(ctx, seed)
}

func (e *Engine) applySeed(ctx context.Context, seed SeedConfig) error {
	enabled := "true"
	if seed.BlockingEnabled != nil && !*seed.BlockingEnabled {
		enabled = "false"
	}
	if err := e.store.Set(ctx, store.BucketSync, store.KeyBlockingEnabled, enabled); err != nil {
		return err
	}

	lists := []struct {
		key   string
		lines []string
	}{
		{store.KeyAuthorKeywords, seed.AuthorKeywords},
		{store.KeyQuestionKeywords, seed.QuestionKeywords},
		{store.KeyAnswerKeywords, seed.AnswerKeywords},
		{store.KeyCommentKeywords, seed.CommentKeywords},
	}
	for _, l := range lists {
		set := keyword.NewSet(strings.Join(l.lines, "\n"))
		if err := e.store.Set(ctx, store.BucketSync, l.key, set.Raw()); err != nil {
			return err
		}
	}

	return nil
}

// ExportConfig returns the current stored configuration in seed form.
func (e *Engine) ExportConfig(ctx context.Context) (*SeedConfig, error) {
	cfg, err := e.loadFilterConfig(ctx)
	if err != nil {
		return nil, err
	}

	enabled := cfg.BlockingEnabled
	return &SeedConfig{
		BlockingEnabled:  &enabled,
		AuthorKeywords:   []string(cfg.AuthorKeywords),
		QuestionKeywords: []string(cfg.QuestionKeywords),
		AnswerKeywords:   []string(cfg.AnswerKeywords),
		CommentKeywords:  []string(cfg.CommentKeywords),
	}, nil
}
