package main

import (
	"fmt"
	"log/slog"

	"github.com/rg/arcguard/internal/config"
	"github.com/rg/arcguard/internal/filters"
	"github.com/rg/arcguard/internal/moderation"
	"github.com/rg/arcguard/internal/phrases"
	"github.com/rg/arcguard/internal/spam"
)

// ruleSet is everything the pipeline is built from, loaded once at startup.
type ruleSet struct {
	lists    moderation.Lists
	registry *filters.Registry
	detector *spam.Detector
	pipeline *moderation.Pipeline
}

func loadRules(cfg *config.Config) (*ruleSet, error) {
	lists, err := loadLists(cfg.Phrases)
	if err != nil {
		return nil, err
	}

	registry, err := loadFilters(cfg.Filters)
	if err != nil {
		return nil, err
	}

	detector := spam.NewDetector(cfg.SpamDetectorConfig())

	pipeline, err := moderation.NewPipeline(cfg.ModerationPipelineConfig(), lists, registry, detector)
	if err != nil {
		return nil, fmt.Errorf("failed to build moderation pipeline: %w", err)
	}

	slog.Info("Moderation rules loaded",
		"ban_phrases", lists.Ban.Len(),
		"mute_phrases", lists.Mute.Len(),
		"delete_phrases", lists.Delete.Len(),
		"whitelist", lists.Whitelist.Len(),
		"filters", registry.Len(),
		"rules", len(pipeline.RuleNames()))

	return &ruleSet{
		lists:    lists,
		registry: registry,
		detector: detector,
		pipeline: pipeline,
	}, nil
}

func loadLists(cfg config.PhrasesConfig) (moderation.Lists, error) {
	var lists moderation.Lists
	var err error

	if lists.Ban, err = loadPhraseSet("ban", cfg.BanFile); err != nil {
		return lists, err
	}
	if lists.Mute, err = loadPhraseSet("mute", cfg.MuteFile); err != nil {
		return lists, err
	}
	if lists.Delete, err = loadPhraseSet("delete", cfg.DeleteFile); err != nil {
		return lists, err
	}
	if lists.Whitelist, err = loadPhraseSet("whitelist", cfg.WhitelistFile); err != nil {
		return lists, err
	}
	return lists, nil
}

func loadPhraseSet(name, path string) (*phrases.Set, error) {
	if path == "" {
		return phrases.New(name, nil)
	}
	set, err := phrases.Load(name, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s phrases: %w", name, err)
	}
	return set, nil
}

func loadFilters(cfg config.FiltersConfig) (*filters.Registry, error) {
	if cfg.File == "" {
		return filters.Parse([]byte("{}"), cfg.MediaRoot)
	}
	registry, err := filters.Load(cfg.File, cfg.MediaRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load filters: %w", err)
	}
	return registry, nil
}
