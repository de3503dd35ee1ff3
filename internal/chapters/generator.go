package chapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aiengineer/rageval/internal/pkg/errors"
	"github.com/aiengineer/rageval/internal/pkg/logger"
)

// Config configures a Generator.
type Config struct {
	// PlanPath is the course plan to read.
	PlanPath string
	// OutDir receives one file per week plus index.md.
	OutDir string
	// Debounce delays regeneration after plan changes. Default: 500ms.
	Debounce time.Duration
	// OnGenerate, if set, is called after every Watch regeneration.
	OnGenerate func(chapters int, err error)
}

// Generator writes chapter drafts for a course plan.
type Generator struct {
	cfg Config
	log *logger.Logger
}

// NewGenerator creates a generator.
func NewGenerator(cfg Config, log *logger.Logger) (*Generator, error) {
	if cfg.PlanPath == "" {
		return nil, errors.ValidationError("plan path is required")
	}
	if cfg.OutDir == "" {
		return nil, errors.ValidationError("output directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{cfg: cfg, log: log}, nil
}

// Generate reads the plan and writes every chapter and the index. It returns
// the number of chapters written.
func (g *Generator) Generate(ctx context.Context) (int, error) {
	text, err := os.ReadFile(g.cfg.PlanPath)
	if err != nil {
		return 0, fmt.Errorf("reading plan: %w", err)
	}

	weeks := WithPrelearning(ParseWeeks(string(text)))

	if err := os.MkdirAll(g.cfg.OutDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	for _, w := range weeks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		body, err := RenderChapter(w)
		if err != nil {
			return 0, fmt.Errorf("rendering %s: %w", w.ID, err)
		}
		if err := os.WriteFile(filepath.Join(g.cfg.OutDir, w.FileName()), []byte(body), 0o644); err != nil {
			return 0, fmt.Errorf("writing %s: %w", w.FileName(), err)
		}
	}

	index, err := RenderIndex(weeks)
	if err != nil {
		return 0, fmt.Errorf("rendering index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(g.cfg.OutDir, "index.md"), []byte(index), 0o644); err != nil {
		return 0, fmt.Errorf("writing index: %w", err)
	}

	g.log.Info("Generated chapters", "count", len(weeks), "out", g.cfg.OutDir)
	return len(weeks), nil
}
