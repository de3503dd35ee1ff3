package chapters

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch regenerates chapters whenever the plan file is written or replaced,
// coalescing bursts of events within the debounce window. It runs until ctx
// is cancelled and returns ctx.Err().
//
// The plan's directory is watched rather than the file itself so editors
// that save by rename keep triggering regeneration.
func (g *Generator) Watch(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsWatcher.Close()

	plan, err := filepath.Abs(g.cfg.PlanPath)
	if err != nil {
		return err
	}
	if err := fsWatcher.Add(filepath.Dir(plan)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(plan), err)
	}

	g.log.Info("Watching plan for changes", "plan", plan)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !g.isPlanChange(plan, event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(g.cfg.Debounce)
			} else {
				timer.Reset(g.cfg.Debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			n, err := g.Generate(ctx)
			if err != nil {
				g.log.WithError(err).Error("Regenerating chapters failed")
			}
			if g.cfg.OnGenerate != nil {
				g.cfg.OnGenerate(n, err)
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			g.log.WithError(err).Error("Watcher error")
		}
	}
}

func (g *Generator) isPlanChange(plan string, event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != plan {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
