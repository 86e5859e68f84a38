// Package resolver turns an element descriptor plus a live page into one
// concrete, visible element locator. Resolution cascades through an ordered
// list of strategies: the selector registry, semantic lookups (role, label,
// placeholder), and a fuzzy structural scan over the page's interactive
// elements. The first visible match wins; tiers define priority and no
// ranking happens inside a tier.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/config"
	"github.com/jharden0x1/steppilot/internal/registry"
)

// Strategy is one resolution tier. A nil locator with a nil error means the
// tier found nothing and the cascade moves on.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, page schemas.Page, frames []schemas.Frame, desc schemas.Descriptor) (*schemas.Locator, error)
}

// Resolver runs the strategy cascade and maintains the selector registry.
type Resolver struct {
	registry   *registry.Registry
	logger     *zap.Logger
	strategies []Strategy
}

func New(reg *registry.Registry, cfg *config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{
		registry: reg,
		logger:   logger,
		strategies: []Strategy{
			&registryLookup{registry: reg, timeout: cfg.Registry.LookupTimeout},
			&semanticLookup{timeout: cfg.Registry.SemanticTimeout},
			&structuralScan{probeTimeout: cfg.Registry.SemanticTimeout},
		},
	}
}

// Resolve locates the descriptor on the page. A selector found by a
// non-registry tier is persisted for the page identity before returning, so
// the next resolution of the same descriptor is a registry hit.
func (r *Resolver) Resolve(ctx context.Context, page schemas.Page, desc schemas.Descriptor) (schemas.Locator, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return schemas.Locator{}, err
	}

	for i, strategy := range r.strategies {
		loc, err := strategy.Resolve(ctx, page, frames, desc)
		if err != nil {
			if ctx.Err() != nil {
				return schemas.Locator{}, ctx.Err()
			}
			r.logger.Debug("Resolution strategy errored, moving to next tier.",
				zap.String("strategy", strategy.Name()),
				zap.String("descriptor", desc.String()),
				zap.Error(err))
			continue
		}
		if loc == nil {
			continue
		}

		r.logger.Debug("Element resolved.",
			zap.String("strategy", strategy.Name()),
			zap.String("descriptor", desc.String()),
			zap.Int("frame", loc.Frame),
			zap.String("selector", loc.Selector))

		if i > 0 {
			r.persist(ctx, page, desc, loc)
		}
		return *loc, nil
	}

	return schemas.Locator{}, &schemas.ElementNotFoundError{Descriptor: desc, FramesSearched: len(frames)}
}

func (r *Resolver) persist(ctx context.Context, page schemas.Page, desc schemas.Descriptor, loc *schemas.Locator) {
	url, err := page.CurrentURL(ctx)
	if err != nil {
		r.logger.Warn("Could not read page URL; selector not persisted.", zap.Error(err))
		return
	}
	if err := r.registry.Save(url, desc.Key(), loc.Selector); err != nil {
		r.logger.Warn("Failed to persist resolved selector.",
			zap.String("descriptor", desc.String()), zap.Error(err))
	}
}
