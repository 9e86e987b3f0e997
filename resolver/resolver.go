// Package resolver rebuilds duplicate groups from the catalog.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"imagecleanse/logging"
	"imagecleanse/types"
)

// Catalog is the part of the catalog store the resolver needs. Both the
// SQLite store and the HTTP client satisfy it.
type Catalog interface {
	Images(ctx context.Context, q types.ImageQuery) ([]types.ImageRecord, error)
	ReplaceGroups(ctx context.Context, w types.GroupWrite) error
}

// Resolver groups images and writes memberships back as one unit of work.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
}

func New(catalog Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{catalog: catalog, logger: logging.NewComponentLogger(logger, "resolver")}
}

// Rebuild regroups the catalog. A nil scope rebuilds everything. Otherwise the
// images at the scoped paths are loaded together with every image sharing
// their hash or their current group, so groups an image left are rewritten
// too. Prior memberships of every loaded image are replaced.
func (r *Resolver) Rebuild(ctx context.Context, scope []string) ([]types.DuplicateGroup, error) {
	var (
		images []types.ImageRecord
		write  types.GroupWrite
		err    error
	)
	if scope == nil {
		images, err = r.catalog.Images(ctx, types.ImageQuery{})
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		write.ReplaceAll = true
	} else {
		if len(scope) == 0 {
			return nil, nil
		}
		images, err = r.expandScope(ctx, scope)
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			return nil, nil
		}
		seenGroups := make(map[string]struct{})
		for _, img := range images {
			write.ReplaceImages = append(write.ReplaceImages, img.ID)
			if img.GroupID == "" {
				continue
			}
			if _, ok := seenGroups[img.GroupID]; !ok {
				seenGroups[img.GroupID] = struct{}{}
				write.ReplaceGroups = append(write.ReplaceGroups, img.GroupID)
			}
		}
	}

	groups := Group(images)
	for _, g := range groups {
		write.Members = append(write.Members, g.Memberships()...)
	}
	if err := r.catalog.ReplaceGroups(ctx, write); err != nil {
		return nil, fmt.Errorf("write groups: %w", err)
	}

	members := 0
	for _, g := range groups {
		members += len(g.Members)
	}
	r.logger.Info("duplicate groups rebuilt",
		logging.Bool("full", scope == nil),
		logging.Int("images_considered", len(images)),
		logging.Int("groups", len(groups)),
		logging.Int("members", members),
	)
	return groups, nil
}

// expandScope loads the scoped images and closes over shared hashes and
// current groups until no new key appears.
func (r *Resolver) expandScope(ctx context.Context, scope []string) ([]types.ImageRecord, error) {
	seeds, err := r.catalog.Images(ctx, types.ImageQuery{Paths: scope})
	if err != nil {
		return nil, fmt.Errorf("load scoped images: %w", err)
	}

	byID := make(map[int64]types.ImageRecord, len(seeds))
	hashes := make(map[string]bool)
	groupIDs := make(map[string]bool)
	var pending types.ImageQuery

	absorb := func(recs []types.ImageRecord) {
		for _, rec := range recs {
			byID[rec.ID] = rec
			if h := groupKey(rec); h != "" && !hashes[h] {
				hashes[h] = true
				pending.Hashes = append(pending.Hashes, h)
			}
			if rec.GroupID != "" && !groupIDs[rec.GroupID] {
				groupIDs[rec.GroupID] = true
				pending.GroupIDs = append(pending.GroupIDs, rec.GroupID)
			}
		}
	}
	absorb(seeds)

	for !pending.Empty() {
		q := pending
		pending = types.ImageQuery{}
		recs, err := r.catalog.Images(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("load related images: %w", err)
		}
		absorb(recs)
	}

	out := make([]types.ImageRecord, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	return out, nil
}
