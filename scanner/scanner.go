// Package scanner walks a media tree and extracts features for every eligible
// image. It never writes to the catalog; callers hand the report on.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"imagecleanse/imageprocessor"
	"imagecleanse/logging"
	"imagecleanse/types"
)

// Options controls one scan.
type Options struct {
	Root          string
	IgnoreFolders []string
	IgnoreFiles   []string
	// Extensions accepted, lower case with leading dot. Empty means the base
	// set supported by the extractor.
	Extensions []string
	// RestrictTo limits the scan to these root-relative paths when non-nil.
	RestrictTo []string
	Workers    int
}

// Scanner produces scan reports.
type Scanner struct {
	extractor        imageprocessor.Extractor
	logger           *slog.Logger
	now              func() time.Time
	progressInterval time.Duration
}

// New constructs a scanner around an extractor.
func New(extractor imageprocessor.Extractor, logger *slog.Logger) *Scanner {
	return &Scanner{
		extractor:        extractor,
		logger:           logging.NewComponentLogger(logger, "scanner"),
		now:              time.Now,
		progressInterval: 5 * time.Second,
	}
}

type rules struct {
	ignoreFolders map[string]struct{}
	ignoreFiles   map[string]struct{}
	extensions    []string
}

func newRules(opts Options, ex imageprocessor.Extractor) rules {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = imageprocessor.BaseExtensions
	}
	return rules{
		ignoreFolders: toSet(opts.IgnoreFolders),
		ignoreFiles:   toSet(opts.IgnoreFiles),
		extensions:    imageprocessor.AcceptedExtensions(exts, ex),
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

func (r rules) folderIgnored(name string) bool {
	_, ok := r.ignoreFolders[name]
	return ok
}

func (r rules) fileEligible(name string) bool {
	if _, ok := r.ignoreFiles[name]; ok {
		return false
	}
	if imageprocessor.IsAppleDouble(name) {
		return false
	}
	return slices.Contains(r.extensions, strings.ToLower(filepath.Ext(name)))
}

// Scan walks opts.Root (or just opts.RestrictTo) and extracts features. A
// failure on one file lands in report.Errors. If ctx is cancelled the partial
// report is discarded and ctx.Err() returned.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*types.ScanReport, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("media root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media root %s is not a directory", root)
	}

	r := newRules(opts, s.extractor)
	started := s.now().UTC()

	var candidates []string
	if opts.RestrictTo != nil {
		candidates = s.restrictedCandidates(root, opts.RestrictTo, r)
	} else {
		candidates, err = s.walkCandidates(ctx, root, r)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("scan started",
		logging.String(logging.FieldFolder, root),
		logging.Int("candidates", len(candidates)),
		logging.Bool("targeted", opts.RestrictTo != nil),
	)

	images, fileErrors, err := s.extract(ctx, root, candidates, opts.Workers)
	if err != nil {
		return nil, err
	}

	report := &types.ScanReport{
		Folder:     root,
		StartedAt:  started,
		FinishedAt: s.now().UTC(),
		Images:     images,
		Errors:     fileErrors,
		FilesSeen:  len(candidates),
	}
	s.logger.Info("scan complete",
		logging.String(logging.FieldFolder, root),
		logging.Int("images", len(images)),
		logging.Int("errors", len(fileErrors)),
		logging.Duration("elapsed", report.FinishedAt.Sub(started)),
	)
	return report, nil
}

func (s *Scanner) walkCandidates(ctx context.Context, root string, r rules) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			s.logger.Warn("walk error", logging.String(logging.FieldPath, p), logging.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root && r.folderIgnored(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !r.fileEligible(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) restrictedCandidates(root string, restrict []string, r rules) []string {
	seen := make(map[string]struct{}, len(restrict))
	var out []string
	for _, raw := range restrict {
		rel, err := types.NormalizeRelPath(raw)
		if err != nil {
			s.logger.Warn("ignoring restricted path", logging.String(logging.FieldPath, raw), logging.Error(err))
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}

		if underIgnoredFolder(rel, r) || !r.fileEligible(path.Base(rel)) {
			continue
		}
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !info.Mode().IsRegular() {
			s.logger.Debug("restricted path not present", logging.String(logging.FieldPath, rel))
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func underIgnoredFolder(rel string, r rules) bool {
	dir := path.Dir(rel)
	for dir != "." && dir != "/" {
		if r.folderIgnored(path.Base(dir)) {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}

type extraction struct {
	features types.Features
	err      error
}

func (s *Scanner) extract(ctx context.Context, root string, candidates []string, workers int) ([]types.ImageFeature, []types.FileError, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]extraction, len(candidates))
	progress := NewProgressTracker(s.logger, len(candidates), s.progressInterval)
	defer progress.Stop()

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, rel := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			features, err := s.extractOne(ctx, filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = extraction{features: features, err: err}
			progress.Record(rel, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	images := make([]types.ImageFeature, 0, len(candidates))
	var fileErrors []types.FileError
	for i, rel := range candidates {
		res := results[i]
		if res.err != nil {
			fileErrors = append(fileErrors, types.FileError{Path: rel, Err: res.err.Error()})
			continue
		}
		images = append(images, types.ImageFeature{Path: rel, Features: res.features})
	}
	return images, fileErrors, nil
}

// extractOne turns an extractor panic into a per-file error.
func (s *Scanner) extractOne(ctx context.Context, fullPath string) (features types.Features, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("extractor panic",
				logging.String(logging.FieldPath, fullPath),
				logging.Any("panic", r))
			features = types.Features{}
			err = fmt.Errorf("panic during feature extraction: %v", r)
		}
	}()
	return s.extractor.Extract(ctx, fullPath)
}

// IsCancelled reports whether err came from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
