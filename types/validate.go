package types

import (
	"errors"
	"fmt"
	"math"
	"path"
	"strings"
)

var (
	// ErrInvalidReport marks a scan report rejected at the ingestion boundary.
	ErrInvalidReport = errors.New("invalid scan report")
	// ErrInvalidGroups marks a duplicate group write that would break group invariants.
	ErrInvalidGroups = errors.New("invalid duplicate groups")
)

// NormalizeRelPath converts a root-relative path to its canonical slash form.
// It rejects absolute paths and paths escaping the root.
func NormalizeRelPath(p string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("path %q must be relative", p)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the media root", p)
	}
	return cleaned, nil
}

// Validate checks the report before any of it is persisted.
func (r *ScanReport) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil report", ErrInvalidReport)
	}
	if strings.TrimSpace(r.Folder) == "" {
		return fmt.Errorf("%w: folder is required", ErrInvalidReport)
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() && r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("%w: scan finished before it started", ErrInvalidReport)
	}
	seen := make(map[string]struct{}, len(r.Images))
	for i := range r.Images {
		img := &r.Images[i]
		normalized, err := NormalizeRelPath(img.Path)
		if err != nil {
			return fmt.Errorf("%w: image %d: %v", ErrInvalidReport, i, err)
		}
		img.Path = normalized
		if _, dup := seen[normalized]; dup {
			return fmt.Errorf("%w: duplicate path %q", ErrInvalidReport, normalized)
		}
		seen[normalized] = struct{}{}
		if err := img.Features.validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidReport, normalized, err)
		}
	}
	return nil
}

func (f *Features) validate() error {
	if strings.TrimSpace(f.PerceptualHash) == "" {
		return errors.New("perceptual hash is required")
	}
	if math.IsNaN(f.BlurScore) || math.IsInf(f.BlurScore, 0) || f.BlurScore < 0 {
		return fmt.Errorf("blur score %v out of range", f.BlurScore)
	}
	if f.Width < 0 || f.Height < 0 {
		return fmt.Errorf("negative dimensions %dx%d", f.Width, f.Height)
	}
	if f.FileSize < 0 {
		return fmt.Errorf("negative file size %d", f.FileSize)
	}
	if f.HasFace < FaceUnknown || f.HasFace > FacePresent {
		return fmt.Errorf("unknown face state %d", f.HasFace)
	}
	if f.Orientation == 0 {
		f.Orientation = 1
	}
	if f.Orientation < 1 || f.Orientation > 8 {
		return fmt.Errorf("orientation %d out of range", f.Orientation)
	}
	return nil
}

// Validate checks that the write keeps every group invariant: each group has at
// least two members, exactly one primary, and no image is in two groups.
func (w GroupWrite) Validate() error {
	type tally struct {
		members   int
		primaries int
	}
	groups := make(map[string]*tally)
	images := make(map[int64]string, len(w.Members))
	for _, m := range w.Members {
		if strings.TrimSpace(m.GroupID) == "" {
			return fmt.Errorf("%w: empty group id for image %d", ErrInvalidGroups, m.ImageID)
		}
		if m.ImageID <= 0 {
			return fmt.Errorf("%w: group %s has invalid image id %d", ErrInvalidGroups, m.GroupID, m.ImageID)
		}
		if m.HashDistance < 0 {
			return fmt.Errorf("%w: negative hash distance for image %d", ErrInvalidGroups, m.ImageID)
		}
		if other, ok := images[m.ImageID]; ok {
			return fmt.Errorf("%w: image %d listed in groups %s and %s", ErrInvalidGroups, m.ImageID, other, m.GroupID)
		}
		images[m.ImageID] = m.GroupID
		t := groups[m.GroupID]
		if t == nil {
			t = &tally{}
			groups[m.GroupID] = t
		}
		t.members++
		if m.IsPrimary {
			t.primaries++
		}
	}
	for id, t := range groups {
		if t.members < 2 {
			return fmt.Errorf("%w: group %s has a single member", ErrInvalidGroups, id)
		}
		if t.primaries != 1 {
			return fmt.Errorf("%w: group %s has %d primaries", ErrInvalidGroups, id, t.primaries)
		}
	}
	return nil
}
