package types

import (
	"time"
)

// DefaultBlurThreshold is the blur score below which an image counts as blurry.
const DefaultBlurThreshold = 100.0

// FaceState records whether face detection ran and what it found.
type FaceState int

const (
	FaceUnknown FaceState = iota
	FaceAbsent
	FacePresent
)

// FaceStateOf converts a detector answer into a FaceState.
func FaceStateOf(found bool) FaceState {
	if found {
		return FacePresent
	}
	return FaceAbsent
}

// Bool returns the detector answer, or nil when faces were never analyzed.
func (f FaceState) Bool() *bool {
	switch f {
	case FacePresent:
		v := true
		return &v
	case FaceAbsent:
		v := false
		return &v
	default:
		return nil
	}
}

func (f FaceState) String() string {
	switch f {
	case FacePresent:
		return "yes"
	case FaceAbsent:
		return "no"
	default:
		return "unknown"
	}
}

// IsBlurry applies the threshold rule used for every ImageAnalysis row.
func IsBlurry(blurScore, threshold float64) bool {
	return blurScore < threshold
}

// Features is the fixed result shape returned by a feature extractor for one file.
type Features struct {
	PerceptualHash string    `json:"perceptual_hash"`
	BlurScore      float64   `json:"blur_score"`
	HasFace        FaceState `json:"has_face"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	FileSize       int64     `json:"file_size"`
	Checksum       string    `json:"checksum"`
	Orientation    int       `json:"orientation"`
}

// ImageFeature is one scanned image inside a ScanReport. Path is relative to the scan root.
type ImageFeature struct {
	Path string `json:"path"`
	Features
}

// FileError describes a file that could not be analyzed during a scan.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// ScanReport is the complete output of one scanner run over one folder.
type ScanReport struct {
	Folder     string         `json:"folder"`
	StartedAt  time.Time      `json:"scan_started_at"`
	FinishedAt time.Time      `json:"scan_finished_at"`
	Images     []ImageFeature `json:"images"`
	Errors     []FileError    `json:"errors,omitempty"`
	FilesSeen  int            `json:"files_seen"`
}

// Paths returns the relative paths of every image in the report.
func (r *ScanReport) Paths() []string {
	paths := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		paths = append(paths, img.Path)
	}
	return paths
}

// IngestSummary counts what a single ingest call changed.
type IngestSummary struct {
	ImagesCreated   int `json:"images_created"`
	ImagesUpdated   int `json:"images_updated"`
	ImagesUnchanged int `json:"images_unchanged"`
	FoldersTouched  int `json:"folders_touched"`
}

// Changed reports whether any image row was inserted or modified.
func (s IngestSummary) Changed() bool {
	return s.ImagesCreated+s.ImagesUpdated > 0
}

// Folder is one scanned directory.
type Folder struct {
	ID             int64     `json:"id"`
	Path           string    `json:"path"`
	LastScannedAt  time.Time `json:"last_scanned_at"`
	LastReportedAt time.Time `json:"last_reported_at"`
	ImageCount     int       `json:"image_count"`
	Checksum       string    `json:"checksum,omitempty"`
}

// ImageRecord is the catalog's view of an image joined with its analysis and current group.
type ImageRecord struct {
	ID             int64     `json:"id"`
	Path           string    `json:"path"`
	FolderID       int64     `json:"folder_id"`
	ContentHash    string    `json:"content_hash"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	FileSize       int64     `json:"file_size"`
	Checksum       string    `json:"checksum"`
	Orientation    int       `json:"orientation"`
	PerceptualHash string    `json:"perceptual_hash"`
	BlurScore      float64   `json:"blur_score"`
	IsBlurry       bool      `json:"is_blurry"`
	HasFace        FaceState `json:"has_face"`
	Analyzed       bool      `json:"analyzed"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	GroupID        string    `json:"group_id,omitempty"`
}

// Area returns width × height.
func (r ImageRecord) Area() int64 {
	return int64(r.Width) * int64(r.Height)
}

// ImageQuery filters catalog reads. An empty query selects every image.
type ImageQuery struct {
	Paths    []string
	Hashes   []string
	GroupIDs []string
}

// Empty reports whether the query has no filters.
func (q ImageQuery) Empty() bool {
	return len(q.Paths) == 0 && len(q.Hashes) == 0 && len(q.GroupIDs) == 0
}

// Membership is one DuplicateGroupMembership row.
type Membership struct {
	GroupID      string `json:"group_id"`
	ImageID      int64  `json:"image_id"`
	IsPrimary    bool   `json:"is_primary"`
	HashDistance int    `json:"hash_distance"`
}

// GroupMember is a membership joined with the member's image data.
type GroupMember struct {
	Membership
	Path      string  `json:"path"`
	BlurScore float64 `json:"blur_score"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FileSize  int64   `json:"file_size"`
}

// DuplicateGroup is a set of at least two images sharing a grouping key.
type DuplicateGroup struct {
	ID      string        `json:"group_id"`
	Members []GroupMember `json:"members"`
}

// Primary returns the primary member, or false if the group has none.
func (g DuplicateGroup) Primary() (GroupMember, bool) {
	for _, m := range g.Members {
		if m.IsPrimary {
			return m, true
		}
	}
	return GroupMember{}, false
}

// Memberships flattens the group into rows for persistence.
func (g DuplicateGroup) Memberships() []Membership {
	rows := make([]Membership, 0, len(g.Members))
	for _, m := range g.Members {
		rows = append(rows, m.Membership)
	}
	return rows
}

// GroupWrite replaces duplicate memberships as one unit of work. Rows belonging to
// ReplaceGroups or ReplaceImages (or every row when ReplaceAll is set) are removed
// before Members are written. Groups and images that appear in Members are
// replaced implicitly.
type GroupWrite struct {
	ReplaceAll    bool
	ReplaceGroups []string
	ReplaceImages []int64
	Members       []Membership
}

// CatalogStats summarizes catalog contents.
type CatalogStats struct {
	Folders         int `json:"folders"`
	Images          int `json:"images"`
	AnalyzedImages  int `json:"analyzed_images"`
	BlurryImages    int `json:"blurry_images"`
	FaceImages      int `json:"face_images"`
	UniqueHashes    int `json:"unique_hashes"`
	DuplicateGroups int `json:"duplicate_groups"`
	DuplicateImages int `json:"duplicate_images"`
}

// ImageFilter pages through catalog listings.
type ImageFilter struct {
	// Blurry keeps only images flagged blurry.
	Blurry bool
	// NoFace keeps only images analyzed as having no face.
	NoFace bool
	Limit  int
	Offset int
}
