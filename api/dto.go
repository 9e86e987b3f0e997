// Package api exposes the catalog over the HTTP sync protocol and provides a
// client that speaks it.
package api

import (
	"time"

	"imagecleanse/types"
)

// DatasetItem is one image in an image-dataset submission.
type DatasetItem struct {
	Path        string   `json:"path"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	FileSize    int64    `json:"file_size"`
	PHash       string   `json:"phash"`
	HasFace     *bool    `json:"has_face"`
	BlurScore   float64  `json:"blur_score"`
	Checksum    string   `json:"checksum"`
	Orientation int      `json:"orientation"`
	Tags        []string `json:"tags"`
	Duplicates  []int64  `json:"duplicates"`
}

// DatasetRequest is the body of POST /cleanse/image-dataset.
type DatasetRequest struct {
	Folder         string        `json:"folder"`
	ScanStartedAt  time.Time     `json:"scan_started_at"`
	ScanFinishedAt time.Time     `json:"scan_finished_at"`
	Images         []DatasetItem `json:"images"`
}

// DatasetResponse acknowledges a submission.
type DatasetResponse struct {
	Status          string `json:"status"`
	Folder          string `json:"folder"`
	ImagesProcessed int    `json:"images_processed"`
	ImagesCreated   int    `json:"images_created"`
	ImagesUpdated   int    `json:"images_updated"`
	ImagesUnchanged int    `json:"images_unchanged"`
}

// ImageMetadata is the catalog snapshot row returned to resolvers.
type ImageMetadata struct {
	ID        int64   `json:"id"`
	Path      string  `json:"path"`
	Hash      string  `json:"hash"`
	BlurScore float64 `json:"blur_score"`
	HasFace   *bool   `json:"has_face"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FileSize  int64   `json:"file_size"`
	Analyzed  bool    `json:"analyzed"`
	GroupID   string  `json:"group_id,omitempty"`
}

// MetadataResponse is returned by GET /cleanse/images/metadata.
type MetadataResponse struct {
	Images []ImageMetadata `json:"images"`
}

// MembershipItem is one row of POST /cleanse/images/duplicates.
type MembershipItem struct {
	GroupID      string `json:"group_id"`
	ImageID      int64  `json:"image_id"`
	IsPrimary    bool   `json:"is_primary"`
	HashDistance int    `json:"hash_distance"`
}

// StatusResponse is the generic acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ImageView is a catalog listing row.
type ImageView struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FileSize    int64     `json:"file_size"`
	Checksum    string    `json:"checksum"`
	Orientation int       `json:"orientation"`
	Hash        string    `json:"hash"`
	HasFace     *bool     `json:"has_face"`
	IsBlurry    *bool     `json:"is_blurry"`
	BlurScore   *float64  `json:"blur_score"`
	AnalyzedAt  time.Time `json:"analyzed_at,omitzero"`
	GroupID     string    `json:"group_id,omitempty"`
}

// ImageListResponse wraps catalog listings.
type ImageListResponse struct {
	Images []ImageView `json:"images"`
}

// DuplicatesResponse lists duplicate groups.
type DuplicatesResponse struct {
	Groups []types.DuplicateGroup `json:"groups"`
}

// RescanRequest asks the daemon for a targeted cycle. No paths means a full scan.
type RescanRequest struct {
	Paths []string `json:"paths"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}

func faceFromWire(v *bool) types.FaceState {
	if v == nil {
		return types.FaceUnknown
	}
	return types.FaceStateOf(*v)
}

// DatasetFromReport converts a scan report to its wire form.
func DatasetFromReport(report *types.ScanReport) DatasetRequest {
	req := DatasetRequest{
		Folder:         report.Folder,
		ScanStartedAt:  report.StartedAt,
		ScanFinishedAt: report.FinishedAt,
		Images:         make([]DatasetItem, 0, len(report.Images)),
	}
	for _, img := range report.Images {
		req.Images = append(req.Images, DatasetItem{
			Path:        img.Path,
			Width:       img.Width,
			Height:      img.Height,
			FileSize:    img.FileSize,
			PHash:       img.PerceptualHash,
			HasFace:     img.HasFace.Bool(),
			BlurScore:   img.BlurScore,
			Checksum:    img.Checksum,
			Orientation: img.Orientation,
			Tags:        []string{},
			Duplicates:  []int64{},
		})
	}
	return req
}

// Report converts a submission to a scan report. Tags and duplicates are
// accepted for compatibility and dropped.
func (d DatasetRequest) Report() *types.ScanReport {
	report := &types.ScanReport{
		Folder:     d.Folder,
		StartedAt:  d.ScanStartedAt,
		FinishedAt: d.ScanFinishedAt,
		Images:     make([]types.ImageFeature, 0, len(d.Images)),
		FilesSeen:  len(d.Images),
	}
	for _, item := range d.Images {
		report.Images = append(report.Images, types.ImageFeature{
			Path: item.Path,
			Features: types.Features{
				PerceptualHash: item.PHash,
				BlurScore:      item.BlurScore,
				HasFace:        faceFromWire(item.HasFace),
				Width:          item.Width,
				Height:         item.Height,
				FileSize:       item.FileSize,
				Checksum:       item.Checksum,
				Orientation:    item.Orientation,
			},
		})
	}
	return report
}

func metadataFromRecord(rec types.ImageRecord) ImageMetadata {
	return ImageMetadata{
		ID:        rec.ID,
		Path:      rec.Path,
		Hash:      rec.ContentHash,
		BlurScore: rec.BlurScore,
		HasFace:   rec.HasFace.Bool(),
		Width:     rec.Width,
		Height:    rec.Height,
		FileSize:  rec.FileSize,
		Analyzed:  rec.Analyzed,
		GroupID:   rec.GroupID,
	}
}

// Record converts a metadata row back to a catalog record. The catalog keys
// images by perceptual hash, so hash fills both hash fields.
func (m ImageMetadata) Record() types.ImageRecord {
	rec := types.ImageRecord{
		ID:          m.ID,
		Path:        m.Path,
		ContentHash: m.Hash,
		BlurScore:   m.BlurScore,
		HasFace:     faceFromWire(m.HasFace),
		Width:       m.Width,
		Height:      m.Height,
		FileSize:    m.FileSize,
		Analyzed:    m.Analyzed,
		GroupID:     m.GroupID,
	}
	if m.Analyzed {
		rec.PerceptualHash = m.Hash
	}
	return rec
}

func viewFromRecord(rec types.ImageRecord) ImageView {
	v := ImageView{
		ID:          rec.ID,
		Path:        rec.Path,
		Width:       rec.Width,
		Height:      rec.Height,
		FileSize:    rec.FileSize,
		Checksum:    rec.Checksum,
		Orientation: rec.Orientation,
		Hash:        rec.ContentHash,
		HasFace:     rec.HasFace.Bool(),
		GroupID:     rec.GroupID,
	}
	if rec.Analyzed {
		blurry, score := rec.IsBlurry, rec.BlurScore
		v.IsBlurry = &blurry
		v.BlurScore = &score
		v.AnalyzedAt = rec.AnalyzedAt
	}
	return v
}

func membershipsFromWire(items []MembershipItem) []types.Membership {
	out := make([]types.Membership, 0, len(items))
	for _, it := range items {
		out = append(out, types.Membership{
			GroupID:      it.GroupID,
			ImageID:      it.ImageID,
			IsPrimary:    it.IsPrimary,
			HashDistance: it.HashDistance,
		})
	}
	return out
}

func membershipsToWire(rows []types.Membership) []MembershipItem {
	out := make([]MembershipItem, 0, len(rows))
	for _, m := range rows {
		out = append(out, MembershipItem{
			GroupID:      m.GroupID,
			ImageID:      m.ImageID,
			IsPrimary:    m.IsPrimary,
			HashDistance: m.HashDistance,
		})
	}
	return out
}
