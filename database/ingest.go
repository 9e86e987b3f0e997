package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"imagecleanse/logging"
	"imagecleanse/types"
)

type storedImage struct {
	id          int64
	folderID    int64
	contentHash string
	width       int
	height      int
	fileSize    int64
	checksum    string
	orientation int
	analyzed    bool
	phash       sql.NullString
	blurScore   sql.NullFloat64
	isBlurry    sql.NullBool
	hasFace     sql.NullInt64
}

// Ingest persists one scan report in a single transaction. The report is
// validated first; an invalid report or any write failure leaves the catalog
// untouched. Duplicate memberships are not modified.
func (s *Store) Ingest(ctx context.Context, report *types.ScanReport) (types.IngestSummary, error) {
	if err := report.Validate(); err != nil {
		return types.IngestSummary{}, err
	}

	var summary types.IngestSummary
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		summary = types.IngestSummary{}
		now := formatTime(s.now())

		folderID, err := upsertFolder(ctx, tx, report, now)
		if err != nil {
			return err
		}
		summary.FoldersTouched = 1

		for _, img := range report.Images {
			created, updated, err := s.upsertImage(ctx, tx, folderID, img, now)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", img.Path, err)
			}
			switch {
			case created:
				summary.ImagesCreated++
			case updated:
				summary.ImagesUpdated++
			default:
				summary.ImagesUnchanged++
			}
		}

		return nil
	})
	if err != nil {
		return types.IngestSummary{}, err
	}

	s.logger.Info("report ingested",
		logging.String(logging.FieldFolder, report.Folder),
		logging.Int("created", summary.ImagesCreated),
		logging.Int("updated", summary.ImagesUpdated),
		logging.Int("unchanged", summary.ImagesUnchanged),
		logging.Int("file_errors", len(report.Errors)),
		logging.Float64("blur_threshold", s.blurThreshold),
	)
	return summary, nil
}

func upsertFolder(ctx context.Context, tx *sql.Tx, report *types.ScanReport, now string) (int64, error) {
	scanned := formatTime(report.FinishedAt)
	if scanned == "" {
		scanned = now
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO folders (path, last_scanned_at, last_reported_at, image_count, checksum)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			last_scanned_at = excluded.last_scanned_at,
			last_reported_at = excluded.last_reported_at,
			image_count = excluded.image_count,
			checksum = excluded.checksum
		RETURNING id`,
		report.Folder, scanned, now, len(report.Images), reportChecksum(report),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert folder %s: %w", report.Folder, err)
	}
	return id, nil
}

func loadStoredImage(ctx context.Context, tx *sql.Tx, path string) (*storedImage, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT i.id, i.folder_id, i.content_hash, i.width, i.height, i.file_size, i.checksum, i.orientation,
		       a.image_id IS NOT NULL, a.perceptual_hash, a.blur_score, a.is_blurry, a.has_face
		FROM images i
		LEFT JOIN image_analysis a ON a.image_id = i.id
		WHERE i.path = ?`, path)

	var st storedImage
	err := row.Scan(&st.id, &st.folderID, &st.contentHash, &st.width, &st.height, &st.fileSize, &st.checksum,
		&st.orientation, &st.analyzed, &st.phash, &st.blurScore, &st.isBlurry, &st.hasFace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (st *storedImage) imageChanged(folderID int64, f types.Features) bool {
	return st.folderID != folderID ||
		st.contentHash != f.PerceptualHash ||
		st.width != f.Width ||
		st.height != f.Height ||
		st.fileSize != f.FileSize ||
		st.checksum != f.Checksum ||
		st.orientation != f.Orientation
}

func (st *storedImage) analysisChanged(f types.Features, blurry bool) bool {
	if !st.analyzed {
		return true
	}
	return st.phash.String != f.PerceptualHash ||
		st.blurScore.Float64 != f.BlurScore ||
		st.isBlurry.Bool != blurry ||
		faceFromDB(st.hasFace) != f.HasFace
}

func (s *Store) upsertImage(ctx context.Context, tx *sql.Tx, folderID int64, img types.ImageFeature, now string) (created, updated bool, err error) {
	st, err := loadStoredImage(ctx, tx, img.Path)
	if err != nil {
		return false, false, fmt.Errorf("load existing row: %w", err)
	}
	f := img.Features
	blurry := types.IsBlurry(f.BlurScore, s.blurThreshold)

	imageID := int64(0)
	switch {
	case st == nil:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO images (path, folder_id, content_hash, width, height, file_size, checksum, orientation, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			img.Path, folderID, f.PerceptualHash, f.Width, f.Height, f.FileSize, f.Checksum, f.Orientation, now, now,
		).Scan(&imageID)
		if err != nil {
			return false, false, fmt.Errorf("insert image: %w", err)
		}
		created = true
	default:
		imageID = st.id
		if st.imageChanged(folderID, f) {
			_, err = tx.ExecContext(ctx, `
				UPDATE images
				SET folder_id = ?, content_hash = ?, width = ?, height = ?, file_size = ?, checksum = ?, orientation = ?, updated_at = ?
				WHERE id = ?`,
				folderID, f.PerceptualHash, f.Width, f.Height, f.FileSize, f.Checksum, f.Orientation, now, imageID,
			)
			if err != nil {
				return false, false, fmt.Errorf("update image: %w", err)
			}
			updated = true
		}
	}

	if st == nil || st.analysisChanged(f, blurry) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO image_analysis (image_id, perceptual_hash, blur_score, is_blurry, has_face, analyzed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(image_id) DO UPDATE SET
				perceptual_hash = excluded.perceptual_hash,
				blur_score = excluded.blur_score,
				is_blurry = excluded.is_blurry,
				has_face = excluded.has_face,
				analyzed_at = excluded.analyzed_at`,
			imageID, f.PerceptualHash, f.BlurScore, blurry, faceToDB(f.HasFace), now,
		)
		if err != nil {
			return false, false, fmt.Errorf("upsert analysis: %w", err)
		}
		if st != nil {
			updated = true
		}
	}
	return created, updated, nil
}

// reportChecksum is a SHA-256 over the sorted (path, checksum) pairs of the
// report's images.
func reportChecksum(report *types.ScanReport) string {
	images := slices.Clone(report.Images)
	slices.SortFunc(images, func(a, b types.ImageFeature) int { return strings.Compare(a.Path, b.Path) })
	h := sha256.New()
	for _, img := range images {
		fmt.Fprintf(h, "%s\x00%s\n", img.Path, img.Checksum)
	}
	return hex.EncodeToString(h.Sum(nil))
}
