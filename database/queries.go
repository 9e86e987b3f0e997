package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"imagecleanse/types"
)

const imageSelect = `
	SELECT i.id, i.path, i.folder_id, i.content_hash, i.width, i.height, i.file_size, i.checksum, i.orientation,
	       a.image_id IS NOT NULL, a.perceptual_hash, a.blur_score, a.is_blurry, a.has_face, a.analyzed_at,
	       m.group_id
	FROM images i
	LEFT JOIN image_analysis a ON a.image_id = i.id
	LEFT JOIN duplicate_memberships m ON m.image_id = i.id`

func scanImage(scanner interface{ Scan(dest ...any) error }) (types.ImageRecord, error) {
	var (
		rec        types.ImageRecord
		phash      sql.NullString
		blurScore  sql.NullFloat64
		isBlurry   sql.NullBool
		hasFace    sql.NullInt64
		analyzedAt sql.NullString
		groupID    sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID, &rec.Path, &rec.FolderID, &rec.ContentHash, &rec.Width, &rec.Height, &rec.FileSize,
		&rec.Checksum, &rec.Orientation,
		&rec.Analyzed, &phash, &blurScore, &isBlurry, &hasFace, &analyzedAt,
		&groupID,
	); err != nil {
		return types.ImageRecord{}, err
	}
	rec.PerceptualHash = phash.String
	rec.BlurScore = blurScore.Float64
	rec.IsBlurry = isBlurry.Bool
	rec.HasFace = faceFromDB(hasFace)
	rec.AnalyzedAt = parseTime(analyzedAt)
	rec.GroupID = groupID.String
	return rec, nil
}

func (s *Store) queryImages(ctx context.Context, query string, args ...any) ([]types.ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ImageRecord
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Images returns the images whose path, content hash or group matches q, ordered by
// path. An empty query returns the whole catalog.
func (s *Store) Images(ctx context.Context, q types.ImageQuery) ([]types.ImageRecord, error) {
	if q.Empty() {
		recs, err := s.queryImages(ctx, imageSelect+" ORDER BY i.path")
		if err != nil {
			return nil, fmt.Errorf("list images: %w", err)
		}
		return recs, nil
	}

	byID := make(map[int64]types.ImageRecord)
	collect := func(column string, values []string) error {
		for _, part := range chunk(dedupe(values), maxQueryParams) {
			recs, err := s.queryImages(ctx,
				imageSelect+" WHERE "+column+" IN ("+placeholders(len(part))+")", toArgs(part)...)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				byID[rec.ID] = rec
			}
		}
		return nil
	}
	if err := collect("i.path", q.Paths); err != nil {
		return nil, fmt.Errorf("query images by path: %w", err)
	}
	if err := collect("i.content_hash", q.Hashes); err != nil {
		return nil, fmt.Errorf("query images by hash: %w", err)
	}
	if err := collect("m.group_id", q.GroupIDs); err != nil {
		return nil, fmt.Errorf("query images by group: %w", err)
	}

	out := make([]types.ImageRecord, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ListImages pages through images, optionally keeping only blurry or
// face-free ones.
func (s *Store) ListImages(ctx context.Context, f types.ImageFilter) ([]types.ImageRecord, error) {
	var where []string
	if f.Blurry {
		where = append(where, "a.is_blurry = 1")
	}
	if f.NoFace {
		where = append(where, "a.has_face = 0")
	}
	query := imageSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.path"

	var args []any
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, max(f.Offset, 0))
	}
	recs, err := s.queryImages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return recs, nil
}

// Folders lists every known folder.
func (s *Store) Folders(ctx context.Context) ([]types.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, last_scanned_at, last_reported_at, image_count, checksum FROM folders ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []types.Folder
	for rows.Next() {
		var (
			f                 types.Folder
			scanned, reported sql.NullString
			checksum          sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Path, &scanned, &reported, &f.ImageCount, &checksum); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		f.LastScannedAt = parseTime(scanned)
		f.LastReportedAt = parseTime(reported)
		f.Checksum = checksum.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Stats summarizes catalog contents.
func (s *Store) Stats(ctx context.Context) (types.CatalogStats, error) {
	var st types.CatalogStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM folders),
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM image_analysis),
			(SELECT COUNT(*) FROM image_analysis WHERE is_blurry = 1),
			(SELECT COUNT(*) FROM image_analysis WHERE has_face = 1),
			(SELECT COUNT(DISTINCT content_hash) FROM images),
			(SELECT COUNT(DISTINCT group_id) FROM duplicate_memberships),
			(SELECT COUNT(*) FROM duplicate_memberships)`,
	).Scan(&st.Folders, &st.Images, &st.AnalyzedImages, &st.BlurryImages, &st.FaceImages,
		&st.UniqueHashes, &st.DuplicateGroups, &st.DuplicateImages)
	if err != nil {
		return types.CatalogStats{}, fmt.Errorf("catalog stats: %w", err)
	}
	return st, nil
}

func dedupe[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, v := range items {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
