package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"imagecleanse/logging"
	"imagecleanse/types"
)

// ReplaceGroups applies a membership rewrite as one unit of work: the rows
// selected by w are deleted, w.Members inserted, and the result checked so no
// group is left with fewer than two members or without exactly one primary.
// Groups and images named in w.Members are always superseded, so posting the
// same write twice is a no-op.
func (s *Store) ReplaceGroups(ctx context.Context, w types.GroupWrite) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.ReplaceGroups = slices.Clone(w.ReplaceGroups)
	w.ReplaceImages = slices.Clone(w.ReplaceImages)
	for _, m := range w.Members {
		w.ReplaceGroups = append(w.ReplaceGroups, m.GroupID)
		w.ReplaceImages = append(w.ReplaceImages, m.ImageID)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if w.ReplaceAll {
			if _, err := tx.ExecContext(ctx, "DELETE FROM duplicate_memberships"); err != nil {
				return fmt.Errorf("clear memberships: %w", err)
			}
		} else {
			for _, part := range chunk(dedupe(w.ReplaceGroups), maxQueryParams) {
				_, err := tx.ExecContext(ctx,
					"DELETE FROM duplicate_memberships WHERE group_id IN ("+placeholders(len(part))+")", toArgs(part)...)
				if err != nil {
					return fmt.Errorf("delete groups: %w", err)
				}
			}
			for _, part := range chunk(dedupe(w.ReplaceImages), maxQueryParams) {
				_, err := tx.ExecContext(ctx,
					"DELETE FROM duplicate_memberships WHERE image_id IN ("+placeholders(len(part))+")", toArgs(part)...)
				if err != nil {
					return fmt.Errorf("delete image memberships: %w", err)
				}
			}
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO duplicate_memberships (group_id, image_id, is_primary, hash_distance) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare membership insert: %w", err)
		}
		defer stmt.Close()
		for _, m := range w.Members {
			if _, err := stmt.ExecContext(ctx, m.GroupID, m.ImageID, m.IsPrimary, m.HashDistance); err != nil {
				return fmt.Errorf("insert membership %s/%d: %w", m.GroupID, m.ImageID, err)
			}
		}

		return checkGroupInvariants(ctx, tx)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("duplicate groups replaced",
		logging.Bool("replace_all", w.ReplaceAll),
		logging.Int("groups_replaced", len(w.ReplaceGroups)),
		logging.Int("members_written", len(w.Members)),
	)
	return nil
}

func checkGroupInvariants(ctx context.Context, tx *sql.Tx) error {
	var groupID string
	err := tx.QueryRowContext(ctx, `
		SELECT group_id FROM duplicate_memberships
		GROUP BY group_id
		HAVING COUNT(*) < 2 OR SUM(is_primary) <> 1
		LIMIT 1`).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify groups: %w", err)
	}
	return fmt.Errorf("%w: group %s would be left without two members and one primary", types.ErrInvalidGroups, groupID)
}

type groupQuery struct {
	sql  string
	args []any
}

// Groups returns duplicate groups with member details, primary first. A nil
// ids slice returns every group.
func (s *Store) Groups(ctx context.Context, ids []string) ([]types.DuplicateGroup, error) {
	const base = `
		SELECT m.group_id, m.image_id, m.is_primary, m.hash_distance,
		       i.path, COALESCE(a.blur_score, 0), i.width, i.height, i.file_size
		FROM duplicate_memberships m
		JOIN images i ON i.id = m.image_id
		LEFT JOIN image_analysis a ON a.image_id = m.image_id`
	const order = " ORDER BY m.group_id, m.is_primary DESC, i.path"

	var queries []groupQuery
	if ids == nil {
		queries = append(queries, groupQuery{sql: base + order})
	} else {
		for _, part := range chunk(dedupe(ids), maxQueryParams) {
			queries = append(queries, groupQuery{
				sql:  base + " WHERE m.group_id IN (" + placeholders(len(part)) + ")" + order,
				args: toArgs(part),
			})
		}
	}

	var groups []types.DuplicateGroup
	index := make(map[string]int)
	for _, q := range queries {
		if err := s.collectGroups(ctx, q.sql, q.args, &groups, index); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *Store) collectGroups(ctx context.Context, query string, args []any, groups *[]types.DuplicateGroup, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m types.GroupMember
		if err := rows.Scan(&m.GroupID, &m.ImageID, &m.IsPrimary, &m.HashDistance,
			&m.Path, &m.BlurScore, &m.Width, &m.Height, &m.FileSize); err != nil {
			return fmt.Errorf("scan group member: %w", err)
		}
		i, ok := index[m.GroupID]
		if !ok {
			i = len(*groups)
			index[m.GroupID] = i
			*groups = append(*groups, types.DuplicateGroup{ID: m.GroupID})
		}
		(*groups)[i].Members = append((*groups)[i].Members, m)
	}
	return rows.Err()
}
