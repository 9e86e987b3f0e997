package database

import (
	"context"
	"database/sql"
	"fmt"

	"imagecleanse/logging"
)

// RemoveImages deletes the images at paths together with their analysis
// rows. Groups that held a removed image are dissolved; the paths of their
// surviving members are returned so the caller can regroup them.
func (s *Store) RemoveImages(ctx context.Context, paths []string) (int, []string, error) {
	var (
		removed   int
		survivors []string
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		removed, survivors = 0, nil
		for _, part := range chunk(dedupe(paths), maxQueryParams) {
			args := toArgs(part)
			in := placeholders(len(part))

			rows, err := tx.QueryContext(ctx, `
				SELECT i.path FROM duplicate_memberships m
				JOIN images i ON i.id = m.image_id
				WHERE m.group_id IN (
					SELECT m2.group_id FROM duplicate_memberships m2
					JOIN images i2 ON i2.id = m2.image_id
					WHERE i2.path IN (`+in+`))
				AND i.path NOT IN (`+in+`)`, append(args, args...)...)
			if err != nil {
				return fmt.Errorf("find affected groups: %w", err)
			}
			for rows.Next() {
				var p string
				if err := rows.Scan(&p); err != nil {
					rows.Close()
					return err
				}
				survivors = append(survivors, p)
			}
			err = rows.Err()
			rows.Close()
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				DELETE FROM duplicate_memberships WHERE group_id IN (
					SELECT m.group_id FROM duplicate_memberships m
					JOIN images i ON i.id = m.image_id
					WHERE i.path IN (`+in+`))`, args...)
			if err != nil {
				return fmt.Errorf("dissolve groups: %w", err)
			}

			res, err := tx.ExecContext(ctx, "DELETE FROM images WHERE path IN ("+in+")", args...)
			if err != nil {
				return fmt.Errorf("delete images: %w", err)
			}
			n, _ := res.RowsAffected()
			removed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if removed > 0 {
		s.logger.Info("images removed", logging.Int("removed", removed), logging.Int("regroup", len(survivors)))
	}
	return removed, dedupe(survivors), nil
}
