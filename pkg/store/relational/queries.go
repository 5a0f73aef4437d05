package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mediavault/mediavault/pkg/catalog"
)

// Table and column identifiers in this file come exclusively from the static
// catalog, never from request input, so string-building SQL fragments around
// them is safe.

// inClauseBatch caps the size of IN (...) lists so parameter limits are
// never hit on either backend.
const inClauseBatch = 500

// OwnerRow is one row of an owner table projected down to its identity and
// non-null path values.
type OwnerRow struct {
	ID    string
	Paths []string
}

// PathReferenced reports whether any row in any catalog-registered owner
// table contains path in any of its path columns. This is the reachability
// rule for blobs.
func (s *GORMStore) PathReferenced(ctx context.Context, path string) (bool, error) {
	for _, owner := range catalog.Owners() {
		conds := make([]string, len(owner.PathColumns))
		args := make([]any, len(owner.PathColumns))
		for i, col := range owner.PathColumns {
			conds[i] = col + " = ?"
			args[i] = path
		}

		var count int64
		err := s.db.WithContext(ctx).
			Table(owner.Table).
			Where(strings.Join(conds, " OR "), args...).
			Count(&count).Error
		if err != nil {
			return false, fmt.Errorf("reference lookup in %s failed: %w", owner.Table, err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// ListOwnerRows returns up to limit rows of an owner table with their
// non-null path values, for the DB-to-storage existence probe.
func (s *GORMStore) ListOwnerRows(ctx context.Context, owner catalog.Owner, limit int) ([]OwnerRow, error) {
	cols := append([]string{owner.IDColumn}, owner.PathColumns...)

	rows, err := s.db.WithContext(ctx).
		Table(owner.Table).
		Select(strings.Join(cols, ", ")).
		Limit(limit).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("listing %s failed: %w", owner.Table, err)
	}
	defer rows.Close()

	var result []OwnerRow
	for rows.Next() {
		scan := make([]any, len(cols))
		var id sql.NullString
		scan[0] = &id
		paths := make([]sql.NullString, len(owner.PathColumns))
		for i := range paths {
			scan[i+1] = &paths[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scanning %s row failed: %w", owner.Table, err)
		}

		row := OwnerRow{ID: id.String}
		for _, p := range paths {
			if p.Valid && p.String != "" {
				row.Paths = append(row.Paths, p.String)
			}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// OrphanedMetadataIDs returns the ids of metadata rows whose foreign key
// points at no existing owner row.
//
// This is a server-side NOT EXISTS anti-join: the primary id set is never
// materialized client-side, so there is no scale cliff. The limit bounds a
// single run, not correctness; callers needing full coverage call again.
func (s *GORMStore) OrphanedMetadataIDs(ctx context.Context, meta catalog.Metadata, limit int) ([]string, error) {
	cond := fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM %s o WHERE o.%s = %s.%s)",
		meta.OwnerTable, meta.OwnerIDColumn, meta.Table, meta.FKColumn,
	)

	var ids []string
	err := s.db.WithContext(ctx).
		Table(meta.Table).
		Where(cond).
		Limit(limit).
		Pluck(meta.IDColumn, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("anti-join on %s failed: %w", meta.Table, err)
	}
	return ids, nil
}

// PendingDeletionOwners returns rows of the owner table marked with the
// given status, with their path values (so the cascade pass can reclaim
// blobs in the same batch).
func (s *GORMStore) PendingDeletionOwners(ctx context.Context, owner catalog.Owner, status string, limit int) ([]OwnerRow, error) {
	if owner.StatusColumn == "" {
		return nil, nil
	}

	cols := append([]string{owner.IDColumn}, owner.PathColumns...)

	rows, err := s.db.WithContext(ctx).
		Table(owner.Table).
		Select(strings.Join(cols, ", ")).
		Where(owner.StatusColumn+" = ?", status).
		Limit(limit).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("pending-deletion lookup in %s failed: %w", owner.Table, err)
	}
	defer rows.Close()

	var result []OwnerRow
	for rows.Next() {
		scan := make([]any, len(cols))
		var id sql.NullString
		scan[0] = &id
		paths := make([]sql.NullString, len(owner.PathColumns))
		for i := range paths {
			scan[i+1] = &paths[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scanning %s row failed: %w", owner.Table, err)
		}

		row := OwnerRow{ID: id.String}
		for _, p := range paths {
			if p.Valid && p.String != "" {
				row.Paths = append(row.Paths, p.String)
			}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// MetadataIDsForOwners returns the ids of metadata rows whose foreign key
// is in the given owner id set. Used by the cascade pass, keyed by the same
// id batch that deletes the owners.
func (s *GORMStore) MetadataIDsForOwners(ctx context.Context, meta catalog.Metadata, ownerIDs []string) ([]string, error) {
	var ids []string
	for i := 0; i < len(ownerIDs); i += inClauseBatch {
		end := i + inClauseBatch
		if end > len(ownerIDs) {
			end = len(ownerIDs)
		}

		var batch []string
		err := s.db.WithContext(ctx).
			Table(meta.Table).
			Where(meta.FKColumn+" IN ?", ownerIDs[i:end]).
			Pluck(meta.IDColumn, &batch).Error
		if err != nil {
			return nil, fmt.Errorf("dependent lookup in %s failed: %w", meta.Table, err)
		}
		ids = append(ids, batch...)
	}
	return ids, nil
}

// ExpiredEphemeralIDs returns ids of ephemeral rows last updated before
// cutoff.
func (s *GORMStore) ExpiredEphemeralIDs(ctx context.Context, eph catalog.Ephemeral, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table(eph.Table).
		Where(eph.UpdatedColumn+" < ?", cutoff).
		Limit(limit).
		Pluck(eph.IDColumn, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("expiry lookup in %s failed: %w", eph.Table, err)
	}
	return ids, nil
}

// DeleteByIDs deletes exactly the given id set from a table, in chunks.
// Select-then-delete-by-id keeps the audit's attempted and deleted numbers
// consistent even if the underlying condition changes between count and
// delete. Returns the number of rows actually removed.
func (s *GORMStore) DeleteByIDs(ctx context.Context, table, idColumn string, ids []string) (int64, error) {
	var deleted int64
	for i := 0; i < len(ids); i += inClauseBatch {
		end := i + inClauseBatch
		if end > len(ids) {
			end = len(ids)
		}

		res := s.db.WithContext(ctx).Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", table, idColumn),
			ids[i:end],
		)
		if res.Error != nil {
			return deleted, fmt.Errorf("delete from %s failed: %w", table, res.Error)
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}
