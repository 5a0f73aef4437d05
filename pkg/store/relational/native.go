package relational

import (
	"context"
	"fmt"
	"regexp"
)

// routineName restricts native cleanup routine names to plain identifiers,
// since the name ends up inside a SQL statement.
var routineName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NativeCleanupConfigured reports whether a store-native bulk-cleanup
// routine is configured. Only PostgreSQL supports server-side routines.
func (s *GORMStore) NativeCleanupConfigured() bool {
	return s.config.NativeCleanupRoutine != "" && s.config.Type == DatabaseTypePostgres
}

// NativeCleanup invokes the configured server-side bulk-cleanup routine and
// returns the number of rows it reports removed.
//
// The routine must be a PostgreSQL function returning a row count, e.g.
//
//	CREATE FUNCTION cleanup_orphaned_data() RETURNS bigint ...
//
// Its result is merged into the cleaner's audit rather than reported
// separately.
func (s *GORMStore) NativeCleanup(ctx context.Context) (int64, error) {
	name := s.config.NativeCleanupRoutine
	if !s.NativeCleanupConfigured() {
		return 0, fmt.Errorf("native cleanup routine not configured")
	}
	if !routineName.MatchString(name) {
		return 0, fmt.Errorf("invalid native cleanup routine name %q", name)
	}

	var removed int64
	err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT %s()", name)).
		Scan(&removed).Error
	if err != nil {
		return 0, fmt.Errorf("native cleanup routine %s failed: %w", name, err)
	}
	return removed, nil
}
