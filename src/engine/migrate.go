package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpgradeStats counts what an upgrade created and what it found already in place.
type UpgradeStats struct {
	CollectionsCreated int
	IndexesCreated     int
	Skipped            int
}

// Upgrade brings the objects of s up to newVersion. Every collection and index
// declared at or below newVersion is created unless it already exists, so
// running it again, or over a partially upgraded file, changes nothing.
// Stored records are never rewritten; new indexes are back-filled by SQLite.
func (s *Schema) Upgrade(ctx context.Context, q execer, oldVersion, newVersion int, logger *zap.SugaredLogger) (UpgradeStats, error) {
	var stats UpgradeStats
	for _, c := range s.collections {
		if c.Since > newVersion {
			continue
		}
		exists, err := objectExists(ctx, q, "table", c.Name)
		if err != nil {
			return stats, err
		}
		if exists {
			stats.Skipped++
			if c.Since > oldVersion {
				logger.Warnw("Collection already exists, skipping", "collection", c.Name, "since", c.Since)
			}
		} else {
			ddl := fmt.Sprintf("CREATE TABLE %s (id TEXT PRIMARY KEY NOT NULL, body TEXT NOT NULL)", tableName(c.Name))
			if _, err := q.ExecContext(ctx, ddl); err != nil {
				return stats, fmt.Errorf("failed to create collection %s: %w", c.Name, err)
			}
			stats.CollectionsCreated++
			logger.Infow("Created collection", "collection", c.Name, "since", c.Since)
		}

		for _, idx := range c.Indexes {
			if idx.Since > newVersion {
				continue
			}
			name := indexName(c.Name, idx)
			exists, err := objectExists(ctx, q, "index", name)
			if err != nil {
				return stats, err
			}
			if exists {
				stats.Skipped++
				if idx.Since > oldVersion {
					logger.Warnw("Index already exists, skipping", "collection", c.Name, "index", idx.Name)
				}
				continue
			}
			ddl := fmt.Sprintf("CREATE INDEX %q ON %s (%s)", name, tableName(c.Name), strings.Join(idx.exprs(), ", "))
			if _, err := q.ExecContext(ctx, ddl); err != nil {
				return stats, fmt.Errorf("failed to create index %s on %s: %w", idx.Name, c.Name, err)
			}
			stats.IndexesCreated++
			logger.Infow("Created index", "collection", c.Name, "index", idx.Name, "paths", idx.Paths)
		}
	}

	if _, err := q.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", newVersion)); err != nil {
		return stats, fmt.Errorf("failed to record schema version %d: %w", newVersion, err)
	}
	return stats, nil
}

func objectExists(ctx context.Context, q execer, kind, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s %s: %w", kind, name, err)
	}
	return count > 0, nil
}

func readVersion(ctx context.Context, q execer) (int, error) {
	var version int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// ObjectNames lists the collections and indexes present in the open file.
func (db *Database) ObjectNames(ctx context.Context) (tables []string, indexes []string, err error) {
	err = db.exec(ctx, call{op: "schema", kind: ErrRead}, func(ctx context.Context, q execer) error {
		rows, err := q.QueryContext(ctx,
			"SELECT type, name FROM sqlite_master WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%' ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var kind, name string
			if err := rows.Scan(&kind, &name); err != nil {
				return err
			}
			if kind == "table" {
				tables = append(tables, name)
			} else {
				indexes = append(indexes, name)
			}
		}
		return rows.Err()
	})
	return tables, indexes, err
}
