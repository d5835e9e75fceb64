// Package snapshot exports collections to BSON bundle files and imports them
// back. Bundles can be sealed with a passphrase.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"mediatorpro/src/catalog"
	"mediatorpro/src/engine"
	"mediatorpro/src/helpers"
)

var (
	// ErrSealed means the bundle is sealed and the passphrase is missing or wrong.
	ErrSealed = errors.New("bundle is sealed: missing or wrong passphrase")
	// ErrMismatch means the bundle holds a different collection than requested.
	ErrMismatch = errors.New("bundle collection mismatch")
	// ErrNewerSchema means the bundle was exported at a newer schema version
	// than the database is open at.
	ErrNewerSchema = errors.New("bundle schema version is newer than the database")
	// ErrUnknownCollection is returned for names that are not in the catalog.
	ErrUnknownCollection = errors.New("unknown collection")
)

type Service struct {
	db     *engine.Database
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(db *engine.Database, logger *zap.SugaredLogger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

func lookup(name string) (catalog.Store, error) {
	st, ok := catalog.StoreByName(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCollection)
	}
	return st, nil
}

// Export writes one collection to <dir>/<collection>.bundle and returns the
// number of records written. A non-empty passphrase seals the payload.
func (s *Service) Export(ctx context.Context, collection, dir, passphrase string) (int, error) {
	st, err := lookup(collection)
	if err != nil {
		return 0, err
	}
	return s.export(ctx, st, dir, passphrase)
}

// ExportAll exports every collection and returns the record count of each.
func (s *Service) ExportAll(ctx context.Context, dir, passphrase string) (map[string]int, error) {
	counts := make(map[string]int, len(catalog.Stores))
	for _, st := range catalog.Stores {
		n, err := s.export(ctx, st, dir, passphrase)
		if err != nil {
			return counts, err
		}
		counts[st.Name()] = n
	}
	return counts, nil
}

func (s *Service) export(ctx context.Context, st catalog.Store, dir, passphrase string) (int, error) {
	var records any
	var count int
	// Read records and count in one transaction so the envelope matches.
	err := s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		var err error
		if records, err = st.All(ctx, tx); err != nil {
			return err
		}
		count, err = st.Count(ctx, tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", st.Name(), err)
	}

	body, err := helpers.EncodeBSON(payload{Records: records})
	if err != nil {
		return 0, err
	}

	env := &Envelope{
		Collection:    st.Name(),
		SchemaVersion: s.db.Config().Version,
		ExportedAt:    s.now().UTC(),
		Count:         count,
		Payload:       body,
	}
	if passphrase != "" {
		salt, err := newSalt()
		if err != nil {
			return 0, fmt.Errorf("failed to generate salt: %w", err)
		}
		sealed, err := seal(body, deriveKey(passphrase, salt))
		if err != nil {
			return 0, fmt.Errorf("failed to seal %s: %w", st.Name(), err)
		}
		env.Sealed = true
		env.Salt = salt
		env.Payload = sealed
	}

	path := BundlePath(dir, st.Name())
	if err := writeBundle(path, env); err != nil {
		return 0, err
	}
	s.logger.Infow("Exported collection", "collection", st.Name(), "count", count, "path", path, "sealed", env.Sealed)
	return count, nil
}

// Import loads <dir>/<collection>.bundle into the collection in one
// transaction, replacing records with the same key. With clear set the
// collection is emptied first.
func (s *Service) Import(ctx context.Context, collection, dir, passphrase string, clear bool) (int, error) {
	st, err := lookup(collection)
	if err != nil {
		return 0, err
	}
	return s.importBundle(ctx, st, BundlePath(dir, st.Name()), passphrase, clear)
}

// ImportAll imports every collection that has a bundle under dir.
func (s *Service) ImportAll(ctx context.Context, dir, passphrase string, clear bool) (map[string]int, error) {
	counts := make(map[string]int)
	for _, st := range catalog.Stores {
		path := BundlePath(dir, st.Name())
		if !helpers.FileExists(path, s.logger) {
			s.logger.Debugw("No bundle for collection, skipping", "collection", st.Name(), "path", path)
			continue
		}
		n, err := s.importBundle(ctx, st, path, passphrase, clear)
		if err != nil {
			return counts, err
		}
		counts[st.Name()] = n
	}
	return counts, nil
}

func (s *Service) importBundle(ctx context.Context, st catalog.Store, path, passphrase string, clear bool) (int, error) {
	env, err := readBundle(path)
	if err != nil {
		return 0, err
	}
	if env.Collection != st.Name() {
		return 0, fmt.Errorf("%s holds %s, not %s: %w", path, env.Collection, st.Name(), ErrMismatch)
	}
	if env.SchemaVersion > s.db.Config().Version {
		return 0, fmt.Errorf("%s is at version %d, database at %d: %w",
			path, env.SchemaVersion, s.db.Config().Version, ErrNewerSchema)
	}

	body := env.Payload
	if env.Sealed {
		if passphrase == "" {
			return 0, fmt.Errorf("%s: %w", path, ErrSealed)
		}
		body, err = unseal(env.Payload, deriveKey(passphrase, env.Salt))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, ErrSealed)
		}
	}

	var raw struct {
		Records bson.RawValue `bson:"records"`
	}
	if err := helpers.DecodeBSON(body, &raw); err != nil {
		return 0, fmt.Errorf("error decoding records in %s: %w", path, err)
	}

	var n int
	err = s.db.RunInTransaction(ctx, func(tx *engine.Tx) error {
		if clear {
			if err := st.Clear(ctx, tx); err != nil {
				return err
			}
		}
		var err error
		n, err = st.PutAll(ctx, tx, func(dst any) error {
			if raw.Records.Type == 0 || raw.Records.Type == bson.TypeNull {
				return nil
			}
			return raw.Records.Unmarshal(dst)
		})
		if err != nil {
			return err
		}
		if n != env.Count {
			return fmt.Errorf("%s declares %d records but holds %d", path, env.Count, n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import %s: %w", st.Name(), err)
	}

	s.logger.Infow("Imported collection", "collection", st.Name(), "count", n, "path", path, "cleared", clear)
	return n, nil
}
