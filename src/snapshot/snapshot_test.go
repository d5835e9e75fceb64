package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mediatorpro/src/catalog"
	"mediatorpro/src/engine"
	"mediatorpro/src/models"
)

func newTestDB(t *testing.T, version int) *engine.Database {
	t.Helper()
	db, err := engine.NewDatabase(engine.Config{DataDir: t.TempDir(), Name: "mediatorpro", Version: version},
		catalog.Schema, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, ctx context.Context, db *engine.Database) {
	t.Helper()
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	_, err := engine.AddItem(ctx, db, catalog.Matters, models.Matter{
		ID:        "m1",
		Title:     "Lee v. Acme",
		Status:    models.MatterOpen,
		Parties:   []models.Party{{Name: "Ann Lee", Role: "Claimant"}},
		CreatedAt: created,
		UpdatedAt: created,
	})
	require.NoError(t, err)
	for _, c := range []models.Contact{
		{ID: "c1", Name: "Ann Lee", Email: "ann@example.com", Type: models.ContactPerson, CaseFileNumbers: []string{"CF-1"}},
		{ID: "c2", Name: "Acme", Type: models.ContactOrganization},
	} {
		_, err := engine.AddItem(ctx, db, catalog.Contacts, c)
		require.NoError(t, err)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestDB(t, 0)
	seed(t, ctx, src)
	dir := t.TempDir()

	exporter := NewService(src, zaptest.NewLogger(t).Sugar())
	counts, err := exporter.ExportAll(ctx, dir, "")
	require.NoError(t, err)
	assert.Equal(t, 1, counts["matters"])
	assert.Equal(t, 2, counts["contacts"])
	assert.Equal(t, 0, counts["tasks"])
	assert.FileExists(t, BundlePath(dir, "matters"))

	dst := newTestDB(t, 0)
	importer := NewService(dst, zaptest.NewLogger(t).Sugar())
	imported, err := importer.ImportAll(ctx, dir, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, imported["contacts"])

	want, err := engine.GetItem(ctx, src, catalog.Matters, "m1")
	require.NoError(t, err)
	got, err := engine.GetItem(ctx, dst, catalog.Matters, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Parties, got.Parties)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	contact, err := engine.GetItem(ctx, dst, catalog.Contacts, "c1")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, []string{"CF-1"}, contact.CaseFileNumbers)

	byName, err := catalog.ContactsByName(ctx, dst, "Acme")
	require.NoError(t, err)
	assert.Len(t, byName, 1)
}

func TestImport_ClearReplacesCollection(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 0)
	seed(t, ctx, db)
	dir := t.TempDir()
	svc := NewService(db, zaptest.NewLogger(t).Sugar())

	_, err := svc.Export(ctx, "contacts", dir, "")
	require.NoError(t, err)
	_, err = engine.AddItem(ctx, db, catalog.Contacts, models.Contact{ID: "c3", Name: "Later"})
	require.NoError(t, err)

	n, err := svc.Import(ctx, "contacts", dir, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	count, err := engine.CountItems(ctx, db, catalog.Contacts)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = svc.Import(ctx, "contacts", dir, "", true)
	require.NoError(t, err)
	count, err = engine.CountItems(ctx, db, catalog.Contacts)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSealedBundle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 0)
	seed(t, ctx, db)
	dir := t.TempDir()
	svc := NewService(db, zaptest.NewLogger(t).Sugar())

	_, err := svc.Export(ctx, "contacts", dir, "correct horse")
	require.NoError(t, err)

	env, err := readBundle(BundlePath(dir, "contacts"))
	require.NoError(t, err)
	assert.True(t, env.Sealed)
	assert.Len(t, env.Salt, saltLen)
	assert.Equal(t, 2, env.Count)
	assert.NotContains(t, string(env.Payload), "Ann Lee")

	_, err = svc.Import(ctx, "contacts", dir, "", true)
	assert.ErrorIs(t, err, ErrSealed)
	_, err = svc.Import(ctx, "contacts", dir, "wrong", true)
	assert.ErrorIs(t, err, ErrSealed)

	count, err := engine.CountItems(ctx, db, catalog.Contacts)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err := svc.Import(ctx, "contacts", dir, "correct horse", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImport_RejectsMismatchedBundles(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, 0)
	seed(t, ctx, db)
	dir := t.TempDir()
	svc := NewService(db, zaptest.NewLogger(t).Sugar())

	_, err := svc.Export(ctx, "contacts", dir, "")
	require.NoError(t, err)
	require.NoError(t, os.Rename(BundlePath(dir, "contacts"), BundlePath(dir, "notes")))

	_, err = svc.Import(ctx, "notes", dir, "", false)
	assert.ErrorIs(t, err, ErrMismatch)

	_, err = svc.Import(ctx, "widgets", dir, "", false)
	assert.ErrorIs(t, err, ErrUnknownCollection)
	_, err = svc.Export(ctx, "widgets", dir, "")
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestImport_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	latest := newTestDB(t, 0)
	seed(t, ctx, latest)
	dir := t.TempDir()

	_, err := NewService(latest, zaptest.NewLogger(t).Sugar()).Export(ctx, "contacts", dir, "")
	require.NoError(t, err)

	older := newTestDB(t, 1)
	_, err = NewService(older, zaptest.NewLogger(t).Sugar()).Import(ctx, "contacts", dir, "", false)
	assert.ErrorIs(t, err, ErrNewerSchema)
}

func TestReadBundle_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := readBundle(filepath.Join(dir, "missing.bundle"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.bundle")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = readBundle(empty)
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.bundle")
	require.NoError(t, os.WriteFile(garbage, []byte("not bson at all"), 0644))
	_, err = readBundle(garbage)
	assert.Error(t, err)
}

func TestSealUnseal(t *testing.T) {
	salt, err := newSalt()
	require.NoError(t, err)
	key := deriveKey("secret", salt)
	assert.Len(t, key, keyLen)
	assert.Equal(t, key, deriveKey("secret", salt))

	sealed, err := seal([]byte("payload"), key)
	require.NoError(t, err)
	plain, err := unseal(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))

	_, err = unseal(sealed, deriveKey("other", salt))
	assert.Error(t, err)
	_, err = unseal([]byte{1, 2}, key)
	assert.Error(t, err)
}
