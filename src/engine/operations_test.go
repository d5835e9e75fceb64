package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(ws []widget) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func TestAddItem_DuplicateKeyLeavesOriginal(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	key, err := AddItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "bolt"})
	require.NoError(t, err)
	assert.Equal(t, "w1", key)

	_, err = AddItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "nut"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraint)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "add", serr.Op)
	assert.Equal(t, "widgets", serr.Collection)
	assert.Equal(t, "w1", serr.Key)

	got, err := GetItem(ctx, db, ts.widgets, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bolt", got.Kind)
}

func TestGetItem_MissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	got, err := GetItem(ctx, db, ts.widgets, "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutItem_ReplacesWholeRecord(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	_, err := PutItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "bolt", Owner: "ann", Size: 3})
	require.NoError(t, err)
	_, err = PutItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "nut"})
	require.NoError(t, err)

	got, err := GetItem(ctx, db, ts.widgets, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, widget{ID: "w1", Kind: "nut"}, *got)

	n, err := CountItems(ctx, db, ts.widgets)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPutItem_IndexFollowsLatestValue(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	_, err := PutItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "bolt"})
	require.NoError(t, err)
	_, err = PutItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "nut"})
	require.NoError(t, err)

	bolts, err := GetItemsByIndex(ctx, db, ts.byKind, Only("bolt"))
	require.NoError(t, err)
	assert.Empty(t, bolts)

	nuts, err := GetItemsByIndex(ctx, db, ts.byKind, Only("nut"))
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, ids(nuts))
}

func TestGetItemsByIndex_Ranges(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	for _, w := range []widget{
		{ID: "w4", Kind: "c"},
		{ID: "w1", Kind: "b"},
		{ID: "w3", Kind: "a"},
		{ID: "w2", Kind: "a"},
		{ID: "w5", Kind: "d"},
	} {
		_, err := PutItem(ctx, db, ts.widgets, w)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		r    KeyRange[string]
		want []string
	}{
		{"all", KeyRange[string]{}, []string{"w2", "w3", "w1", "w4", "w5"}},
		{"only", Only("a"), []string{"w2", "w3"}},
		{"closed bound", Bound("b", "c", false, false), []string{"w1", "w4"}},
		{"open bound", Bound("a", "d", true, true), []string{"w1", "w4"}},
		{"lower", LowerBound("c", false), []string{"w4", "w5"}},
		{"open lower", LowerBound("c", true), []string{"w5"}},
		{"upper", UpperBound("b", false), []string{"w2", "w3", "w1"}},
		{"open upper", UpperBound("b", true), []string{"w2", "w3"}},
		{"no match", Only("z"), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetItemsByIndex(ctx, db, ts.byKind, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestGetItemsByIndex_CompoundKeyMatchesAllParts(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	for _, w := range []widget{
		{ID: "w1", Owner: "ann", Parent: ""},
		{ID: "w2", Owner: "ann", Parent: "w1"},
		{ID: "w3", Owner: "ann", Parent: "w1"},
		{ID: "w4", Owner: "bob", Parent: "w1"},
		{ID: "w5", Owner: "bob", Parent: ""},
	} {
		_, err := PutItem(ctx, db, ts.widgets, w)
		require.NoError(t, err)
	}

	children, err := GetItemsByIndex(ctx, db, ts.byOwnerParent, Only(ownerParent{Owner: "ann", Parent: "w1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"w2", "w3"}, ids(children))

	roots, err := GetItemsByIndex(ctx, db, ts.byOwnerParent, Only(ownerParent{Owner: "bob", Parent: ""}))
	require.NoError(t, err)
	assert.Equal(t, []string{"w5"}, ids(roots))

	// Row values order by owner first.
	after, err := GetItemsByIndex(ctx, db, ts.byOwnerParent, LowerBound(ownerParent{Owner: "ann", Parent: "w1"}, true))
	require.NoError(t, err)
	assert.Equal(t, []string{"w5", "w4"}, ids(after))
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	_, err := PutItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "bolt", Size: 1})
	require.NoError(t, err)

	t.Run("applies changes", func(t *testing.T) {
		got, err := UpdateItem(ctx, db, ts.widgets, "w1", func(w *widget) error {
			w.Size = 7
			return nil
		})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 7, got.Size)

		stored, err := GetItem(ctx, db, ts.widgets, "w1")
		require.NoError(t, err)
		assert.Equal(t, 7, stored.Size)
		assert.Equal(t, "bolt", stored.Kind)
	})

	t.Run("missing key", func(t *testing.T) {
		got, err := UpdateItem(ctx, db, ts.widgets, "nope", func(w *widget) error {
			t.Fatal("fn called for missing record")
			return nil
		})
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("key change rejected", func(t *testing.T) {
		_, err := UpdateItem(ctx, db, ts.widgets, "w1", func(w *widget) error {
			w.ID = "w2"
			return nil
		})
		assert.ErrorIs(t, err, ErrValidation)

		moved, err := GetItem(ctx, db, ts.widgets, "w2")
		require.NoError(t, err)
		assert.Nil(t, moved)
	})

	t.Run("fn error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := UpdateItem(ctx, db, ts.widgets, "w1", func(w *widget) error {
			w.Size = 99
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, ErrWrite)

		stored, err := GetItem(ctx, db, ts.widgets, "w1")
		require.NoError(t, err)
		assert.Equal(t, 7, stored.Size)
	})
}

func TestWrites_RejectInvalidRecords(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	_, err := AddItem(ctx, db, ts.widgets, widget{ID: ""})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = PutItem(ctx, db, ts.widgets, widget{ID: "w1", Size: -1})
	assert.ErrorIs(t, err, ErrValidation)

	n, err := CountItems(ctx, db, ts.widgets)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteItem_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	_, err := PutItem(ctx, db, ts.widgets, widget{ID: "w1", Kind: "bolt"})
	require.NoError(t, err)

	require.NoError(t, DeleteItem(ctx, db, ts.widgets, "w1"))
	require.NoError(t, DeleteItem(ctx, db, ts.widgets, "w1"))

	got, err := GetItem(ctx, db, ts.widgets, "w1")
	require.NoError(t, err)
	assert.Nil(t, got)

	bolts, err := GetItemsByIndex(ctx, db, ts.byKind, Only("bolt"))
	require.NoError(t, err)
	assert.Empty(t, bolts)
}

func TestClearStore_OnlyTouchesOneCollection(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	for _, id := range []string{"w1", "w2", "w3"} {
		_, err := AddItem(ctx, db, ts.widgets, widget{ID: id})
		require.NoError(t, err)
	}
	_, err := AddItem(ctx, db, ts.gadgets, widget{ID: "g1"})
	require.NoError(t, err)

	require.NoError(t, ClearStore(ctx, db, ts.widgets))

	all, err := GetAllItems(ctx, db, ts.widgets)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NotNil(t, all)

	gadgets, err := GetAllItems(ctx, db, ts.gadgets)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, ids(gadgets))
}

func TestGetAllItems_KeyOrder(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	db := openTestDB(t, ts, t.TempDir(), 3)

	for _, id := range []string{"c", "a", "b"} {
		_, err := AddItem(ctx, db, ts.widgets, widget{ID: id})
		require.NoError(t, err)
	}
	all, err := GetAllItems(ctx, db, ts.widgets)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))
}

func TestJournal_RecordsCommittedWrites(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	dir := t.TempDir()
	journal, err := NewJournal(filepath.Join(dir, "journal", "test.journal"), 0, 0)
	require.NoError(t, err)
	db := openTestDB(t, ts, dir, 3, WithJournal(journal))

	_, err = AddItem(ctx, db, ts.widgets, widget{ID: "w1"})
	require.NoError(t, err)
	_, err = AddItem(ctx, db, ts.widgets, widget{ID: "w1"})
	require.Error(t, err)
	_, err = UpdateItem(ctx, db, ts.widgets, "missing", func(*widget) error { return nil })
	require.NoError(t, err)
	_, err = GetItem(ctx, db, ts.widgets, "w1")
	require.NoError(t, err)
	require.NoError(t, db.RunInTransaction(ctx, func(tx *Tx) error {
		return DeleteItem(ctx, tx, ts.widgets, "w1")
	}))
	require.NoError(t, DeleteItem(ctx, db, ts.widgets, "w1"))
	require.NoError(t, db.RunInTransaction(ctx, func(tx *Tx) error {
		return DeleteItem(ctx, tx, ts.widgets, "never-stored")
	}))

	data, err := os.ReadFile(journal.CurrentFile())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " | add | widgets | w1"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " | delete | widgets | w1"), lines[1])
}

func TestMetrics_CountsOperations(t *testing.T) {
	ctx := context.Background()
	ts := newTestSchema()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)
	db := openTestDB(t, ts, t.TempDir(), 3, WithMetrics(m))

	_, err = AddItem(ctx, db, ts.widgets, widget{ID: "w1"})
	require.NoError(t, err)
	_, err = AddItem(ctx, db, ts.widgets, widget{ID: "w1"})
	require.Error(t, err)
	_, err = GetItem(ctx, db, ts.widgets, "w1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("add", "widgets", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("add", "widgets", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("get", "widgets", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))

	_, err = NewMetrics("test", reg)
	assert.Error(t, err)
}
