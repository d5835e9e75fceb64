package catalog

import (
	"context"
	"sort"

	"mediatorpro/src/engine"
	"mediatorpro/src/models"
)

// Store is an untyped view of one collection for tooling that walks every
// collection: the CLI and snapshots.
type Store interface {
	Name() string
	Count(ctx context.Context, s engine.Scope) (int, error)
	Clear(ctx context.Context, s engine.Scope) error
	// All returns the collection's records as a []T.
	All(ctx context.Context, s engine.Scope) (any, error)
	// PutAll calls decode with a *[]T, then puts every decoded record.
	PutAll(ctx context.Context, s engine.Scope, decode func(dst any) error) (int, error)
}

type store[T engine.Record] struct {
	c engine.Collection[T]
}

func (st store[T]) Name() string { return st.c.Name() }

func (st store[T]) Count(ctx context.Context, s engine.Scope) (int, error) {
	return engine.CountItems(ctx, s, st.c)
}

func (st store[T]) Clear(ctx context.Context, s engine.Scope) error {
	return engine.ClearStore(ctx, s, st.c)
}

func (st store[T]) All(ctx context.Context, s engine.Scope) (any, error) {
	return engine.GetAllItems(ctx, s, st.c)
}

func (st store[T]) PutAll(ctx context.Context, s engine.Scope, decode func(dst any) error) (int, error) {
	var records []T
	if err := decode(&records); err != nil {
		return 0, err
	}
	for _, rec := range records {
		if _, err := engine.PutItem(ctx, s, st.c, rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// Stores lists every collection in declaration order.
var Stores = []Store{
	store[models.Matter]{Matters},
	store[models.Note]{Notes},
	store[models.Contact]{Contacts},
	store[models.Document]{Documents},
	store[models.Task]{Tasks},
	store[models.CaseFile]{CaseFiles},
	store[models.TimelineEvent]{Timeline},
}

// StoreByName finds the store for a collection name.
func StoreByName(name string) (Store, bool) {
	for _, st := range Stores {
		if st.Name() == name {
			return st, true
		}
	}
	return nil, false
}

// StoreNames returns the collection names, sorted.
func StoreNames() []string {
	names := make([]string, len(Stores))
	for i, st := range Stores {
		names[i] = st.Name()
	}
	sort.Strings(names)
	return names
}
