package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AddItem inserts rec and returns its key. It fails with ErrConstraint when
// the key already exists, leaving the stored record untouched.
func AddItem[T Record](ctx context.Context, s Scope, c Collection[T], rec T) (string, error) {
	key := rec.PrimaryKey()
	cl := call{op: "add", collection: c.Name(), key: key, kind: ErrWrite, write: true}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		body, err := encodeRecord(ctx, s, rec)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, body) VALUES (?, ?)", tableName(c.Name())), key, body)
		return err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// GetItem returns the record stored under key, or nil when there is none.
// A missing record is not an error.
func GetItem[T Record](ctx context.Context, s Scope, c Collection[T], key string) (*T, error) {
	var out *T
	cl := call{op: "get", collection: c.Name(), key: key, kind: ErrLookup}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		rec, err := selectByKey[T](ctx, q, c.Name(), key)
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllItems returns every record in c in key order.
func GetAllItems[T Record](ctx context.Context, s Scope, c Collection[T]) ([]T, error) {
	var out []T
	cl := call{op: "getAll", collection: c.Name(), kind: ErrRead}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		var err error
		out, err = selectRecords[T](ctx, q,
			fmt.Sprintf("SELECT body FROM %s ORDER BY id", tableName(c.Name())))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetItemsByIndex returns the records whose indexed key falls in r, in index
// order and then key order.
func GetItemsByIndex[T Record, K any](ctx context.Context, s Scope, idx Index[T, K], r KeyRange[K]) ([]T, error) {
	var out []T
	coll := idx.coll.Name()
	cl := call{op: "getByIndex", collection: coll, index: idx.spec.Name, kind: ErrRead}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		where, args, err := whereClause(idx.spec, idx.encode, r)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("SELECT body FROM %s WHERE %s ORDER BY %s, id",
			tableName(coll), where, strings.Join(idx.spec.exprs(), ", "))
		out, err = selectRecords[T](ctx, q, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutItem inserts rec or fully replaces the record stored under its key.
// Merging partial updates is the caller's job; see UpdateItem.
func PutItem[T Record](ctx context.Context, s Scope, c Collection[T], rec T) (string, error) {
	key := rec.PrimaryKey()
	cl := call{op: "put", collection: c.Name(), key: key, kind: ErrWrite, write: true}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		body, err := encodeRecord(ctx, s, rec)
		if err != nil {
			return err
		}
		return upsert(ctx, q, c.Name(), key, body)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// UpdateItem reads the record under key, applies fn and writes the result
// back in one transaction. It returns nil, nil when there is no such record.
// fn must not change the key.
func UpdateItem[T Record](ctx context.Context, s Scope, c Collection[T], key string, fn func(*T) error) (*T, error) {
	var out *T
	cl := call{op: "update", collection: c.Name(), key: key, kind: ErrWrite, write: true}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		rec, err := selectByKey[T](ctx, q, c.Name(), key)
		if err != nil {
			return err
		}
		if rec == nil {
			return errUnchanged
		}
		if err := fn(rec); err != nil {
			return err
		}
		if (*rec).PrimaryKey() != key {
			return &kindError{kind: ErrValidation, err: fmt.Errorf("key changed from %q to %q", key, (*rec).PrimaryKey())}
		}
		body, err := encodeRecord(ctx, s, *rec)
		if err != nil {
			return err
		}
		if err := upsert(ctx, q, c.Name(), key, body); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteItem removes the record under key. Deleting a missing key is a no-op
// and is not journaled.
func DeleteItem[T Record](ctx context.Context, s Scope, c Collection[T], key string) error {
	cl := call{op: "delete", collection: c.Name(), key: key, kind: ErrWrite, write: true}
	return s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", tableName(c.Name())), key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errUnchanged
		}
		return nil
	})
}

// ClearStore removes every record in c. Other collections are untouched.
func ClearStore[T Record](ctx context.Context, s Scope, c Collection[T]) error {
	cl := call{op: "clear", collection: c.Name(), kind: ErrWrite, write: true}
	return s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		_, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", tableName(c.Name())))
		return err
	})
}

// CountItems returns the number of records in c.
func CountItems[T Record](ctx context.Context, s Scope, c Collection[T]) (int, error) {
	var n int
	cl := call{op: "count", collection: c.Name(), kind: ErrRead}
	err := s.exec(ctx, cl, func(ctx context.Context, q execer) error {
		return q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName(c.Name()))).Scan(&n)
	})
	return n, err
}

func upsert(ctx context.Context, q execer, collection, key, body string) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`, tableName(collection)), key, body)
	return err
}

// encodeRecord renders rec as JSON text. It must stay TEXT: SQLite treats a
// BLOB argument to json_extract as binary JSONB.
func encodeRecord[T Record](ctx context.Context, s Scope, rec T) (string, error) {
	if rec.PrimaryKey() == "" {
		return "", &kindError{kind: ErrValidation, err: errors.New("record key is empty")}
	}
	if v := validatorFor(s); v != nil {
		if err := v.StructCtx(ctx, rec); err != nil {
			return "", &kindError{kind: ErrValidation, err: err}
		}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record %q: %w", rec.PrimaryKey(), err)
	}
	return string(body), nil
}

func selectByKey[T Record](ctx context.Context, q execer, collection, key string) (*T, error) {
	var body []byte
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT body FROM %s WHERE id = ?", tableName(collection)), key,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec T
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return &rec, nil
}

func selectRecords[T Record](ctx context.Context, q execer, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func validatorFor(s Scope) *validator.Validate {
	switch v := s.(type) {
	case *Database:
		return v.validate
	case *Tx:
		return v.db.validate
	}
	return nil
}
