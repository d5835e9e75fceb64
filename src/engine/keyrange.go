package engine

import (
	"fmt"
	"strings"
)

// KeyRange selects index entries. The zero value matches every entry that
// has a value for the indexed key path.
type KeyRange[K any] struct {
	lower, upper         *K
	lowerOpen, upperOpen bool
	only                 bool
}

// Only matches entries whose key equals k.
func Only[K any](k K) KeyRange[K] {
	return KeyRange[K]{lower: &k, upper: &k, only: true}
}

// Bound matches entries between lower and upper. An open bound excludes the
// bound value itself.
func Bound[K any](lower, upper K, lowerOpen, upperOpen bool) KeyRange[K] {
	return KeyRange[K]{lower: &lower, upper: &upper, lowerOpen: lowerOpen, upperOpen: upperOpen}
}

// LowerBound matches entries greater than (or equal to, when closed) lower.
func LowerBound[K any](lower K, open bool) KeyRange[K] {
	return KeyRange[K]{lower: &lower, lowerOpen: open}
}

// UpperBound matches entries less than (or equal to, when closed) upper.
func UpperBound[K any](upper K, open bool) KeyRange[K] {
	return KeyRange[K]{upper: &upper, upperOpen: open}
}

// whereClause renders the range against idx. Compound indexes compare row
// values, so [caseId, parentId] must match on both parts in order.
func whereClause[K any](idx *IndexSpec, encode func(K) []any, r KeyRange[K]) (string, []any, error) {
	exprs := idx.exprs()
	lhs := exprs[0]
	placeholder := "?"
	if len(exprs) > 1 {
		lhs = "(" + strings.Join(exprs, ", ") + ")"
		placeholder = "(" + strings.TrimSuffix(strings.Repeat("?, ", len(exprs)), ", ") + ")"
	}

	values := func(k *K) ([]any, error) {
		v := encode(*k)
		if len(v) != len(exprs) {
			return nil, fmt.Errorf("index %s expects %d key parts, got %d", idx.Name, len(exprs), len(v))
		}
		return v, nil
	}

	var conds []string
	var args []any
	if r.only {
		v, err := values(r.lower)
		if err != nil {
			return "", nil, err
		}
		return lhs + " = " + placeholder, v, nil
	}
	if r.lower != nil {
		v, err := values(r.lower)
		if err != nil {
			return "", nil, err
		}
		op := " >= "
		if r.lowerOpen {
			op = " > "
		}
		conds = append(conds, lhs+op+placeholder)
		args = append(args, v...)
	}
	if r.upper != nil {
		v, err := values(r.upper)
		if err != nil {
			return "", nil, err
		}
		op := " <= "
		if r.upperOpen {
			op = " < "
		}
		conds = append(conds, lhs+op+placeholder)
		args = append(args, v...)
	}
	if len(conds) == 0 {
		notNull := make([]string, len(exprs))
		for i, e := range exprs {
			notNull[i] = e + " IS NOT NULL"
		}
		return strings.Join(notNull, " AND "), nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}
