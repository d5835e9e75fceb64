package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Record is any value stored in a collection. The primary key is immutable
// once the record has been written.
type Record interface {
	PrimaryKey() string
}

// IndexSpec describes a secondary index over one or more JSON key paths.
type IndexSpec struct {
	Name  string
	Paths []string
	Since int
}

// CollectionSpec describes a collection and its secondary indexes.
type CollectionSpec struct {
	Name    string
	Since   int
	Indexes []*IndexSpec
}

// Schema is the ordered set of collections a database holds. Collections and
// indexes are only ever added; each carries the version that introduced it.
type Schema struct {
	collections []*CollectionSpec
	byName      map[string]*CollectionSpec
}

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
var indexPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func NewSchema() *Schema {
	return &Schema{byName: make(map[string]*CollectionSpec)}
}

// Collections returns the collection specs in declaration order.
func (s *Schema) Collections() []*CollectionSpec {
	return s.collections
}

// Collection returns the spec registered under name.
func (s *Schema) Collection(name string) (*CollectionSpec, bool) {
	spec, ok := s.byName[name]
	return spec, ok
}

// LatestVersion is the highest version any collection or index was declared in.
func (s *Schema) LatestVersion() int {
	latest := 0
	for _, c := range s.collections {
		if c.Since > latest {
			latest = c.Since
		}
		for _, idx := range c.Indexes {
			if idx.Since > latest {
				latest = idx.Since
			}
		}
	}
	return latest
}

func (s *Schema) add(spec *CollectionSpec) {
	if !identPattern.MatchString(spec.Name) {
		panic(fmt.Sprintf("engine: invalid collection name %q", spec.Name))
	}
	if spec.Since < 1 {
		panic(fmt.Sprintf("engine: collection %s needs a version >= 1", spec.Name))
	}
	if _, exists := s.byName[spec.Name]; exists {
		panic(fmt.Sprintf("engine: collection %s declared twice", spec.Name))
	}
	s.collections = append(s.collections, spec)
	s.byName[spec.Name] = spec
}

// Collection binds a collection name to the record type it stores.
type Collection[T Record] struct {
	spec *CollectionSpec
}

// DefineCollection registers a collection introduced in version since.
func DefineCollection[T Record](s *Schema, name string, since int) Collection[T] {
	spec := &CollectionSpec{Name: name, Since: since}
	s.add(spec)
	return Collection[T]{spec: spec}
}

func (c Collection[T]) Name() string { return c.spec.Name }

// Index binds a secondary index to its collection's record type and to the
// Go type of its key. K is a single value for one key path, or a struct for
// compound indexes whose encode func flattens it in key path order.
type Index[T Record, K any] struct {
	coll   Collection[T]
	spec   *IndexSpec
	encode func(K) []any
}

// DefineIndex registers an index introduced in version since. The number of
// values produced by encode must equal the number of paths.
func DefineIndex[T Record, K any](c Collection[T], name string, since int, encode func(K) []any, paths ...string) Index[T, K] {
	if !indexPattern.MatchString(name) {
		panic(fmt.Sprintf("engine: invalid index name %q", name))
	}
	if len(paths) == 0 {
		panic(fmt.Sprintf("engine: index %s on %s has no key paths", name, c.spec.Name))
	}
	for _, p := range paths {
		if !identPattern.MatchString(p) {
			panic(fmt.Sprintf("engine: invalid key path %q on index %s", p, name))
		}
	}
	for _, existing := range c.spec.Indexes {
		if existing.Name == name {
			panic(fmt.Sprintf("engine: index %s on %s declared twice", name, c.spec.Name))
		}
	}
	if since < c.spec.Since {
		since = c.spec.Since
	}
	spec := &IndexSpec{Name: name, Paths: paths, Since: since}
	c.spec.Indexes = append(c.spec.Indexes, spec)
	return Index[T, K]{coll: c, spec: spec, encode: encode}
}

// DefineFieldIndex registers a single string-valued key path index.
func DefineFieldIndex[T Record](c Collection[T], name string, since int, path string) Index[T, string] {
	return DefineIndex(c, name, since, func(k string) []any { return []any{k} }, path)
}

func (i Index[T, K]) Name() string { return i.spec.Name }

func (i Index[T, K]) Collection() Collection[T] { return i.coll }

func tableName(collection string) string {
	return `"` + collection + `"`
}

func indexName(collection string, idx *IndexSpec) string {
	return "idx_" + collection + "_" + strings.ReplaceAll(idx.Name, "-", "_")
}

func pathExpr(path string) string {
	return "json_extract(body, '$." + path + "')"
}

func (idx *IndexSpec) exprs() []string {
	out := make([]string, len(idx.Paths))
	for i, p := range idx.Paths {
		out[i] = pathExpr(p)
	}
	return out
}
