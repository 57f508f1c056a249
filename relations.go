package strata

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/strata/schema/rel"
)

// validatePath walks a dotted relationship path against the registry and
// fails fast on the first undeclared segment.
func validatePath(reg *Registry, desc *EntityDescriptor, path string) error {
	cur := desc
	for _, seg := range strings.Split(path, ".") {
		rd, ok := cur.Relation(seg)
		if !ok {
			return NewConfigError("entity %s has no relationship %q (path %q)", cur.Name, seg, path)
		}
		next, err := reg.Lookup(rd.Target)
		if err != nil {
			return NewConfigError("relationship %q targets unknown entity %q", seg, rd.Target)
		}
		cur = next
	}
	return nil
}

// branch is one resolved relationship level: the fetched child set plus the
// deferred per-record assignment. Assignment is deferred so sibling
// branches can fetch concurrently without racing on record state.
type branch struct {
	rest     []string
	target   *EntityDescriptor
	children []*Record
	assign   func()
}

// loadPaths resolves the given relationship paths for the record set. Each
// distinct relationship in the path tree is fetched with exactly one
// statement, keyed by the collected parent keys; sibling relationships
// fetch concurrently.
func loadPaths(ctx context.Context, c *Client, desc *EntityDescriptor, recs []*Record, paths []string) error {
	if len(recs) == 0 || len(paths) == 0 {
		return nil
	}
	// Group nested paths under their first segment so "posts" and
	// "posts.comments" share the posts fetch.
	byHead := make(map[string][]string)
	for _, path := range paths {
		head, rest, _ := strings.Cut(path, ".")
		if rest != "" {
			byHead[head] = append(byHead[head], rest)
		} else if _, ok := byHead[head]; !ok {
			byHead[head] = nil
		}
	}
	heads := make([]string, 0, len(byHead))
	for head := range byHead {
		heads = append(heads, head)
	}
	sort.Strings(heads)

	branches := make([]*branch, len(heads))
	g, gctx := errgroup.WithContext(ctx)
	for i, head := range heads {
		g.Go(func() error {
			b, err := fetchRelation(gctx, c, desc, recs, head)
			if err != nil {
				return err
			}
			b.rest = byHead[head]
			branches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, b := range branches {
		b.assign()
		if len(b.rest) > 0 {
			if err := loadPaths(ctx, c, b.target, b.children, b.rest); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchRelation issues the single batched statement for one relationship
// over the whole record set and prepares the per-record assignment.
func fetchRelation(ctx context.Context, c *Client, desc *EntityDescriptor, recs []*Record, name string) (*branch, error) {
	rd, ok := desc.Relation(name)
	if !ok {
		return nil, NewConfigError("entity %s has no relationship %q", desc.Name, name)
	}
	target, err := c.registry.Lookup(rd.Target)
	if err != nil {
		return nil, err
	}
	switch rd.Kind {
	case rel.BelongsToKind:
		return fetchBelongsTo(ctx, c, recs, name, rd, target)
	case rel.HasManyKind:
		return fetchHasMany(ctx, c, desc, recs, name, rd, target)
	default:
		return nil, NewConfigError("relationship %q has invalid kind", name)
	}
}

// fetchBelongsTo loads the owners of the record set: collect the distinct
// foreign keys, select the owners with one IN query, then hand each record
// its owner by key. Records with a NULL foreign key resolve to nil.
func fetchBelongsTo(ctx context.Context, c *Client, recs []*Record, name string, rd *rel.Descriptor, target *EntityDescriptor) (*branch, error) {
	ownerKey := rd.OwnerKey
	if ownerKey == "" {
		ownerKey = target.PrimaryKey
	}
	keys := collectKeys(recs, rd.ForeignKey)
	var owners []*Record
	if len(keys) > 0 {
		var err error
		owners, err = c.Entity(target.Name).WhereIn(ownerKey, keys...).All(ctx)
		if err != nil {
			return nil, err
		}
	}
	byKey := make(map[any]*Record, len(owners))
	for _, o := range owners {
		byKey[keyOf(o.Get(ownerKey))] = o
	}
	return &branch{
		target:   target,
		children: owners,
		assign: func() {
			for _, r := range recs {
				var owner *Record
				if fk := r.Get(rd.ForeignKey); fk != nil {
					owner = byKey[keyOf(fk)]
				}
				if owner != nil {
					r.setRelated(name, owner)
				} else {
					r.setRelated(name, nil)
				}
			}
		},
	}, nil
}

// fetchHasMany loads the dependents of the record set with one IN query
// over the foreign key, then partitions them back to their owners. Owners
// with no dependents get an empty, non-nil slice: loaded-and-empty is
// distinguishable from not-loaded.
func fetchHasMany(ctx context.Context, c *Client, desc *EntityDescriptor, recs []*Record, name string, rd *rel.Descriptor, target *EntityDescriptor) (*branch, error) {
	ownerKey := rd.OwnerKey
	if ownerKey == "" {
		ownerKey = desc.PrimaryKey
	}
	keys := collectKeys(recs, ownerKey)
	var children []*Record
	if len(keys) > 0 {
		var err error
		children, err = c.Entity(target.Name).WhereIn(rd.ForeignKey, keys...).All(ctx)
		if err != nil {
			return nil, err
		}
	}
	byKey := make(map[any][]*Record, len(recs))
	for _, ch := range children {
		k := keyOf(ch.Get(rd.ForeignKey))
		byKey[k] = append(byKey[k], ch)
	}
	return &branch{
		target:   target,
		children: children,
		assign: func() {
			for _, r := range recs {
				group := byKey[keyOf(r.Get(ownerKey))]
				if group == nil {
					group = []*Record{}
				}
				r.setRelated(name, group)
			}
		},
	}, nil
}

// Load resolves relationship paths on records that are already in memory,
// with the same batching guarantees as Query.With.
func (c *Client) Load(ctx context.Context, recs []*Record, paths ...string) error {
	if len(recs) == 0 || len(paths) == 0 {
		return nil
	}
	desc := recs[0].desc
	for _, r := range recs[1:] {
		if r.desc != desc {
			return NewConfigError("cannot load relationships across mixed entity types")
		}
	}
	for _, path := range paths {
		if err := validatePath(c.registry, desc, path); err != nil {
			return err
		}
	}
	return loadPaths(ctx, c, desc, recs, paths)
}

// Resolve loads relationship paths on a single record.
func (c *Client) Resolve(ctx context.Context, rec *Record, paths ...string) error {
	return c.Load(ctx, []*Record{rec}, paths...)
}

// collectKeys returns the distinct non-nil values of the column across the
// record set, in first-seen order.
func collectKeys(recs []*Record, column string) []any {
	seen := make(map[any]bool)
	var keys []any
	for _, r := range recs {
		v := r.Get(column)
		if v == nil {
			continue
		}
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}

// keyOf normalizes a value for use as a partition map key, so an int and
// an int64 carrying the same id land in the same bucket.
func keyOf(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case []byte:
		return string(n)
	default:
		return v
	}
}
