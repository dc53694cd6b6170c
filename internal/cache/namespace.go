package cache

import (
	"context"
	"strings"
)

// nsSeparator joins a namespace and a key. Report keys use ":" internally,
// so the namespace boundary uses a character that never appears in them.
const nsSeparator = "|"

// Namespaced scopes a Store to one kind of payload (stats, fraud, events),
// so their keys never collide and each kind can be cleared on its own.
type Namespaced struct {
	inner Store
	ns    string
}

// WithNamespace wraps inner.
func WithNamespace(inner Store, ns string) *Namespaced {
	return &Namespaced{inner: inner, ns: ns + nsSeparator}
}

func (n *Namespaced) Get(ctx context.Context, key string) (*Entry, error) {
	e, err := n.inner.Get(ctx, n.ns+key)
	if e != nil {
		e.Key = strings.TrimPrefix(e.Key, n.ns)
	}
	return e, err
}

func (n *Namespaced) Put(ctx context.Context, key string, payload []byte) error {
	return n.inner.Put(ctx, n.ns+key, payload)
}

func (n *Namespaced) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	return n.inner.DeleteByPrefix(ctx, n.ns+prefix)
}

func (n *Namespaced) Latest(ctx context.Context, prefix string) (*Entry, error) {
	e, err := n.inner.Latest(ctx, n.ns+prefix)
	if e != nil {
		e.Key = strings.TrimPrefix(e.Key, n.ns)
	}
	return e, err
}
