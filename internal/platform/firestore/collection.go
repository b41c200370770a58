package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Collection is a typed view over one Firestore collection. Reads and writes join the
// transaction carried on the context when there is one.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: name}
}

// Name returns the collection path.
func (c *Collection[T]) Name() string { return c.name }

// Ref returns the document reference for id.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if id == "" {
		return nil, fmt.Errorf("firestore: %s: document id is required", c.name)
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

// Get decodes one document. The bool is false when the document does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return zero, false, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		if IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, WrapError(c.op("get"), err)
	}
	return c.decode(snap)
}

// GetAll decodes the documents for ids in the order given, skipping missing ones. Inside a
// transaction every returned document stays locked until commit.
func (c *Collection[T]) GetAll(ctx context.Context, ids []string) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := c.Ref(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	var (
		snaps []*firestore.DocumentSnapshot
		err   error
	)
	if tx, ok := TxFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		client, cerr := c.provider.Client(ctx)
		if cerr != nil {
			return nil, cerr
		}
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, WrapError(c.op("getAll"), err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		value, _, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		out[snap.Ref.ID] = value
	}
	return out, nil
}

// Set overwrites the document.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(c.op("set"), tx.Set(ref, value))
	}
	_, err = ref.Set(ctx, value)
	return WrapError(c.op("set"), err)
}

// Create writes the document and fails with a conflict when it already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		return WrapError(c.op("create"), tx.Create(ref, value))
	}
	_, err = ref.Create(ctx, value)
	return WrapError(c.op("create"), err)
}

// Document pairs a decoded value with its document id.
type Document[T any] struct {
	ID   string
	Data T
}

// Query runs build against the collection outside any transaction and decodes every result in
// query order.
func (c *Collection[T]) Query(ctx context.Context, build func(firestore.Query) firestore.Query) ([]Document[T], error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(c.name).Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		value, _, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, Document[T]{ID: snap.Ref.ID, Data: value})
	}
}

func (c *Collection[T]) decode(snap *firestore.DocumentSnapshot) (T, bool, error) {
	var value T
	if err := snap.DataTo(&value); err != nil {
		return value, false, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return value, true, nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}
