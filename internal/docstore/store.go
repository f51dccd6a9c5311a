// Package docstore is the document-store boundary of the scheduling core:
// durable per-key JSON-like documents grouped in slash-separated
// collections, atomic single-document read-modify-write and change
// notifications per collection.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound     = errors.New("docstore: document not found")
	ErrInvalidPath  = errors.New("docstore: invalid collection path or key")
	ErrStoreClosed  = errors.New("docstore: store closed")
	errNilMutateRes = errors.New("docstore: mutate returned nil data without delete")
)

// Data is the body of a document.
type Data = map[string]any

// Document is a stored document together with its key.
type Document struct {
	Key  string
	Data Data
}

// ChangeKind describes what happened to a document.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is delivered to collection subscribers.
type Change struct {
	Collection string
	Kind       ChangeKind
	Doc        Document
}

// MutateFunc receives the current document body (nil when absent) and
// returns the body to store. Returning delete=true removes the document.
type MutateFunc func(current Data, exists bool) (next Data, delete bool, err error)

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set overwrites the whole document.
	Set(ctx context.Context, collection, key string, data Data) error
	// UpdateFields merges top-level fields, creating the document if needed.
	UpdateFields(ctx context.Context, collection, key string, fields Data) error
	Delete(ctx context.Context, collection, key string) error
	// List returns all documents of a collection ordered by key.
	List(ctx context.Context, collection string) ([]Document, error)
	// Add stores data under a generated key and returns the key.
	Add(ctx context.Context, collection string, data Data) (string, error)
	// Mutate runs fn as an atomic read-modify-write of one document.
	Mutate(ctx context.Context, collection, key string, fn MutateFunc) error
	// Subscribe calls fn for each change in collection until the returned
	// cancel function is called or ctx ends.
	Subscribe(ctx context.Context, collection string, fn func(Change)) (func(), error)
	Ping(ctx context.Context) error
	Close() error
}

// Encode converts a typed value into a document body through its JSON form.
func Encode(v any) (Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out Data
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// Decode fills out from a document body.
func Decode(data Data, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func validPath(collection, key string) error {
	if collection == "" || key == "" {
		return ErrInvalidPath
	}
	return nil
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
}

// clone deep-copies maps and slices so stored bodies never alias caller data.
func clone(data Data) Data {
	if data == nil {
		return nil
	}
	out := make(Data, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return clone(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

func merge(current, fields Data) Data {
	out := clone(current)
	if out == nil {
		out = make(Data, len(fields))
	}
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}
