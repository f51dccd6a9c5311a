package docstore

import (
	"context"
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig selects the Firebase project and credentials.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreStore adapts a Cloud Firestore database. Collection paths such as
// "users/{vetID}/schedules" map directly onto Firestore subcollections.
type FirestoreStore struct {
	client *firestore.Client
	logger *zerolog.Logger
}

// NewFirestoreStore initializes the Firebase app and its Firestore client.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig, logger *zerolog.Logger) (*FirestoreStore, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: error initializing app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: error getting Firestore client: %w", err)
	}

	logger.Info().Str("project", cfg.ProjectID).Msg("Firestore document store initialized")
	return &FirestoreStore{client: client, logger: logger}, nil
}

func (f *FirestoreStore) doc(collection, key string) (*firestore.DocumentRef, error) {
	if err := validPath(collection, key); err != nil {
		return nil, err
	}
	col := f.client.Collection(collection)
	if col == nil {
		return nil, ErrInvalidPath
	}
	ref := col.Doc(key)
	if ref == nil {
		return nil, ErrInvalidPath
	}
	return ref, nil
}

func (f *FirestoreStore) Get(ctx context.Context, collection, key string) (Document, error) {
	ref, err := f.doc(collection, key)
	if err != nil {
		return Document{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document{}, mapFirestoreErr(err)
	}
	return Document{Key: key, Data: snap.Data()}, nil
}

func (f *FirestoreStore) Set(ctx context.Context, collection, key string, data Data) error {
	ref, err := f.doc(collection, key)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, toFirestore(data)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, mapFirestoreErr(err))
	}
	return nil
}

func (f *FirestoreStore) UpdateFields(ctx context.Context, collection, key string, fields Data) error {
	ref, err := f.doc(collection, key)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, toFirestore(fields), firestore.MergeAll); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, key, mapFirestoreErr(err))
	}
	return nil
}

func (f *FirestoreStore) Delete(ctx context.Context, collection, key string) error {
	ref, err := f.doc(collection, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, mapFirestoreErr(err))
	}
	return nil
}

func (f *FirestoreStore) List(ctx context.Context, collection string) ([]Document, error) {
	col := f.client.Collection(collection)
	if col == nil {
		return nil, ErrInvalidPath
	}
	snaps, err := col.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, mapFirestoreErr(err))
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{Key: snap.Ref.ID, Data: snap.Data()})
	}
	sortDocuments(docs)
	return docs, nil
}

func (f *FirestoreStore) Add(ctx context.Context, collection string, data Data) (string, error) {
	col := f.client.Collection(collection)
	if col == nil {
		return "", ErrInvalidPath
	}
	ref, _, err := col.Add(ctx, toFirestore(data))
	if err != nil {
		return "", fmt.Errorf("add %s: %w", collection, mapFirestoreErr(err))
	}
	return ref.ID, nil
}

func (f *FirestoreStore) Mutate(ctx context.Context, collection, key string, fn MutateFunc) error {
	ref, err := f.doc(collection, key)
	if err != nil {
		return err
	}
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current Data
		exists := true
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			exists = false
		case err != nil:
			return err
		default:
			current = snap.Data()
		}

		next, remove, err := fn(current, exists)
		if err != nil {
			return err
		}
		if remove {
			if !exists {
				return nil
			}
			return tx.Delete(ref)
		}
		if next == nil {
			return errNilMutateRes
		}
		return tx.Set(ref, toFirestore(next))
	})
	if err != nil {
		return mapFirestoreErr(err)
	}
	return nil
}

func (f *FirestoreStore) Subscribe(ctx context.Context, collection string, fn func(Change)) (func(), error) {
	col := f.client.Collection(collection)
	if col == nil {
		return nil, ErrInvalidPath
	}

	ctx, cancel := context.WithCancel(ctx)
	it := col.Snapshots(ctx)
	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if errors.Is(err, iterator.Done) || ctx.Err() != nil {
				return
			}
			if err != nil {
				f.logger.Error().Err(err).Str("collection", collection).Msg("Snapshot listener failed")
				return
			}
			for _, ch := range snap.Changes {
				fn(Change{Collection: collection, Kind: changeKind(ch.Kind), Doc: Document{Key: ch.Doc.Ref.ID, Data: ch.Doc.Data()}})
			}
		}
	}()
	return cancel, nil
}

func (f *FirestoreStore) Ping(ctx context.Context) error {
	_, err := f.client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}

func changeKind(k firestore.DocumentChangeKind) ChangeKind {
	switch k {
	case firestore.DocumentAdded:
		return ChangeAdded
	case firestore.DocumentRemoved:
		return ChangeRemoved
	default:
		return ChangeModified
	}
}

func mapFirestoreErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// toFirestore stores integral JSON numbers as integers so expiry instants
// and minute counts keep an integer type in the console and in queries.
func toFirestore(data Data) Data {
	out := make(Data, len(data))
	for k, v := range data {
		out[k] = firestoreValue(v)
	}
	return out
}

func firestoreValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case map[string]any:
		return toFirestore(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = firestoreValue(item)
		}
		return out
	default:
		return val
	}
}
