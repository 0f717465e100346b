package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/casedocflow/internal/models"
	"github.com/Lllllllleong/casedocflow/internal/schema"
	"google.golang.org/api/iterator"
)

// FirestoreLoader reads mapping configurations stored one document per
// document type, keyed by document type.
type FirestoreLoader struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreLoader(client *firestore.Client, collection string) *FirestoreLoader {
	return &FirestoreLoader{client: client, collection: collection}
}

// Load reads the whole collection and builds a registry. The registry
// version is the newest updatedAt among the documents.
func (l *FirestoreLoader) Load(ctx context.Context) (*Registry, error) {
	logCtx := slog.With("collection", l.collection)
	logCtx.Info("Loading field mappings from Firestore.")

	iter := l.client.Collection(l.collection).Documents(ctx)
	defer iter.Stop()

	docs := make(map[string]models.DocumentMapping)
	var version string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate mapping collection %s: %w", l.collection, err)
		}
		var doc models.DocumentMapping
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode mapping document %s: %w", snap.Ref.ID, err)
		}
		doc.DocumentType = snap.Ref.ID
		docs[snap.Ref.ID] = doc
		if v := doc.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"); !doc.UpdatedAt.IsZero() && v > version {
			version = v
		}
	}
	if version == "" {
		version = "firestore"
	}

	if err := schema.ValidateValue(schema.Mapping, models.MappingFile{Version: version, Documents: docs}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	reg, err := NewRegistry(version, docs)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Field mapping configuration loaded.", "version", version, "documentTypes", len(docs))
	return reg, nil
}
