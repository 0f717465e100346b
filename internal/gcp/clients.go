// Package gcp creates Google Cloud clients and holds the storage helpers
// shared by the template source and the upload store.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
)

// Clients lazily creates and caches the clients a process needs, so a
// deployment that never touches Firestore never dials it.
type Clients struct {
	projectID string

	mu         sync.Mutex
	storage    *storage.Client
	firestore  *firestore.Client
	executions *executions.Client
}

func NewClients(projectID string) *Clients {
	return &Clients{projectID: projectID}
}

func (c *Clients) Storage(ctx context.Context) (*storage.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storage == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		c.storage = client
	}
	return c.storage, nil
}

func (c *Clients) Firestore(ctx context.Context) (*firestore.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore == nil {
		if c.projectID == "" {
			return nil, fmt.Errorf("projectID must be provided to create a firestore client")
		}
		client, err := firestore.NewClient(ctx, c.projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		c.firestore = client
	}
	return c.firestore, nil
}

func (c *Clients) Executions(ctx context.Context) (*executions.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executions == nil {
		client, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		c.executions = client
	}
	return c.executions, nil
}

// Close closes every client that was created.
func (c *Clients) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.storage != nil {
		errs = append(errs, c.storage.Close())
	}
	if c.firestore != nil {
		errs = append(errs, c.firestore.Close())
	}
	if c.executions != nil {
		errs = append(errs, c.executions.Close())
	}
	return errors.Join(errs...)
}
