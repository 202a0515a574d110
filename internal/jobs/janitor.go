package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// namespacePrefix marks collections owned by this service. Collections
// without the prefix are never touched.
const namespacePrefix = "persona_"

// CollectionIndex defines the vector index operations the janitor needs
type CollectionIndex interface {
	ListCollections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, namespace string) error
}

// NamespaceSource lists the namespaces of all live personas
type NamespaceSource interface {
	ListNamespaces(ctx context.Context) ([]string, error)
}

// NamespaceJanitor reaps vector collections whose persona no longer
// exists. Persona deletion only removes its collection best-effort, so
// the janitor reconciles any leftovers in the background.
type NamespaceJanitor struct {
	index    CollectionIndex
	personas NamespaceSource
}

// NewNamespaceJanitor creates a new NamespaceJanitor instance
func NewNamespaceJanitor(index CollectionIndex, personas NamespaceSource) *NamespaceJanitor {
	return &NamespaceJanitor{
		index:    index,
		personas: personas,
	}
}

// Reconcile implements the Reconciler interface
func (j *NamespaceJanitor) Reconcile(ctx context.Context) error {
	collections, err := j.index.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	namespaces, err := j.personas.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persona namespaces: %w", err)
	}

	live := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		live[ns] = struct{}{}
	}

	for _, name := range collections {
		if !strings.HasPrefix(name, namespacePrefix) {
			continue
		}
		if _, ok := live[name]; ok {
			continue
		}

		log.Printf("janitor: deleting orphaned collection %q", name)
		if err := j.index.DeleteCollection(ctx, name); err != nil {
			log.Printf("janitor: failed to delete %q: %v", name, err)
		}
	}

	return nil
}
