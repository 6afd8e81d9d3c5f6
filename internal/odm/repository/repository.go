// Package repository resolves collection repositories from the metadata
// registry and implements CRUD, batches and transactions on top of a
// store.Client.
package repository

import (
	"context"

	"firestore-odm/internal/odm/metadata"
	"firestore-odm/internal/odm/store"
	"firestore-odm/internal/shared/errors"
)

// Kind selects which repository a resolution returns
type Kind int

const (
	// KindDefault returns the custom repository when one is bound, else the base repository
	KindDefault Kind = iota
	// KindBase always returns the generic repository
	KindBase
	// KindCustom requires a bound custom repository
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindCustom:
		return "custom"
	default:
		return "default"
	}
}

// Repository is the document surface shared by collection and transaction
// repositories. Subcollection fields of entities should be declared with this
// type so both kinds can be assigned.
type Repository interface {
	metadata.Repository
	Create(ctx context.Context, entity metadata.Entity) (metadata.Entity, error)
	FindByID(ctx context.Context, id string) (metadata.Entity, error)
	Find(ctx context.Context, q store.Query) ([]metadata.Entity, error)
	FindOne(ctx context.Context, q store.Query) (metadata.Entity, error)
	Update(ctx context.Context, entity metadata.Entity) (metadata.Entity, error)
	Delete(ctx context.Context, id string) error
}

// baseProvider is the capability every custom repository must expose. It is
// satisfied by embedding *BaseRepository.
type baseProvider interface {
	Base() *BaseRepository
}

// NewFactory adapts a constructor taking the base repository to a
// metadata.RepositoryFactory
func NewFactory[R metadata.Repository](fn func(base *BaseRepository) R) metadata.RepositoryFactory {
	return metadata.RepositoryFactoryFunc(func(base metadata.Repository) metadata.Repository {
		b, ok := base.(*BaseRepository)
		if !ok {
			return nil
		}
		return fn(b)
	})
}

// As resolves a repository with KindDefault and asserts its concrete type
func As[R metadata.Repository](m *Manager, ref metadata.EntityOrPath, collectionName string) (R, error) {
	var zero R
	repo, err := m.GetRepository(ref, collectionName)
	if err != nil {
		return zero, err
	}
	typed, ok := repo.(R)
	if !ok {
		return zero, errors.NewInvalidInputError("repository has an unexpected type").
			WithDetail("ref", ref.String())
	}
	return typed, nil
}
