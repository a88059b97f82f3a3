package storage

import "context"

// StorageInterface defines the contract for persisting export artifacts
type StorageInterface interface {
	// Store writes data under name and returns where it ended up
	Store(ctx context.Context, name string, data []byte) (string, error)
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
