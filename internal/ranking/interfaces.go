package ranking

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSourceNotFound is returned when a source code is not registered.
	ErrSourceNotFound = errors.New("source not found")
	// ErrSourceBusy is returned when another run holds the source lock.
	ErrSourceBusy = errors.New("source is being fetched by another run")
)

// Store persists sources, institutions, entries and cache state.
type Store interface {
	// EnsureSource creates the source when missing and reports whether it did.
	EnsureSource(ctx context.Context, src Source) (Source, bool, error)
	GetSource(ctx context.Context, code string) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)

	// GetOrCreateInstitution looks up by name; the other fields are defaults
	// applied only on creation.
	GetOrCreateInstitution(ctx context.Context, inst Institution) (Institution, bool, error)
	// UpsertEntry writes by natural key and reports whether a row was created.
	UpsertEntry(ctx context.Context, in EntryUpsert) (Entry, bool, error)

	GetOrCreateCacheState(ctx context.Context, code string) (CacheState, error)
	GetCacheState(ctx context.Context, code string) (CacheState, error)
	SaveCacheState(ctx context.Context, state CacheState) error
}

// Locker serializes runs of the same source across processes.
type Locker interface {
	// AcquireSourceLock returns ErrSourceBusy when the lock is held elsewhere.
	AcquireSourceLock(ctx context.Context, code string) (release func(), err error)
}

// Reader is the read side used by aggregation and reporting.
type Reader interface {
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	GetInstitution(ctx context.Context, id int64) (Institution, error)
	FindInstitution(ctx context.Context, name string) (Institution, error)
	ListInstitutions(ctx context.Context) ([]Institution, error)
}

// Repository is everything a storage backend provides.
type Repository interface {
	Store
	Locker
	Reader
	Ping(ctx context.Context) error
	Close()
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
