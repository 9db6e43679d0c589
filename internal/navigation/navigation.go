// Package navigation tracks where the user is in the folder hierarchy and
// keeps the visible file list consistent with it.
package navigation

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/events"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/models"
)

// DefaultPageSize is the number of records requested per listing.
const DefaultPageSize = 30

var (
	// ErrStale is returned when a listing resolved after a newer request
	// superseded it. Nothing was written.
	ErrStale = errors.New("listing superseded by a newer request")
	// ErrSuppressed is returned when an identical listing is already in flight.
	ErrSuppressed = errors.New("listing already in flight")
)

// Lister is the collaborator operation the navigator drives.
type Lister interface {
	ListFiles(ctx context.Context, cred *models.Credential, q models.ListQuery) (*models.Listing, error)
}

// Snapshot is a consistent copy of the navigation state.
type Snapshot struct {
	FolderID      string
	Path          []models.FolderRef
	Files         []models.File
	Sort          models.Sort
	NextPageToken string
	Loading       bool
	Err           error
	Generation    uint64
}

// Options tunes a State.
type Options struct {
	PageSize int
	Sort     models.Sort
	Events   events.Publisher
}

type fetchKey struct {
	folderID string
	sort     models.Sort
}

// State is the folder navigator. Every fetch is tagged with a generation and
// its result is only applied while that generation is still current.
type State struct {
	lister   Lister
	sessions models.SessionSource
	pageSize int
	events   events.Publisher
	logger   *zap.Logger

	mu            sync.Mutex
	folderID      string
	path          []models.FolderRef
	files         []models.File
	sort          models.Sort
	nextPageToken string
	loading       bool
	inflight      fetchKey
	err           error
	generation    uint64
}

// New creates a navigator positioned at the root folder.
func New(lister Lister, sessions models.SessionSource, opts Options) *State {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Sort.Field == "" {
		opts.Sort = models.DefaultSort
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	return &State{
		lister:   lister,
		sessions: sessions,
		pageSize: opts.PageSize,
		events:   opts.Events,
		logger:   logging.Named("navigation"),
		sort:     opts.Sort,
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		FolderID:      s.folderID,
		Path:          slices.Clone(s.path),
		Files:         slices.Clone(s.files),
		Sort:          s.sort,
		NextPageToken: s.nextPageToken,
		Loading:       s.loading,
		Err:           s.err,
		Generation:    s.generation,
	}
}

// Navigate moves to folderID and re-fetches. The empty ID is the root, and
// moving there clears the breadcrumb path.
func (s *State) Navigate(ctx context.Context, folderID string) error {
	return s.fetch(ctx, false, func() {
		s.folderID = folderID
		s.nextPageToken = ""
		if folderID == "" {
			s.path = nil
		}
	})
}

// Refresh re-fetches the current folder with the current sort.
func (s *State) Refresh(ctx context.Context) error {
	return s.fetch(ctx, false, nil)
}

// SetSort toggles the order when field is already active, otherwise sorts
// ascending by field, and re-fetches.
func (s *State) SetSort(ctx context.Context, field models.SortField) error {
	return s.fetch(ctx, false, func() {
		s.sort = s.sort.Next(field)
		s.nextPageToken = ""
	})
}

// LoadMore fetches the next page and appends it. It is a no-op when the
// last listing had no further pages.
func (s *State) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	more := s.nextPageToken != ""
	s.mu.Unlock()
	if !more {
		return nil
	}
	return s.fetch(ctx, true, nil)
}

// RemoveFile drops a record from the collection after a successful delete.
func (s *State) RemoveFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = slices.DeleteFunc(s.files, func(f models.File) bool { return f.ID == id })
}

// fetch applies mutate and claims a new generation in one step, then lists
// without holding the lock.
func (s *State) fetch(ctx context.Context, appendPage bool, mutate func()) error {
	s.mu.Lock()
	if mutate != nil {
		mutate()
	}
	key := fetchKey{folderID: s.folderID, sort: s.sort}
	if s.loading && s.inflight == key && mutate == nil {
		s.mu.Unlock()
		return ErrSuppressed
	}
	s.generation++
	gen := s.generation
	s.loading = true
	s.inflight = key
	q := models.ListQuery{FolderID: s.folderID, Sort: s.sort, PageSize: s.pageSize}
	if appendPage {
		q.PageToken = s.nextPageToken
	}
	s.mu.Unlock()

	listing, err := s.list(ctx, q)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale listing", zap.String("folder", q.FolderID), zap.Uint64("generation", gen))
		return ErrStale
	}
	s.loading = false
	if err != nil {
		s.files = nil
		s.nextPageToken = ""
		s.err = err
		s.mu.Unlock()
		s.events.Publish(events.Event{Type: events.EventListingFailed, FolderID: q.FolderID, Error: err.Error()})
		return err
	}

	s.err = nil
	if appendPage {
		s.files = append(s.files, listing.Files...)
	} else {
		s.files = slices.Clone(listing.Files)
	}
	s.nextPageToken = listing.NextPageToken
	if q.FolderID != "" && listing.Folder != nil {
		s.extendPath(models.FolderRef{ID: q.FolderID, Name: listing.Folder.Name})
	}
	s.mu.Unlock()

	s.events.Publish(events.Event{Type: events.EventListingLoaded, FolderID: q.FolderID})
	return nil
}

func (s *State) list(ctx context.Context, q models.ListQuery) (*models.Listing, error) {
	cred, err := models.RequireSession(ctx, s.sessions)
	if err != nil {
		return nil, err
	}
	return s.lister.ListFiles(ctx, cred, q)
}

// extendPath appends ref, or truncates back to it when it is already on the
// path. Requires s.mu.
func (s *State) extendPath(ref models.FolderRef) {
	if i := slices.IndexFunc(s.path, func(p models.FolderRef) bool { return p.ID == ref.ID }); i >= 0 {
		s.path = s.path[:i+1]
		return
	}
	s.path = append(s.path, ref)
}
