package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepane/drivepane/internal/events"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/models"
)

func init() {
	logging.InitNop()
}

// fakeDrive serves a fixed folder tree. Calls for folders listed in hold
// block until the matching channel is closed.
type fakeDrive struct {
	mu      sync.Mutex
	folders map[string][]models.File
	names   map[string]string
	hold    map[string]chan struct{}
	fail    map[string]error
	queries []models.ListQuery
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		folders: map[string][]models.File{
			"":   {folder("f1", "Projects"), file("r1", "readme.txt")},
			"f1": {folder("f2", "Drafts"), file("p1", "plan.txt")},
			"f2": {file("d1", "draft.txt")},
		},
		names: map[string]string{"f1": "Projects", "f2": "Drafts"},
		hold:  map[string]chan struct{}{},
		fail:  map[string]error{},
	}
}

func folder(id, name string) models.File {
	return models.File{ID: id, Name: name, MimeType: models.FolderMimeType}
}

func file(id, name string) models.File {
	return models.File{ID: id, Name: name, MimeType: "text/plain", Size: models.Int64(1)}
}

func (d *fakeDrive) ListFiles(ctx context.Context, cred *models.Credential, q models.ListQuery) (*models.Listing, error) {
	d.mu.Lock()
	d.queries = append(d.queries, q)
	hold := d.hold[q.FolderID]
	err := d.fail[q.FolderID]
	files := d.folders[q.FolderID]
	name, ok := d.names[q.FolderID]
	d.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	listing := &models.Listing{Files: files}
	if ok {
		listing.Folder = &models.FolderRef{ID: q.FolderID, Name: name}
	}
	return listing, nil
}

func (d *fakeDrive) holdFolder(id string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.hold[id] = ch
	return ch
}

func (d *fakeDrive) queryCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queries)
}

var session = models.StaticSession(&models.Credential{AccessToken: "tok"})

func pathIDs(s Snapshot) []string {
	ids := []string{}
	for _, p := range s.Path {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestNavigateBuildsPath(t *testing.T) {
	ctx := context.Background()
	nav := New(newFakeDrive(), session, Options{})

	require.NoError(t, nav.Refresh(ctx))
	assert.Empty(t, nav.Snapshot().Path)
	assert.Len(t, nav.Snapshot().Files, 2)

	require.NoError(t, nav.Navigate(ctx, "f1"))
	require.NoError(t, nav.Navigate(ctx, "f2"))
	snap := nav.Snapshot()
	assert.Equal(t, []string{"f1", "f2"}, pathIDs(snap))
	assert.Equal(t, "Drafts", snap.Path[1].Name)
	assert.Equal(t, "draft.txt", snap.Files[0].Name)
}

func TestRepeatedRefreshNeverAppends(t *testing.T) {
	ctx := context.Background()
	nav := New(newFakeDrive(), session, Options{})

	require.NoError(t, nav.Navigate(ctx, "f1"))
	for i := 0; i < 3; i++ {
		require.NoError(t, nav.Refresh(ctx))
	}
	assert.Equal(t, []string{"f1"}, pathIDs(nav.Snapshot()))
}

func TestBreadcrumbJumpTruncates(t *testing.T) {
	ctx := context.Background()
	nav := New(newFakeDrive(), session, Options{})

	require.NoError(t, nav.Navigate(ctx, "f1"))
	require.NoError(t, nav.Navigate(ctx, "f2"))
	require.NoError(t, nav.Navigate(ctx, "f1"))

	snap := nav.Snapshot()
	assert.Equal(t, []string{"f1"}, pathIDs(snap))
	assert.Equal(t, "plan.txt", snap.Files[1].Name)
}

func TestNavigateToRootClearsPath(t *testing.T) {
	ctx := context.Background()
	nav := New(newFakeDrive(), session, Options{})

	require.NoError(t, nav.Navigate(ctx, "f1"))
	require.NoError(t, nav.Navigate(ctx, "f2"))
	require.NoError(t, nav.Navigate(ctx, ""))

	snap := nav.Snapshot()
	assert.Equal(t, []string{}, pathIDs(snap))
	assert.Equal(t, "", snap.FolderID)
}

func TestNavigateToRootClearsPathEvenWhenListingFails(t *testing.T) {
	ctx := context.Background()
	drive := newFakeDrive()
	nav := New(drive, session, Options{})

	require.NoError(t, nav.Navigate(ctx, "f1"))
	drive.fail[""] = &models.UpstreamError{Status: 500, Err: errors.New("backend down")}

	err := nav.Navigate(ctx, "")
	require.Error(t, err)
	assert.Empty(t, nav.Snapshot().Path)
}

func TestFailureKeepsPathAndClearsFiles(t *testing.T) {
	ctx := context.Background()
	drive := newFakeDrive()
	b := events.NewBroadcaster()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	nav := New(drive, session, Options{Events: b})

	require.NoError(t, nav.Navigate(ctx, "f1"))
	drive.fail["f1"] = &models.UpstreamError{Op: "list", Status: 502, Err: errors.New("timeout")}

	err := nav.Refresh(ctx)
	require.Error(t, err)
	snap := nav.Snapshot()
	assert.Equal(t, []string{"f1"}, pathIDs(snap))
	assert.Empty(t, snap.Files)
	assert.Equal(t, err, snap.Err)
	assert.False(t, snap.Loading)

	var last events.Event
	for len(sub) > 0 {
		last = <-sub
	}
	assert.Equal(t, events.EventListingFailed, last.Type)
	assert.Equal(t, "list: timeout", last.Error)
}

func TestMissingSession(t *testing.T) {
	drive := newFakeDrive()
	nav := New(drive, models.StaticSession(nil), Options{})

	err := nav.Refresh(context.Background())
	assert.True(t, models.IsAuth(err))
	assert.Equal(t, 0, drive.queryCount())
	assert.True(t, models.IsAuth(nav.Snapshot().Err))
}

func TestSetSortTogglesAndRefetches(t *testing.T) {
	ctx := context.Background()
	drive := newFakeDrive()
	nav := New(drive, session, Options{})

	require.NoError(t, nav.SetSort(ctx, models.SortByName))
	assert.Equal(t, models.Sort{Field: models.SortByName, Order: models.Descending}, nav.Snapshot().Sort)

	require.NoError(t, nav.SetSort(ctx, models.SortBySize))
	assert.Equal(t, models.Sort{Field: models.SortBySize, Order: models.Ascending}, nav.Snapshot().Sort)

	drive.mu.Lock()
	last := drive.queries[len(drive.queries)-1]
	drive.mu.Unlock()
	assert.Equal(t, models.SortBySize, last.Sort.Field)
	assert.Equal(t, DefaultPageSize, last.PageSize)
}

// A listing for a folder the user has already left must not touch state.
func TestStaleResultIsDiscarded(t *testing.T) {
	ctx := context.Background()
	drive := newFakeDrive()
	nav := New(drive, session, Options{})
	release := drive.holdFolder("f1")

	slow := make(chan error, 1)
	go func() { slow <- nav.Navigate(ctx, "f1") }()
	require.Eventually(t, func() bool { return drive.queryCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, nav.Navigate(ctx, ""))
	close(release)
	assert.ErrorIs(t, <-slow, ErrStale)

	snap := nav.Snapshot()
	assert.Empty(t, snap.Path, "stale folder must not be appended to the path")
	assert.Equal(t, "readme.txt", snap.Files[1].Name)
	assert.False(t, snap.Loading)
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	ctx := context.Background()
	drive := newFakeDrive()
	drive.fail["f1"] = errors.New("boom")
	nav := New(drive, session, Options{})
	release := drive.holdFolder("f1")

	slow := make(chan error, 1)
	go func() { slow <- nav.Navigate(ctx, "f1") }()
	require.Eventually(t, func() bool { return drive.queryCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, nav.Navigate(ctx, "f2"))
	close(release)
	assert.ErrorIs(t, <-slow, ErrStale)
	assert.NoError(t, nav.Snapshot().Err)
}

func TestDuplicateRefreshIsSuppressed(t *testing.T) {
	ctx := context.Background()
	drive := newFakeDrive()
	nav := New(drive, session, Options{})
	release := drive.holdFolder("")

	first := make(chan error, 1)
	go func() { first <- nav.Refresh(ctx) }()
	require.Eventually(t, func() bool { return nav.Snapshot().Loading }, time.Second, time.Millisecond)

	assert.ErrorIs(t, nav.Refresh(ctx), ErrSuppressed)
	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, 1, drive.queryCount())
}

func TestLoadMoreAppendsPage(t *testing.T) {
	ctx := context.Background()
	pages := &pagedDrive{}
	nav := New(pages, session, Options{})

	require.NoError(t, nav.Refresh(ctx))
	snap := nav.Snapshot()
	assert.Len(t, snap.Files, 1)
	assert.Equal(t, "p2", snap.NextPageToken)

	require.NoError(t, nav.LoadMore(ctx))
	snap = nav.Snapshot()
	assert.Len(t, snap.Files, 2)
	assert.Empty(t, snap.NextPageToken)

	// Nothing more to load.
	require.NoError(t, nav.LoadMore(ctx))
	assert.Equal(t, 2, pages.calls)
}

type pagedDrive struct{ calls int }

func (p *pagedDrive) ListFiles(_ context.Context, _ *models.Credential, q models.ListQuery) (*models.Listing, error) {
	p.calls++
	if q.PageToken == "" {
		return &models.Listing{Files: []models.File{file("a", "a.txt")}, NextPageToken: "p2"}, nil
	}
	return &models.Listing{Files: []models.File{file("b", "b.txt")}}, nil
}

func TestRemoveFile(t *testing.T) {
	ctx := context.Background()
	nav := New(newFakeDrive(), session, Options{})
	require.NoError(t, nav.Refresh(ctx))

	nav.RemoveFile("r1")
	snap := nav.Snapshot()
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "f1", snap.Files[0].ID)
}
