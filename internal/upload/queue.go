// Package upload implements the client-side upload queue: every submitted
// file becomes an item with its own independent transfer pipeline.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/events"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/models"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

var (
	ErrNotFound  = errors.New("upload item not found")
	ErrInFlight  = errors.New("upload already in flight")
	ErrUploading = errors.New("cannot remove an item while it is uploading")
)

// Item is a snapshot of one queued upload.
type Item struct {
	ID       string
	Name     string
	Size     int64
	ParentID string
	Progress int
	Status   Status
	Err      string
}

// Creator is the collaborator operation the queue drives.
type Creator interface {
	CreateFile(ctx context.Context, cred *models.Credential, req models.CreateRequest) (*models.File, error)
}

// Options tunes the queue. Zero values take the defaults.
type Options struct {
	MaxFileSize  int64
	TickInterval time.Duration
	TickStep     int
	ProgressCap  int
	RemoveDelay  time.Duration
	Clock        clock.Clock
	Events       events.Publisher
}

const defaultMaxFileSize = 10 * 1024 * 1024

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = defaultMaxFileSize
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 500 * time.Millisecond
	}
	if o.TickStep <= 0 {
		o.TickStep = 10
	}
	if o.ProgressCap <= 0 || o.ProgressCap >= 100 {
		o.ProgressCap = 90
	}
	if o.RemoveDelay <= 0 {
		o.RemoveDelay = 2 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Events == nil {
		o.Events = events.Nop{}
	}
	return o
}

type entry struct {
	item Item
	file File
}

// Queue tracks uploads in submission order.
type Queue struct {
	creator  Creator
	sessions models.SessionSource
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	entries  []*entry
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewQueue creates a queue that uploads through creator using the
// credential from sessions.
func NewQueue(creator Creator, sessions models.SessionSource, opts Options) *Queue {
	return &Queue{
		creator:  creator,
		sessions: sessions,
		opts:     opts.withDefaults(),
		logger:   logging.Named("upload"),
		inFlight: make(map[string]bool),
	}
}

// MaxFileSize returns the size limit applied before any transfer.
func (q *Queue) MaxFileSize() int64 {
	return q.opts.MaxFileSize
}

// Enqueue adds one pending item per file and starts processing each of them
// independently. The returned snapshot is taken before any processing.
func (q *Queue) Enqueue(ctx context.Context, parentID string, files ...File) []Item {
	q.mu.Lock()
	added := make([]Item, 0, len(files))
	for _, f := range files {
		e := &entry{
			item: Item{
				ID:       uuid.NewString(),
				Name:     f.Name(),
				Size:     f.Size(),
				ParentID: parentID,
				Status:   StatusPending,
			},
			file: f,
		}
		q.entries = append(q.entries, e)
		added = append(added, e.item)
	}
	q.wg.Add(len(added))
	q.mu.Unlock()

	for _, it := range added {
		q.publish(events.EventUploadQueued, it, "")
	}
	for _, it := range added {
		go func(id string) {
			defer q.wg.Done()
			if err := q.Process(ctx, id); err != nil {
				q.logger.Debug("upload finished with error", zap.String("id", id), zap.Error(err))
			}
		}(it.ID)
	}
	return added
}

// Process runs the transfer for one item. A second call while the item is
// in flight returns ErrInFlight without doing anything.
func (q *Queue) Process(ctx context.Context, id string) error {
	q.mu.Lock()
	e := q.find(id)
	if e == nil {
		q.mu.Unlock()
		return ErrNotFound
	}
	if q.inFlight[id] {
		q.mu.Unlock()
		return ErrInFlight
	}
	if e.file.Size() > q.opts.MaxFileSize {
		err := models.Validationf("File size exceeds maximum allowed size (%d MB)", q.opts.MaxFileSize/(1024*1024))
		e.item.Status = StatusError
		e.item.Err = err.Error()
		snap := e.item
		q.mu.Unlock()
		q.publish(events.EventUploadFailed, snap, snap.Err)
		return err
	}
	q.inFlight[id] = true
	e.item.Status = StatusUploading
	e.item.Progress = 0
	e.item.Err = ""
	snap := e.item
	file := e.file
	q.mu.Unlock()

	q.publish(events.EventUploadProgress, snap, "")

	stopTicker := q.startTicker(id)
	created, err := q.transfer(ctx, file, snap.ParentID)
	stopTicker()

	if err != nil {
		q.fail(id, err)
		return err
	}
	q.complete(id, created)
	return nil
}

func (q *Queue) transfer(ctx context.Context, file File, parentID string) (*models.File, error) {
	cred, err := models.RequireSession(ctx, q.sessions)
	if err != nil {
		return nil, err
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name(), err)
	}
	defer rc.Close()

	return q.creator.CreateFile(ctx, cred, models.CreateRequest{
		Name:     file.Name(),
		MimeType: file.MimeType(),
		ParentID: parentID,
		Size:     file.Size(),
		Content:  rc,
	})
}

// startTicker simulates progress while the transfer is outstanding. The
// returned stop function does not return until the ticker goroutine exits,
// so no tick can land after completion.
func (q *Queue) startTicker(id string) func() {
	ticker := q.opts.Clock.Ticker(q.opts.TickInterval)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				q.advance(id)
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stop)
		<-done
	}
}

func (q *Queue) advance(id string) {
	q.mu.Lock()
	e := q.find(id)
	if e == nil || e.item.Status != StatusUploading || e.item.Progress >= q.opts.ProgressCap {
		q.mu.Unlock()
		return
	}
	e.item.Progress = min(e.item.Progress+q.opts.TickStep, q.opts.ProgressCap)
	snap := e.item
	q.mu.Unlock()

	q.publish(events.EventUploadProgress, snap, "")
}

func (q *Queue) complete(id string, created *models.File) {
	q.mu.Lock()
	e := q.find(id)
	if e == nil {
		q.mu.Unlock()
		return
	}
	e.item.Progress = 100
	e.item.Status = StatusCompleted
	snap := e.item
	q.mu.Unlock()

	remoteID := ""
	if created != nil {
		remoteID = created.ID
	}
	q.logger.Info("upload completed",
		zap.String("id", id),
		zap.String("name", snap.Name),
		zap.String("remote_id", remoteID))
	q.publish(events.EventUploadCompleted, snap, "")

	q.opts.Clock.AfterFunc(q.opts.RemoveDelay, func() {
		q.mu.Lock()
		e := q.find(id)
		if e == nil || e.item.Status != StatusCompleted {
			q.mu.Unlock()
			return
		}
		q.drop(id)
		snap := e.item
		q.mu.Unlock()
		q.publish(events.EventUploadRemoved, snap, "")
	})
}

func (q *Queue) fail(id string, err error) {
	q.mu.Lock()
	delete(q.inFlight, id)
	e := q.find(id)
	if e == nil {
		q.mu.Unlock()
		return
	}
	e.item.Status = StatusError
	e.item.Err = err.Error()
	snap := e.item
	q.mu.Unlock()

	q.logger.Warn("upload failed", zap.String("id", id), zap.String("name", snap.Name), zap.Error(err))
	q.publish(events.EventUploadFailed, snap, snap.Err)
}

// Remove drops an item and clears its in-flight marker. Items that are
// uploading stay in the queue.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	e := q.find(id)
	if e == nil {
		q.mu.Unlock()
		return ErrNotFound
	}
	if e.item.Status == StatusUploading {
		q.mu.Unlock()
		return ErrUploading
	}
	q.drop(id)
	snap := e.item
	q.mu.Unlock()

	q.publish(events.EventUploadRemoved, snap, "")
	return nil
}

// Clear drops every completed or errored item.
func (q *Queue) Clear() int {
	q.mu.Lock()
	var removed []Item
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.item.Status == StatusCompleted || e.item.Status == StatusError {
			delete(q.inFlight, e.item.ID)
			removed = append(removed, e.item)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	q.mu.Unlock()

	for _, it := range removed {
		q.publish(events.EventUploadRemoved, it, "")
	}
	return len(removed)
}

// Items returns a snapshot of every item in submission order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.item
	}
	return out
}

// Get returns a snapshot of one item.
func (q *Queue) Get(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.find(id); e != nil {
		return e.item, true
	}
	return Item{}, false
}

// Wait blocks until every transfer started by Enqueue has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// find and drop require q.mu.
func (q *Queue) find(id string) *entry {
	for _, e := range q.entries {
		if e.item.ID == id {
			return e
		}
	}
	return nil
}

func (q *Queue) drop(id string) {
	delete(q.inFlight, id)
	for i, e := range q.entries {
		if e.item.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

func (q *Queue) publish(typ string, it Item, errMsg string) {
	q.opts.Events.Publish(events.Event{
		Type:     typ,
		ItemID:   it.ID,
		FileName: it.Name,
		Progress: it.Progress,
		FolderID: it.ParentID,
		Error:    errMsg,
	})
}
