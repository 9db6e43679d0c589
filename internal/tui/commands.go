package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drivepane/drivepane/internal/actions"
	"github.com/drivepane/drivepane/internal/clientconfig"
	"github.com/drivepane/drivepane/internal/events"
	"github.com/drivepane/drivepane/internal/upload"
	"github.com/drivepane/drivepane/pkg/models"
)

// listingMsg reports the end of a navigation fetch.
type listingMsg struct {
	err error
}

// eventMsg carries one broadcaster event into the update loop.
type eventMsg events.Event

// actionMsg reports a finished download or delete.
type actionMsg struct {
	status string
	err    error
}

type previewMsg struct {
	file    models.File
	preview *actions.Preview
	err     error
}

// waitForEvent blocks on the subscription and hands the next event to the
// update loop. Update re-arms it after every eventMsg.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Model) navigate(folderID string) tea.Cmd {
	ctx, nav := m.ctx, m.deps.Nav
	return func() tea.Msg {
		return listingMsg{err: nav.Navigate(ctx, folderID)}
	}
}

func (m *Model) refresh() tea.Cmd {
	ctx, nav := m.ctx, m.deps.Nav
	return func() tea.Msg {
		return listingMsg{err: nav.Refresh(ctx)}
	}
}

func (m *Model) setSort(field models.SortField) tea.Cmd {
	ctx, nav := m.ctx, m.deps.Nav
	return func() tea.Msg {
		return listingMsg{err: nav.SetSort(ctx, field)}
	}
}

func (m *Model) loadMore() tea.Cmd {
	ctx, nav := m.ctx, m.deps.Nav
	return func() tea.Msg {
		return listingMsg{err: nav.LoadMore(ctx)}
	}
}

func (m *Model) download(file models.File) tea.Cmd {
	ctx, run := m.ctx, m.deps.Actions
	return func() tea.Msg {
		path, err := run.Download(ctx, file)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: "Saved " + path}
	}
}

func (m *Model) delete(file models.File) tea.Cmd {
	ctx, run := m.ctx, m.deps.Actions
	return func() tea.Msg {
		if err := run.Delete(ctx, file); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("Deleted %s", file.Name)}
	}
}

func (m *Model) preview(file models.File) tea.Cmd {
	ctx, run := m.ctx, m.deps.Actions
	return func() tea.Msg {
		p, err := run.Preview(ctx, file)
		return previewMsg{file: file, preview: p, err: err}
	}
}

// enqueueUploads expands the space-separated paths (globs included) and
// hands every regular file to the queue. Paths that cannot be read are
// reported without stopping the others.
func enqueueUploads(ctx context.Context, q *upload.Queue, folderID, input string) ([]upload.Item, []error) {
	var files []upload.File
	var errs []error
	for _, path := range expandPaths(input) {
		f, err := upload.LocalFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errs
	}
	return q.Enqueue(ctx, folderID, files...), errs
}

func expandPaths(input string) []string {
	var out []string
	for _, field := range strings.Fields(input) {
		matches, err := filepath.Glob(clientconfig.ExpandHome(field))
		if err != nil || len(matches) == 0 {
			out = append(out, clientconfig.ExpandHome(field))
			continue
		}
		out = append(out, matches...)
	}
	return out
}
