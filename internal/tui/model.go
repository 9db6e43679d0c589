// Package tui is the terminal file manager: a folder table with breadcrumbs,
// an upload queue panel and a preview pane.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/actions"
	"github.com/drivepane/drivepane/internal/events"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/navigation"
	"github.com/drivepane/drivepane/internal/upload"
	"github.com/drivepane/drivepane/pkg/models"
)

type mode int

const (
	modeBrowse mode = iota
	modeConfirmDelete
	modeUpload
	modePreview
)

// Deps are the components the UI drives.
type Deps struct {
	Nav     *navigation.State
	Queue   *upload.Queue
	Actions *actions.Runner
	Events  *events.Broadcaster
	Server  string
	User    string
}

// Model is the bubbletea model for the file manager.
type Model struct {
	ctx    context.Context
	deps   Deps
	sub    chan events.Event
	logger *zap.Logger

	keys     KeyMap
	table    table.Model
	help     help.Model
	spinner  spinner.Model
	input    textinput.Model
	viewport viewport.Model
	bar      progress.Model

	snap    navigation.Snapshot
	pending int

	mode          mode
	showHelp      bool
	focusQueue    bool
	queueCursor   int
	deleteTarget  models.File
	previewTitle  string
	status        string
	statusIsError bool

	width  int
	height int
}

// New creates the model and subscribes it to the event feed.
func New(ctx context.Context, deps Deps) *Model {
	t := table.New(
		table.WithColumns(columns(80, models.DefaultSort)),
		table.WithHeight(15),
		table.WithFocused(true),
		table.WithStyles(tableStyles()),
	)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbc04"))

	ti := textinput.New()
	ti.Placeholder = "paths to upload (space separated, globs allowed)"
	ti.CharLimit = 4096
	ti.Width = 60

	vp := viewport.New(80, 15)

	m := &Model{
		ctx:      ctx,
		deps:     deps,
		logger:   logging.Named("tui"),
		keys:     DefaultKeyMap(),
		table:    t,
		help:     help.New(),
		spinner:  s,
		input:    ti,
		viewport: vp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(20), progress.WithoutPercentage()),
		snap:     navigation.Snapshot{Sort: models.DefaultSort},
		width:    80,
		height:   24,
	}
	if deps.Events != nil {
		m.sub = deps.Events.Subscribe()
	}
	return m
}

// Close releases the event subscription.
func (m *Model) Close() {
	if m.sub != nil {
		m.deps.Events.Unsubscribe(m.sub)
		m.sub = nil
	}
}

// Run starts the UI and blocks until the user quits.
func Run(ctx context.Context, deps Deps) error {
	m := New(ctx, deps)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.listing(m.navigate("")), m.spinner.Tick}
	if m.sub != nil {
		cmds = append(cmds, waitForEvent(m.sub))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case listingMsg:
		m.pending = max(m.pending-1, 0)
		if errors.Is(msg.err, navigation.ErrStale) || errors.Is(msg.err, navigation.ErrSuppressed) {
			return m, nil
		}
		m.syncListing()
		if msg.err != nil {
			m.setError(msg.err)
		}
		return m, nil

	case eventMsg:
		return m, m.handleEvent(events.Event(msg))

	case actionMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setStatus(msg.status)
		}
		m.syncListing()
		return m, nil

	case previewMsg:
		m.showPreview(msg)
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		case modeUpload:
			return m.updateUpload(msg)
		case modePreview:
			return m.updatePreview(msg)
		}
		return m.updateBrowser(msg)
	}
	return m, nil
}

func (m *Model) handleEvent(ev events.Event) tea.Cmd {
	var cmds []tea.Cmd
	switch ev.Type {
	case events.EventUploadCompleted:
		m.setStatus(fmt.Sprintf("Uploaded %s", ev.FileName))
		if ev.FolderID == m.snap.FolderID {
			cmds = append(cmds, m.listing(m.refresh()))
		}
	case events.EventUploadFailed:
		m.statusIsError = true
		m.status = fmt.Sprintf("%s: %s", ev.FileName, ev.Error)
	}
	if ev.IsUpload() {
		m.clampQueueCursor()
	}
	if m.sub != nil {
		cmds = append(cmds, waitForEvent(m.sub))
	}
	return tea.Batch(cmds...)
}

// listing counts an outstanding navigation command for the spinner.
func (m *Model) listing(cmd tea.Cmd) tea.Cmd {
	m.pending++
	return cmd
}

func (m *Model) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Queue):
		m.focusQueue = !m.focusQueue
		if m.focusQueue {
			m.table.Blur()
		} else {
			m.table.Focus()
		}
		return m, nil
	}

	if m.focusQueue && m.deps.Queue != nil {
		return m.updateQueue(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Open):
		file, ok := m.selected()
		if !ok {
			return m, nil
		}
		if file.IsFolder() {
			return m, m.listing(m.navigate(file.ID))
		}
		return m, m.preview(file)

	case key.Matches(msg, m.keys.Parent):
		if m.snap.FolderID == "" {
			return m, nil
		}
		parent := ""
		if n := len(m.snap.Path); n >= 2 {
			parent = m.snap.Path[n-2].ID
		}
		return m, m.listing(m.navigate(parent))

	case key.Matches(msg, m.keys.Root):
		return m, m.listing(m.navigate(""))

	case key.Matches(msg, m.keys.SortName):
		return m, m.listing(m.setSort(models.SortByName))
	case key.Matches(msg, m.keys.SortMod):
		return m, m.listing(m.setSort(models.SortByModifiedTime))
	case key.Matches(msg, m.keys.SortSize):
		return m, m.listing(m.setSort(models.SortBySize))
	case key.Matches(msg, m.keys.SortType):
		return m, m.listing(m.setSort(models.SortByMimeType))

	case key.Matches(msg, m.keys.Refresh):
		m.status = ""
		return m, m.listing(m.refresh())

	case key.Matches(msg, m.keys.More):
		if m.snap.NextPageToken == "" {
			return m, nil
		}
		return m, m.listing(m.loadMore())

	case key.Matches(msg, m.keys.Upload):
		m.mode = modeUpload
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Download):
		file, ok := m.selected()
		if !ok || file.IsFolder() {
			return m, nil
		}
		m.setStatus("Downloading " + file.Name + "...")
		return m, m.download(file)

	case key.Matches(msg, m.keys.Delete):
		file, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.deleteTarget = file
		m.mode = modeConfirmDelete
		return m, nil
	}
	return m, nil
}

func (m *Model) updateQueue(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.deps.Queue.Items()
	switch {
	case key.Matches(msg, m.keys.Up):
		m.queueCursor = max(m.queueCursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.queueCursor = min(m.queueCursor+1, max(len(items)-1, 0))
	case key.Matches(msg, m.keys.Delete):
		if m.queueCursor < len(items) {
			if err := m.deps.Queue.Remove(items[m.queueCursor].ID); err != nil {
				m.setError(err)
			}
		}
	case key.Matches(msg, m.keys.ClearQueue):
		n := m.deps.Queue.Clear()
		m.setStatus(fmt.Sprintf("Cleared %d finished uploads", n))
	}
	m.clampQueueCursor()
	return m, nil
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.mode = modeBrowse
		m.setStatus("Deleting " + m.deleteTarget.Name + "...")
		return m, m.delete(m.deleteTarget)
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeBrowse
		m.deleteTarget = models.File{}
	}
	return m, nil
}

func (m *Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.mode = modeBrowse
		m.input.Blur()
		items, errs := enqueueUploads(m.ctx, m.deps.Queue, m.snap.FolderID, m.input.Value())
		for _, err := range errs {
			m.logger.Warn("skipping upload path", zap.Error(err))
		}
		switch {
		case len(errs) > 0:
			m.setError(fmt.Errorf("queued %d, skipped %d: %w", len(items), len(errs), errs[0]))
		case len(items) == 0:
			m.setStatus("Nothing to upload")
		default:
			m.setStatus(fmt.Sprintf("Queued %d uploads", len(items)))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc || key.Matches(msg, m.keys.Quit) {
		m.mode = modeBrowse
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) showPreview(msg previewMsg) {
	if msg.err != nil {
		m.setError(msg.err)
		return
	}
	p := msg.preview
	var body string
	switch {
	case p.Kind == models.PreviewUnsupported:
		m.setStatus("Preview is not available for this file type")
		return
	case p.Kind == models.PreviewText:
		body = p.Text
		if p.Truncated {
			body += "\n" + mutedStyle.Render("… preview truncated, download for the full file")
		}
	case p.URL != "":
		body = fmt.Sprintf("%s preview\n\nOpen in a browser:\n%s", strings.ToUpper(string(p.Kind)), p.URL)
	default:
		m.setStatus("No viewer available for " + msg.file.Name)
		return
	}
	m.previewTitle = msg.file.Name
	m.viewport.SetContent(body)
	m.viewport.GotoTop()
	m.mode = modePreview
}

// syncListing copies the navigator state into the table.
func (m *Model) syncListing() {
	if m.deps.Nav == nil {
		return
	}
	prev := m.snap.FolderID
	m.snap = m.deps.Nav.Snapshot()

	rows := make([]table.Row, 0, len(m.snap.Files))
	for _, f := range m.snap.Files {
		name, size := f.Name, "-"
		if f.IsFolder() {
			name = "▸ " + name
		} else if f.Size != nil {
			size = formatSize(*f.Size)
		}
		rows = append(rows, table.Row{name, models.TypeLabel(f.MimeType), size, formatTime(f.ModifiedTime)})
	}
	m.table.SetColumns(columns(m.width, m.snap.Sort))
	m.table.SetRows(rows)
	if prev != m.snap.FolderID || m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
}

func (m *Model) selected() (models.File, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.snap.Files) {
		return models.File{}, false
	}
	return m.snap.Files[i], true
}

func (m *Model) clampQueueCursor() {
	if m.deps.Queue == nil {
		return
	}
	n := len(m.deps.Queue.Items())
	if m.queueCursor >= n {
		m.queueCursor = max(n-1, 0)
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusIsError = false
}

func (m *Model) setError(err error) {
	m.status = actions.Message(err)
	m.statusIsError = true
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.table.SetColumns(columns(w, m.snap.Sort))
	m.table.SetHeight(max(h-14, 5))
	m.viewport.Width = max(w-4, 20)
	m.viewport.Height = max(h-6, 5)
	m.input.Width = max(w-8, 20)
	m.help.Width = w
}

func columns(width int, s models.Sort) []table.Column {
	title := func(label string, field models.SortField) string {
		if s.Field != field {
			return label
		}
		if s.Order == models.Descending {
			return label + " ▼"
		}
		return label + " ▲"
	}
	const typeW, sizeW, modW = 14, 10, 17
	nameW := max(width-typeW-sizeW-modW-10, 16)
	return []table.Column{
		{Title: title("Name", models.SortByName), Width: nameW},
		{Title: title("Type", models.SortByMimeType), Width: typeW},
		{Title: title("Size", models.SortBySize), Width: sizeW},
		{Title: title("Modified", models.SortByModifiedTime), Width: modW},
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("drivepane")
	if m.deps.User != "" {
		header += " " + mutedStyle.Render(m.deps.User+" @ "+m.deps.Server)
	}
	b.WriteString(header + "\n")
	b.WriteString(m.breadcrumbs() + "\n\n")

	switch m.mode {
	case modePreview:
		b.WriteString(titleStyle.Render(m.previewTitle) + "\n")
		b.WriteString(panelStyle.Render(m.viewport.View()) + "\n")
		b.WriteString(mutedStyle.Render("↑/↓ scroll • esc close"))
		return b.String()
	case modeUpload:
		b.WriteString(dialogStyle.Render("Upload to this folder\n\n"+m.input.View()+"\n\n"+mutedStyle.Render("enter queue • esc cancel")) + "\n")
		return b.String()
	}

	filesStyle, queueStyle := focusedPanelStyle, panelStyle
	if m.focusQueue {
		filesStyle, queueStyle = panelStyle, focusedPanelStyle
	}
	b.WriteString(filesStyle.Render(m.filesView()) + "\n")
	if q := m.queueView(); q != "" {
		b.WriteString(queueStyle.Render(q) + "\n")
	}

	if m.mode == modeConfirmDelete {
		b.WriteString(dialogStyle.Render(fmt.Sprintf("Delete %q? (y/n)", m.deleteTarget.Name)) + "\n")
	}

	switch {
	case m.pending > 0:
		b.WriteString(m.spinner.View() + " Loading...\n")
	case m.status != "" && m.statusIsError:
		b.WriteString(errorStyle.Render(m.status) + "\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) breadcrumbs() string {
	parts := []string{"My Drive"}
	for _, p := range m.snap.Path {
		parts = append(parts, p.Name)
	}
	return crumbStyle.Render(strings.Join(parts, " / "))
}

func (m *Model) filesView() string {
	if len(m.snap.Files) == 0 {
		if m.pending > 0 {
			return mutedStyle.Render("Loading files...")
		}
		return mutedStyle.Render("This folder is empty")
	}
	v := m.table.View()
	footer := fmt.Sprintf("%d items", len(m.snap.Files))
	if m.snap.NextPageToken != "" {
		footer += " • n: load more"
	}
	return v + "\n" + mutedStyle.Render(footer)
}

func (m *Model) queueView() string {
	if m.deps.Queue == nil {
		return ""
	}
	items := m.deps.Queue.Items()
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Uploads\n")
	for i, it := range items {
		cursor := "  "
		if m.focusQueue && i == m.queueCursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-30s %s %3d%% %s", cursor, truncate(it.Name, 30), m.bar.ViewAs(float64(it.Progress)/100), it.Progress, it.Status)
		if it.Status == upload.StatusError {
			line += " " + errorStyle.Render(it.Err)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
