package ui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
	"github.com/yhkl-dev/naviplay/config"
	"github.com/yhkl-dev/naviplay/library"
	"github.com/yhkl-dev/naviplay/playback"
	"go.uber.org/atomic"
)

const (
	libraryCollection = "library"
	searchCollection  = "search"

	seekStep   = 10 // seconds
	volumeStep = 0.05
)

// pager tracks how far a catalog-backed collection has been paged in.
type pager struct {
	query     library.SearchQuery
	loaded    int
	exhausted bool
}

// App represents the TUI application
type App struct {
	tviewApp *tview.Application
	cfg      *config.Config
	engine   *playback.Engine
	ctx      context.Context

	pageSize    int
	pagers      map[string]*pager // touched on the UI goroutine only
	loadingMore *atomic.Bool

	// table state, owned by the UI goroutine
	renderedID    string
	renderedCount int
	highlighted   int
	screenWidth   int

	rootFlex        *tview.Flex
	songTable       *tview.Table
	statusBar       *tview.TextView
	progressBar     *tview.TextView
	searchView      *SearchView
	helpView        *HelpView
	collectionsView *CollectionsView
	keys            *KeyBindingManager
}

// NewApp creates a new TUI application driven by engine
func NewApp(ctx context.Context, cfg *config.Config, engine *playback.Engine) *App {
	pageSize := cfg.Library.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultConfig().Library.PageSize
	}
	return &App{
		tviewApp:    tview.NewApplication(),
		cfg:         cfg,
		engine:      engine,
		ctx:         ctx,
		pageSize:    pageSize,
		pagers:      make(map[string]*pager),
		loadingMore: atomic.NewBool(false),
		highlighted: -1,
	}
}

// Run starts the application
func (a *App) Run() error {
	a.createHomepage()
	go a.loadMusic()
	go a.watchEngine()

	log.Info().Msg("starting naviplay")
	return a.tviewApp.Run()
}

// Stop stops the application
func (a *App) Stop() {
	if a.tviewApp != nil {
		a.tviewApp.Stop()
	}
}

// loadMusic fills the library collection with a first page of random songs
func (a *App) loadMusic() {
	q := library.SearchQuery{Random: true, Limit: a.pageSize}
	n, err := a.engine.LoadCollection(a.ctx, libraryCollection, "Library", q)
	a.tviewApp.QueueUpdateDraw(func() {
		a.pagers[libraryCollection] = &pager{query: q, loaded: n, exhausted: err != nil || n < a.pageSize}
		if err != nil {
			a.statusBar.SetText("[red]Failed to load music: " + tview.Escape(err.Error()))
		}
	})
}

// loadMore appends the next catalog page to the active collection. Must be
// called on the UI goroutine.
func (a *App) loadMore() {
	id := a.engine.Playlist().ActiveID()
	p, ok := a.pagers[id]
	if !ok || p.exhausted {
		return
	}
	if !a.loadingMore.CompareAndSwap(false, true) {
		return
	}

	q := p.query
	q.Offset = p.loaded
	go func() {
		defer a.loadingMore.Store(false)
		n, err := a.engine.AppendFromCatalog(a.ctx, id, q)
		a.tviewApp.QueueUpdate(func() {
			p.loaded += n
			if err != nil || n < a.pageSize {
				p.exhausted = true
			}
		})
		if err != nil {
			log.Warn().Err(err).Str("collection", id).Msg("load more")
		}
	}()
}

// watchEngine redraws whenever the engine publishes a new snapshot
func (a *App) watchEngine() {
	updates := a.engine.Subscribe()
	defer a.engine.Unsubscribe(updates)

	a.render(a.engine.Snapshot())
	for {
		select {
		case <-a.ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			a.render(snap)
		}
	}
}

func (a *App) render(snap playback.Snapshot) {
	a.tviewApp.QueueUpdateDraw(func() {
		if snap.CollectionID != a.renderedID || snap.TrackCount != a.renderedCount {
			a.renderSongTable()
		}
		a.highlightRow(snap.Index)
		a.statusBar.SetText(FormatSongInfo(snap, a.cfg.UI.ProgressBarWidth))
		a.progressBar.SetText(CreateProgressText(snap))
	})
}

// async runs a blocking engine call off the UI goroutine
func (a *App) async(name string, fn func(ctx context.Context) error) {
	go func() {
		if err := fn(a.ctx); err != nil && a.ctx.Err() == nil {
			log.Debug().Err(err).Str("action", name).Msg("playback action failed")
		}
	}()
}

func (a *App) playSelected() {
	row, _ := a.songTable.GetSelection()
	if row <= 0 {
		return
	}
	index := row - 1
	a.async("select", func(ctx context.Context) error {
		return a.engine.SelectTrack(ctx, index)
	})
}

func (a *App) togglePlay() {
	a.async("toggle", a.engine.TogglePlay)
}

func (a *App) playNextSong() {
	a.async("next", a.engine.Next)
}

func (a *App) playPreviousSong() {
	a.async("previous", a.engine.Previous)
}

func (a *App) seekBy(seconds int) {
	a.async("seek", func(ctx context.Context) error {
		a.engine.SeekBy(ctx, time.Duration(seconds)*time.Second)
		return nil
	})
}

func (a *App) volumeBy(delta float64) {
	a.engine.SetVolume(a.engine.Snapshot().Volume + delta)
}

func (a *App) cyclePlayMode() {
	mode := a.engine.CyclePlayMode()
	log.Debug().Stringer("mode", mode).Msg("play mode changed")
}

func (a *App) removeSelected() {
	row, _ := a.songTable.GetSelection()
	if row <= 0 {
		return
	}
	if err := a.engine.RemoveAt(row - 1); err != nil {
		a.statusBar.SetText("[red]" + tview.Escape(err.Error()))
	}
}

// moveSelection moves the table cursor by delta rows, clamped to the table.
func (a *App) moveSelection(delta int) {
	rows := a.songTable.GetRowCount()
	if rows <= 1 {
		return
	}
	row, _ := a.songTable.GetSelection()
	row = min(max(row+delta, 1), rows-1)
	a.songTable.Select(row, 0)
}

func (a *App) pageRows() int {
	_, _, _, height := a.songTable.GetInnerRect()
	return max(height-1, 1)
}

// handleExit stops the UI; main tears down the engine afterwards.
func (a *App) handleExit() {
	a.tviewApp.Stop()
}

// showModal replaces the root with a centred container.
func (a *App) showModal(container tview.Primitive, width, height int) {
	modal := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(container, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)

	a.tviewApp.SetRoot(modal, true)
}

// closeModal restores the main layout.
func (a *App) closeModal() {
	a.tviewApp.SetRoot(a.rootFlex, true)
	a.tviewApp.SetFocus(a.songTable)
}

// trackResize re-renders the song table when the terminal width changes.
func (a *App) trackResize(screen tcell.Screen) bool {
	w, _ := screen.Size()
	if w != a.screenWidth {
		a.screenWidth = w
		a.renderSongTable()
	}
	return false
}
