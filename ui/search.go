package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
	"github.com/yhkl-dev/naviplay/library"
)

// SearchView is the inline search field above the song table. Results are
// loaded into their own collection; clearing the search switches back to
// the collection that was active before.
type SearchView struct {
	app      *App
	input    *tview.InputField
	previous string
	isActive bool
}

// NewSearchView creates a new search view
func NewSearchView(app *App) *SearchView {
	sv := &SearchView{app: app}

	sv.input = tview.NewInputField().
		SetLabel("[yellow]Search: ").
		SetFieldWidth(0).
		SetPlaceholder("Type to search, ESC to clear, ENTER to search...").
		SetFieldBackgroundColor(tcell.ColorBlack)
	sv.input.SetBorder(false)

	sv.input.SetChangedFunc(func(text string) {
		if text == "" && sv.isActive {
			sv.Clear()
		}
	})

	sv.input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			sv.Submit(sv.input.GetText())
		case tcell.KeyEscape:
			sv.Clear()
			sv.app.tviewApp.SetFocus(sv.app.songTable)
		}
	})

	sv.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyDown || event.Key() == tcell.KeyTab {
			sv.app.tviewApp.SetFocus(sv.app.songTable)
			return nil
		}
		return event
	})

	return sv
}

// GetInput returns the search input primitive
func (sv *SearchView) GetInput() *tview.InputField {
	return sv.input
}

// Focus moves keyboard focus to the search field
func (sv *SearchView) Focus() {
	sv.app.tviewApp.SetFocus(sv.input)
}

// HasFocus reports whether the search field is receiving keys
func (sv *SearchView) HasFocus() bool {
	return sv.input.HasFocus()
}

// IsActive reports whether search results are currently shown
func (sv *SearchView) IsActive() bool {
	return sv.isActive
}

// Submit runs a catalog search and shows its results
func (sv *SearchView) Submit(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	if !sv.isActive {
		sv.previous = sv.app.engine.Playlist().ActiveID()
		sv.isActive = true
	}

	app := sv.app
	q := library.SearchQuery{Query: query, Limit: app.pageSize}
	go func() {
		n, err := app.engine.LoadCollection(app.ctx, searchCollection, "Search: "+query, q)
		app.tviewApp.QueueUpdateDraw(func() {
			app.pagers[searchCollection] = &pager{query: q, loaded: n, exhausted: err != nil || n < app.pageSize}
			if err != nil {
				app.statusBar.SetText("[red]Search failed: " + tview.Escape(err.Error()))
				return
			}
			sv.input.SetFieldBackgroundColor(tcell.ColorDarkGreen)
			app.tviewApp.SetFocus(app.songTable)
		})
	}()
}

// Clear leaves search mode and restores the previous collection
func (sv *SearchView) Clear() {
	if sv.isActive {
		sv.isActive = false
		if sv.previous != "" {
			if err := sv.app.engine.ActivateCollection(sv.previous); err != nil {
				log.Warn().Err(err).Str("collection", sv.previous).Msg("restore collection")
			}
		}
		sv.previous = ""
	}
	if sv.input.GetText() != "" {
		sv.input.SetText("")
	}
	sv.input.SetFieldBackgroundColor(tcell.ColorBlack)
}
