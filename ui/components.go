package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// createHomepage sets up the UI layout
func (a *App) createHomepage() {
	a.progressBar = tview.NewTextView().
		SetDynamicColors(true)
	a.progressBar.SetBorder(false)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false).
		SetWrap(true)
	a.statusBar.SetBorder(false)
	a.statusBar.SetText(CreateWelcomeMessage(0))

	a.songTable = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.songTable.SetBorder(false)

	a.searchView = NewSearchView(a)
	a.helpView = NewHelpView(a)
	a.collectionsView = NewCollectionsView(a)

	a.setupTableHeaders()
	a.setupKeyBindings()
	a.setupInputHandlers()

	leftPanel := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.statusBar, 0, 1, false)

	rightPanel := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.searchView.GetInput(), 1, 0, false).
		AddItem(a.songTable, 0, 1, true)

	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(leftPanel, 0, 1, false).
		AddItem(rightPanel, 0, 2, true)

	a.rootFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 1, true).
		AddItem(a.progressBar, 3, 0, false)

	a.tviewApp.SetRoot(a.rootFlex, true)
	a.tviewApp.SetBeforeDrawFunc(a.trackResize)
}

// setupTableHeaders sets up the table header row
func (a *App) setupTableHeaders() {
	headerStyle := tcell.StyleDefault.Foreground(tcell.ColorGray).Attributes(tcell.AttrBold)

	headers := []string{"#", "Title", "Time", "Artist", "Album"}
	for col, h := range headers {
		a.songTable.SetCell(0, col, tview.NewTableCell(h).SetStyle(headerStyle).SetSelectable(false))
	}
}

// setupKeyBindings registers the global shortcuts
func (a *App) setupKeyBindings() {
	a.keys = NewKeyBindingManager()

	bind := func(name string, handler func(), keys []tcell.Key, runes ...rune) {
		a.keys.RegisterKeyBinding(KeyAction{name: name, handler: handler}, keys, runes)
	}

	bind("toggle", a.togglePlay, nil, ' ')
	bind("next", a.playNextSong, nil, 'n', 'N')
	bind("previous", a.playPreviousSong, nil, 'p', 'P')
	bind("seekForward", func() { a.seekBy(seekStep) }, []tcell.Key{tcell.KeyRight}, 'l')
	bind("seekBackward", func() { a.seekBy(-seekStep) }, []tcell.Key{tcell.KeyLeft}, 'h')
	bind("volumeUp", func() { a.volumeBy(volumeStep) }, nil, '+', '=')
	bind("volumeDown", func() { a.volumeBy(-volumeStep) }, nil, '-', '_')
	bind("mute", a.engine.ToggleMute, nil, 'm', 'M')
	bind("playMode", a.cyclePlayMode, nil, 's', 'S')
	bind("search", a.searchView.Focus, nil, '/')
	bind("help", a.showHelp, nil, '?')
	bind("collections", a.showCollections, nil, 'c', 'C')
	bind("remove", a.removeSelected, []tcell.Key{tcell.KeyDelete}, 'd')
	bind("loadMore", a.loadMore, nil, ']')
	bind("pageDown", func() { a.moveSelection(a.pageRows()) }, []tcell.Key{tcell.KeyPgDn}, 'J')
	bind("pageUp", func() { a.moveSelection(-a.pageRows()) }, []tcell.Key{tcell.KeyPgUp}, 'K')
	bind("goEnd", func() { a.moveSelection(a.songTable.GetRowCount()) }, nil, 'G')
	bind("exit", a.handleExit, []tcell.Key{tcell.KeyCtrlC})

	a.keys.RegisterSequence(KeyAction{
		name:    "goStart",
		handler: func() { a.moveSelection(-a.songTable.GetRowCount()) },
	}, "gg")
}

// setupInputHandlers sets up keyboard input handlers
func (a *App) setupInputHandlers() {
	a.songTable.SetSelectedFunc(func(row, column int) {
		a.playSelected()
	})

	// page in more songs when the cursor reaches the end of the table
	a.songTable.SetSelectionChangedFunc(func(row, column int) {
		if row > 0 && row >= a.songTable.GetRowCount()-1 {
			a.loadMore()
		}
	})

	a.tviewApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Handle modal views first
		if a.helpView.IsActive() {
			if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
				a.helpView.Close()
				return nil
			}
			return event
		}
		if a.collectionsView.IsActive() {
			if event.Key() == tcell.KeyEscape || event.Rune() == 'c' || event.Rune() == 'C' {
				a.collectionsView.Close()
				return nil
			}
			return event
		}
		if a.searchView.HasFocus() {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			a.keys.ResetPending()
			if a.searchView.IsActive() {
				a.searchView.Clear()
				return nil
			}
			a.handleExit()
			return nil
		}

		if a.keys.HandleKey(event) {
			return nil
		}
		return event
	})
}

// renderSongTable renders the active collection into the song table
func (a *App) renderSongTable() {
	tracks := a.engine.Playlist().Tracks()
	a.renderedID = a.engine.Playlist().ActiveID()
	a.renderedCount = len(tracks)

	selected, _ := a.songTable.GetSelection()
	for i := a.songTable.GetRowCount() - 1; i > 0; i-- {
		a.songTable.RemoveRow(i)
	}
	a.setupTableHeaders()

	termWidth := a.screenWidth
	for i, track := range tracks {
		row := i + 1
		rowStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorDefault)

		trackCell := tview.NewTableCell(fmt.Sprintf("%d:", row)).
			SetStyle(rowStyle.Foreground(tcell.ColorLightGreen)).
			SetAlign(tview.AlignRight)

		titleCell := tview.NewTableCell(track.Title).
			SetStyle(rowStyle.Foreground(tcell.ColorWhite)).
			SetExpansion(1)

		a.songTable.SetCell(row, 0, trackCell)
		a.songTable.SetCell(row, 1, titleCell)

		if termWidth == 0 || termWidth >= 50 {
			a.songTable.SetCell(row, 2, tview.NewTableCell(FormatDuration(track.Duration)).
				SetStyle(rowStyle.Foreground(tcell.ColorGray)).
				SetAlign(tview.AlignRight))
		}
		if termWidth == 0 || termWidth >= 60 {
			a.songTable.SetCell(row, 3, tview.NewTableCell(track.Artist).
				SetStyle(rowStyle.Foreground(tcell.ColorGray)).
				SetMaxWidth(15))
		}
		if termWidth == 0 || termWidth >= 90 {
			a.songTable.SetCell(row, 4, tview.NewTableCell(track.Album).
				SetStyle(rowStyle.Foreground(tcell.ColorGray)).
				SetMaxWidth(20))
		}
	}

	a.songTable.SetSelectedStyle(tcell.StyleDefault.
		Background(tcell.ColorDarkGreen).
		Foreground(tcell.ColorWhite))

	if len(tracks) > 0 {
		a.songTable.Select(min(max(selected, 1), len(tracks)), 0)
	}

	current := a.highlighted
	a.highlighted = -1
	a.highlightRow(current)
}

// highlightRow marks the title of the track at index as now playing
func (a *App) highlightRow(index int) {
	if index == a.highlighted {
		return
	}
	if cell := a.songTable.GetCell(a.highlighted+1, 1); a.highlighted >= 0 && cell != nil {
		cell.SetTextColor(tcell.ColorWhite)
	}
	if cell := a.songTable.GetCell(index+1, 1); index >= 0 && cell != nil {
		cell.SetTextColor(tcell.ColorYellow)
	}
	a.highlighted = index
}

// showHelp displays the help modal view
func (a *App) showHelp() {
	a.showModal(a.helpView.GetContainer(), 64, 30)
	a.helpView.Show()
}

// showCollections displays the collections modal view
func (a *App) showCollections() {
	a.showModal(a.collectionsView.GetContainer(), 70, 16)
	a.collectionsView.Show()
}
