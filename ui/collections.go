package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
	"github.com/yhkl-dev/naviplay/playlist"
)

// CollectionsView lists the loaded collections and switches between them
type CollectionsView struct {
	app         *App
	container   *tview.Flex
	table       *tview.Table
	collections []playlist.Collection
	isActive    bool
}

// NewCollectionsView creates a new collections view
func NewCollectionsView(app *App) *CollectionsView {
	cv := &CollectionsView{
		app: app,
	}

	cv.table = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)

	headerStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow).Attributes(tcell.AttrBold)
	cv.table.SetCell(0, 0, tview.NewTableCell("#").SetStyle(headerStyle).SetSelectable(false))
	cv.table.SetCell(0, 1, tview.NewTableCell("Name").SetStyle(headerStyle).SetSelectable(false))
	cv.table.SetCell(0, 2, tview.NewTableCell("Songs").SetStyle(headerStyle).SetSelectable(false))
	cv.table.SetCell(0, 3, tview.NewTableCell("Updated").SetStyle(headerStyle).SetSelectable(false))

	cv.table.SetSelectedFunc(func(row, column int) {
		if row <= 0 || row > len(cv.collections) {
			return
		}
		id := cv.collections[row-1].ID
		if err := cv.app.engine.ActivateCollection(id); err != nil {
			log.Warn().Err(err).Str("collection", id).Msg("activate collection")
		}
		cv.Close()
	})

	cv.container = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(cv.table, 0, 1, true)

	cv.container.SetBorder(true).
		SetTitle(" Collections (ENTER to switch, ESC/c to close) ").
		SetBorderColor(tcell.NewHexColor(0x00bcd4))

	return cv
}

// Show displays the collections view
func (cv *CollectionsView) Show() {
	cv.isActive = true
	cv.refresh()
	cv.app.tviewApp.SetFocus(cv.table)
}

// Close hides the collections view
func (cv *CollectionsView) Close() {
	cv.isActive = false
	cv.app.closeModal()
}

// IsActive returns whether the collections view is active
func (cv *CollectionsView) IsActive() bool {
	return cv.isActive
}

// GetContainer returns the collections view container
func (cv *CollectionsView) GetContainer() *tview.Flex {
	return cv.container
}

// refresh reloads the table from the playlist manager
func (cv *CollectionsView) refresh() {
	for i := cv.table.GetRowCount() - 1; i > 0; i-- {
		cv.table.RemoveRow(i)
	}

	pl := cv.app.engine.Playlist()
	cv.collections = pl.Collections()
	activeID := pl.ActiveID()

	if len(cv.collections) == 0 {
		cv.table.SetCell(1, 0, tview.NewTableCell("No collections loaded").
			SetAlign(tview.AlignCenter).
			SetExpansion(4).
			SetTextColor(tcell.ColorGray))
		return
	}

	rowStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)

	for i, c := range cv.collections {
		row := i + 1
		nameStyle := rowStyle
		if c.ID == activeID {
			nameStyle = rowStyle.Foreground(tcell.ColorYellow)
		}

		cv.table.SetCell(row, 0,
			tview.NewTableCell(fmt.Sprintf("%d", row)).
				SetStyle(rowStyle.Foreground(tcell.ColorLightGreen)).
				SetAlign(tview.AlignRight))

		cv.table.SetCell(row, 1,
			tview.NewTableCell(c.Name).
				SetStyle(nameStyle).
				SetExpansion(2))

		cv.table.SetCell(row, 2,
			tview.NewTableCell(fmt.Sprintf("%d", len(c.Items))).
				SetStyle(rowStyle.Foreground(tcell.ColorGray)).
				SetAlign(tview.AlignRight))

		cv.table.SetCell(row, 3,
			tview.NewTableCell(c.UpdatedAt.Format("15:04:05")).
				SetStyle(rowStyle.Foreground(tcell.ColorGray)).
				SetAlign(tview.AlignRight))
	}

	cv.table.SetSelectedStyle(tcell.StyleDefault.
		Background(tcell.ColorDarkCyan).
		Foreground(tcell.ColorWhite))
}
