package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type shortcut struct {
	keys   string
	action string
}

type shortcutGroup struct {
	title string
	items []shortcut
}

var shortcutGroups = []shortcutGroup{
	{"Transport", []shortcut{
		{"Space", "play / pause"},
		{"Enter", "play highlighted track"},
		{"n  p", "next / previous track"},
		{"→ l  ← h", "seek ±10s"},
		{"+  -", "volume"},
		{"m", "mute"},
		{"s", "play mode: sequential → repeat one → shuffle"},
	}},
	{"Collection", []shortcut{
		{"↑  ↓", "move cursor"},
		{"J  K", "page down / up"},
		{"gg  G", "jump to first / last track"},
		{"]", "fetch next catalog page"},
		{"d  Del", "drop track from collection"},
		{"/", "search catalog"},
		{"c", "switch collection"},
	}},
	{"Window", []shortcut{
		{"?", "toggle this list"},
		{"Esc", "close panel, clear search, or quit"},
		{"Ctrl+C", "quit"},
	}},
}

// HelpView lists the key bindings in a two-column table.
type HelpView struct {
	app      *App
	frame    *tview.Frame
	table    *tview.Table
	isActive bool
}

func NewHelpView(app *App) *HelpView {
	hv := &HelpView{app: app, table: newShortcutTable(shortcutGroups)}

	hv.frame = tview.NewFrame(hv.table).
		SetBorders(0, 0, 1, 1, 1, 1).
		AddText("naviplay key bindings", true, tview.AlignCenter, tcell.ColorLightCyan).
		AddText("Esc or ? to return", false, tview.AlignRight, tcell.ColorGray)
	hv.frame.SetBorder(true).SetBorderColor(tcell.ColorLightCyan)

	return hv
}

// newShortcutTable renders each group as a bold heading row followed by its
// key/action rows, with a blank row between groups.
func newShortcutTable(groups []shortcutGroup) *tview.Table {
	table := tview.NewTable().SetSelectable(false, false)
	heading := tcell.StyleDefault.Foreground(tcell.ColorLightCyan).Attributes(tcell.AttrBold)
	keyStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)

	row := 0
	for i, g := range groups {
		if i > 0 {
			row++
		}
		table.SetCell(row, 0, tview.NewTableCell(g.title).SetStyle(heading))
		row++
		for _, s := range g.items {
			table.SetCell(row, 0, tview.NewTableCell(" "+s.keys).SetStyle(keyStyle).SetAlign(tview.AlignRight))
			table.SetCell(row, 1, tview.NewTableCell("  "+s.action).SetExpansion(1))
			row++
		}
	}
	return table
}

func (hv *HelpView) Show() {
	hv.isActive = true
	hv.table.ScrollToBeginning()
	hv.app.tviewApp.SetFocus(hv.table)
}

func (hv *HelpView) Close() {
	hv.isActive = false
	hv.app.closeModal()
}

func (hv *HelpView) IsActive() bool {
	return hv.isActive
}

// GetContainer returns the framed table for showModal.
func (hv *HelpView) GetContainer() tview.Primitive {
	return hv.frame
}
