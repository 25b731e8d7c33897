package ui

import (
	"github.com/gdamore/tcell/v2"
)

// KeyAction represents an action that can be triggered by keybindings
type KeyAction struct {
	name    string
	handler func()
}

// KeyBindingManager manages all keybindings and dispatches events
type KeyBindingManager struct {
	bindings  map[tcell.Key]KeyAction // special key -> action mapping
	runeMap   map[rune]KeyAction      // rune -> action mapping
	sequences map[string]KeyAction    // two-rune sequences such as "gg"
	prefixes  map[rune]bool
	pending   rune
}

// NewKeyBindingManager creates a new key binding manager
func NewKeyBindingManager() *KeyBindingManager {
	return &KeyBindingManager{
		bindings:  make(map[tcell.Key]KeyAction),
		runeMap:   make(map[rune]KeyAction),
		sequences: make(map[string]KeyAction),
		prefixes:  make(map[rune]bool),
	}
}

// RegisterKeyBinding registers an action for a set of special keys and runes
func (km *KeyBindingManager) RegisterKeyBinding(action KeyAction, keys []tcell.Key, runes []rune) {
	for _, key := range keys {
		km.bindings[key] = action
	}
	for _, r := range runes {
		km.runeMap[r] = action
	}
}

// RegisterSequence registers a two-rune sequence. The first rune becomes a
// prefix and no longer fires a single-rune binding of its own.
func (km *KeyBindingManager) RegisterSequence(action KeyAction, seq string) {
	runes := []rune(seq)
	if len(runes) != 2 {
		return
	}
	km.sequences[seq] = action
	km.prefixes[runes[0]] = true
}

// HandleKey handles a keyboard event and returns true if it was consumed
func (km *KeyBindingManager) HandleKey(event *tcell.EventKey) bool {
	if event.Key() != tcell.KeyRune {
		km.pending = 0
		if action, ok := km.bindings[event.Key()]; ok {
			action.handler()
			return true
		}
		return false
	}

	r := event.Rune()

	if km.pending != 0 {
		seq := string([]rune{km.pending, r})
		km.pending = 0
		if action, ok := km.sequences[seq]; ok {
			action.handler()
			return true
		}
		// not a sequence, treat the rune on its own
	}

	if km.prefixes[r] {
		km.pending = r
		return true
	}

	if action, ok := km.runeMap[r]; ok {
		action.handler()
		return true
	}
	return false
}

// Pending reports whether a sequence prefix is waiting for its second rune.
func (km *KeyBindingManager) Pending() bool {
	return km.pending != 0
}

// ResetPending resets the pending key sequence
func (km *KeyBindingManager) ResetPending() {
	km.pending = 0
}
