// Package playlist keeps named track collections and answers which track
// comes next under the active play mode.
package playlist

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/yhkl-dev/naviplay/domain"
)

var (
	ErrNoCollection    = errors.New("no such collection")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Collection is a named, ordered list of tracks. Duplicate locators are
// allowed.
type Collection struct {
	ID        string
	Name      string
	Items     []domain.Track
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Collection) clone() Collection {
	out := *c
	out.Items = append([]domain.Track(nil), c.Items...)
	return out
}

// Removal describes the outcome of RemoveAt.
type Removal struct {
	// Empty is set when the active collection has no tracks left.
	Empty bool
	// WasCurrent is set when the removed track was the current one.
	WasCurrent bool
	// NewIndex and Replacement name the track that should become current
	// when WasCurrent is set. NewIndex is -1 otherwise.
	NewIndex    int
	Replacement domain.Track
}

// Manager owns the collections, the active collection, the play mode and
// the shuffle order. The current track is never stored here: callers pass
// its locator and the index is found by lookup, so edits to a collection
// cannot desynchronize it.
type Manager struct {
	mu sync.Mutex

	collections []*Collection
	activeID    string
	mode        domain.PlayMode

	order  []int
	cursor int

	now func() time.Time
}

func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// SetCollection creates or replaces a collection and makes it active.
func (m *Manager) SetCollection(id, name string, items []domain.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	items = append([]domain.Track(nil), items...)
	if c := m.find(id); c != nil {
		c.Name = name
		c.Items = items
		c.UpdatedAt = now
	} else {
		m.collections = append(m.collections, &Collection{
			ID:        id,
			Name:      name,
			Items:     items,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	m.activeID = id
	m.invalidate()
}

// AppendTracks adds items to the end of the collection id.
func (m *Manager) AppendTracks(id string, items []domain.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.find(id)
	if c == nil {
		return ErrNoCollection
	}
	c.Items = append(c.Items, items...)
	c.UpdatedAt = m.now()
	if id == m.activeID {
		m.invalidate()
	}
	return nil
}

// SetActive switches the active collection.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.find(id) == nil {
		return ErrNoCollection
	}
	if id != m.activeID {
		m.activeID = id
		m.invalidate()
	}
	return nil
}

// ActiveID returns the id of the active collection ("" if none).
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns a copy of the active collection.
func (m *Manager) Active() (Collection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(m.activeID)
	if c == nil {
		return Collection{}, false
	}
	return c.clone(), true
}

// Collections returns copies of all collections in creation order.
func (m *Manager) Collections() []Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Collection, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, c.clone())
	}
	return out
}

// Tracks returns a copy of the active collection's tracks.
func (m *Manager) Tracks() []domain.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Track(nil), m.items()...)
}

// Len returns the length of the active collection.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items())
}

// Track returns the track at index in the active collection.
func (m *Manager) Track(index int) (domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(m.activeID) == nil {
		return domain.Track{}, ErrNoCollection
	}
	items := m.items()
	if index < 0 || index >= len(items) {
		return domain.Track{}, ErrIndexOutOfRange
	}
	return items[index], nil
}

// Mode returns the play mode.
func (m *Manager) Mode() domain.PlayMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetPlayMode changes the play mode. Entering shuffle discards the old
// order so the next use builds a fresh one around the current track.
func (m *Manager) SetPlayMode(mode domain.PlayMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	if mode == domain.Shuffle {
		m.invalidate()
	}
}

// CurrentIndex returns the index of the first track whose locator is
// currentURL, or -1.
func (m *Manager) CurrentIndex(currentURL string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOf(currentURL)
}

// HasNext reports whether a later track exists in list order.
func (m *Manager) HasNext(currentURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items())
	idx := m.indexOf(currentURL)
	if idx == -1 {
		return n > 0
	}
	return idx < n-1
}

// HasPrevious reports whether an earlier track exists in list order.
func (m *Manager) HasPrevious(currentURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(currentURL)
	if idx == -1 {
		return len(m.items()) > 0
	}
	return idx > 0
}

// NextIndex returns the index to play after the current track and, in
// shuffle mode, advances the cursor. ok is false for an empty collection.
func (m *Manager) NextIndex(currentURL string) (index int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step(currentURL, 1, true)
}

// PrevIndex returns the index to play before the current track and, in
// shuffle mode, moves the cursor back.
func (m *Manager) PrevIndex(currentURL string) (index int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step(currentURL, -1, true)
}

// PeekNext returns what NextIndex would return without moving the cursor.
func (m *Manager) PeekNext(currentURL string) (index int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step(currentURL, 1, false)
}

func (m *Manager) step(currentURL string, dir int, move bool) (int, bool) {
	n := len(m.items())
	if n == 0 {
		return 0, false
	}
	idx := m.indexOf(currentURL)

	switch {
	case m.mode == domain.RepeatOne && idx >= 0:
		return idx, true

	case m.mode == domain.Shuffle:
		m.ensureShuffle(idx)
		cursor := m.cursor
		// Follow a track picked directly by the user. Locators are compared
		// rather than indices so a duplicate under the cursor is not mistaken
		// for a jump back to its first occurrence.
		if idx >= 0 && m.items()[m.order[cursor]].URL != currentURL {
			for pos, v := range m.order {
				if v == idx {
					cursor = pos
					break
				}
			}
		}
		cursor = (cursor + dir + len(m.order)) % len(m.order)
		if move {
			m.cursor = cursor
		}
		return m.order[cursor], true

	case dir > 0:
		if idx == -1 {
			return 0, true
		}
		return (idx + 1) % n, true

	default:
		if idx <= 0 {
			return 0, true
		}
		return idx - 1, true
	}
}

// RemoveAt deletes the track at index from the active collection.
func (m *Manager) RemoveAt(index int, currentURL string) (Removal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.find(m.activeID)
	if c == nil {
		return Removal{}, ErrNoCollection
	}
	if index < 0 || index >= len(c.Items) {
		return Removal{}, ErrIndexOutOfRange
	}

	wasCurrent := m.indexOf(currentURL) == index
	c.Items = append(c.Items[:index], c.Items[index+1:]...)
	c.UpdatedAt = m.now()
	m.invalidate()

	if len(c.Items) == 0 {
		return Removal{Empty: true, WasCurrent: wasCurrent, NewIndex: -1}, nil
	}
	if !wasCurrent {
		return Removal{NewIndex: -1}, nil
	}
	newIndex := min(index, len(c.Items)-1)
	return Removal{
		WasCurrent:  true,
		NewIndex:    newIndex,
		Replacement: c.Items[newIndex],
	}, nil
}

// Clear empties the active collection.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.find(m.activeID)
	if c == nil {
		return ErrNoCollection
	}
	c.Items = nil
	c.UpdatedAt = m.now()
	m.invalidate()
	return nil
}

// ShuffleOrder returns a copy of the shuffle order and the cursor,
// building the order first if it is stale.
func (m *Manager) ShuffleOrder(currentURL string) ([]int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items()) == 0 {
		return nil, 0
	}
	m.ensureShuffle(m.indexOf(currentURL))
	return append([]int(nil), m.order...), m.cursor
}

// ensureShuffle rebuilds the order when it no longer covers the active
// collection. The current track is reinserted at the cursor's previous
// position so its neighbours in the history stay where they were.
func (m *Manager) ensureShuffle(current int) {
	n := len(m.items())
	if !m.stale(n) {
		return
	}
	prevPos := min(max(m.cursor, 0), max(n-1, 0))

	if current < 0 {
		m.order = rand.Perm(n)
		m.cursor = 0
		return
	}

	others := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != current {
			others = append(others, i)
		}
	}
	rand.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })

	pos := min(prevPos, len(others))
	order := make([]int, 0, n)
	order = append(order, others[:pos]...)
	order = append(order, current)
	order = append(order, others[pos:]...)
	m.order = order
	m.cursor = pos
}

func (m *Manager) stale(n int) bool {
	if len(m.order) != n {
		return true
	}
	for _, v := range m.order {
		if v < 0 || v >= n {
			return true
		}
	}
	return false
}

func (m *Manager) invalidate() {
	m.order = nil
}

func (m *Manager) find(id string) *Collection {
	for _, c := range m.collections {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *Manager) items() []domain.Track {
	if c := m.find(m.activeID); c != nil {
		return c.Items
	}
	return nil
}

func (m *Manager) indexOf(url string) int {
	if url == "" {
		return -1
	}
	for i, t := range m.items() {
		if t.URL == url {
			return i
		}
	}
	return -1
}
