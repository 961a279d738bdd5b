package board

import "time"

// EventKind names a notification sent to board listeners.
type EventKind string

const (
	EventCardUpdated   EventKind = "card-updated"
	EventBoardSaved    EventKind = "board-saved"
	EventForceRerender EventKind = "force-rerender"
)

// Event tells views to re-read the board. It carries no board data.
type Event struct {
	Kind      EventKind
	BoardID   string
	CardID    string
	Timestamp time.Time
}

// Subscribe registers fn for every event until the returned function is
// called. Listeners run on the goroutine that caused the event and must
// not call back into mutating Store methods.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) emit(kind EventKind, boardID, cardID string) {
	ev := Event{Kind: kind, BoardID: boardID, CardID: cardID, Timestamp: s.sync.Now()}

	s.listenersMu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
