// Package sync keeps a board's in-memory state and its stored document in
// step. Local changes are written after a debounce, escalated for moves
// and important edits, and spaced by a throttle floor. Inbound snapshots
// are filtered so that the echo of a local write never overwrites newer
// local state.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/kanban-board/internal/clock"
	"github.com/nhle/kanban-board/internal/config"
	"github.com/nhle/kanban-board/internal/document"
	"github.com/nhle/kanban-board/internal/fingerprint"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/store"
)

// writeTimeout is the maximum time allowed for a single background write.
const writeTimeout = 30 * time.Second

// ErrNotAttached is returned when a save is requested before a board has
// been opened.
var ErrNotAttached = errors.New("no board attached")

// WriteHint describes what a mutation touched beyond what fingerprints
// can see. Fields accumulate until the next successful write.
type WriteHint struct {
	// CardIDs are cards whose tracking fields changed (moves, archive,
	// restore). Content changes are found by fingerprint.
	CardIDs []string

	// DeletedCardIDs are cards removed from the active card map.
	DeletedCardIDs []string

	Columns  bool
	Archived bool
	Users    bool

	// Priority escalates the write like a move does.
	Priority bool

	// Force writes the full board immediately, bypassing debounce and
	// throttle.
	Force bool
}

func (h WriteHint) merge(o WriteHint) WriteHint {
	return WriteHint{
		CardIDs:        union(h.CardIDs, o.CardIDs),
		DeletedCardIDs: union(h.DeletedCardIDs, o.DeletedCardIDs),
		Columns:        h.Columns || o.Columns,
		Archived:       h.Archived || o.Archived,
		Users:          h.Users || o.Users,
	}
}

func (h WriteHint) empty() bool {
	return len(h.CardIDs) == 0 && len(h.DeletedCardIDs) == 0 && !h.Columns && !h.Archived && !h.Users
}

// Status is the engine's save state as shown to the user.
type Status struct {
	Saving            bool
	HasUnsavedChanges bool
	LastError         string
	LastSavedAt       time.Time
	PendingWrite      bool
}

// SaveResultMsg is a tea.Msg sent when a write completes.
type SaveResultMsg struct {
	BoardID string
	Seq     int64
	Full    bool
	SavedAt time.Time
	Err     error
}

// Engine schedules writes of one board at a time and filters the
// snapshots that come back.
type Engine struct {
	docs     store.DocumentStore
	resolver *Resolver
	clock    clock.Clock
	log      *slog.Logger
	cfg      config.SyncConfig
	user     model.User
	shared   bool
	writerID string

	// writeMu serializes writes so that sequence numbers reach the store
	// in order.
	writeMu gosync.Mutex

	mu          gosync.Mutex
	ref         Ref
	path        string
	current     *model.Board
	persisted   fingerprint.Set
	pending     WriteHint
	dirty       bool
	timer       clock.Timer
	timerGen    uint64
	lastWriteAt time.Time
	ignoreUntil time.Time
	seq         int64
	onRemote    func(*model.Board)
	unsubscribe func()
	stopRefresh chan struct{}
	status      Status
	closed      bool

	results chan SaveResultMsg
	done    chan struct{}
}

func contextWithWriteTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), writeTimeout)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for every timer the engine uses.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSettings overrides the timing settings. Non-positive durations keep
// their defaults.
func WithSettings(cfg config.SyncConfig) Option {
	return func(e *Engine) { e.cfg = withDefaults(cfg) }
}

// WithUser sets the identity stamped on writes and used to resolve boards.
func WithUser(u model.User) Option {
	return func(e *Engine) { e.user = u }
}

// WithWriterID fixes the writer id instead of generating one.
func WithWriterID(id string) Option {
	return func(e *Engine) { e.writerID = id }
}

// New creates an engine writing through docs.
func New(docs store.DocumentStore, resolver *Resolver, opts ...Option) *Engine {
	if resolver == nil {
		resolver = NewResolver(docs)
	}
	e := &Engine{
		docs:     docs,
		resolver: resolver,
		clock:    clock.Real(),
		log:      slog.Default(),
		cfg:      config.DefaultSync(),
		writerID: uuid.NewString(),
		results:  make(chan SaveResultMsg, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func withDefaults(cfg config.SyncConfig) config.SyncConfig {
	def := config.DefaultSync()
	pick := func(v, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return v
	}
	return config.SyncConfig{
		Debounce:         pick(cfg.Debounce, def.Debounce),
		PriorityDelay:    pick(cfg.PriorityDelay, def.PriorityDelay),
		Throttle:         pick(cfg.Throttle, def.Throttle),
		IgnoreWindow:     pick(cfg.IgnoreWindow, def.IgnoreWindow),
		RecentMoveWindow: pick(cfg.RecentMoveWindow, def.RecentMoveWindow),
		WatchInterval:    pick(cfg.WatchInterval, def.WatchInterval),
		RefreshInterval:  pick(cfg.RefreshInterval, def.RefreshInterval),
	}
}

// WriterID identifies this engine's writes in stored documents.
func (e *Engine) WriterID() string {
	return e.writerID
}

// User returns the identity the engine writes as.
func (e *Engine) User() model.User {
	return e.user
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Open resolves ref and reads its document. Any previously attached board
// is detached first. A missing owned board yields an error wrapping
// store.ErrNotFound; a missing shared board is a ResolveError.
func (e *Engine) Open(ctx context.Context, ref Ref) (*model.Board, error) {
	if err := e.Detach(ctx); err != nil {
		e.log.Warn("saving previous board before switch", "error", err)
	}

	path, err := e.resolver.Resolve(ctx, ref, e.user)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.ref = ref
	e.path = path
	e.shared = ref.Shared
	e.mu.Unlock()

	data, err := e.docs.Read(ctx, path)
	if errors.Is(err, store.ErrNotFound) && ref.Shared {
		e.resolver.Forget(ref.BoardID)
		return nil, &ResolveError{BoardID: ref.BoardID, Pointer: path, Message: "shared board document not found", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("reading board %s: %w", ref.BoardID, err)
	}
	return document.DecodeBoard(ref.BoardID, data, e.clock.Now()), nil
}

// Attach makes board the persisted baseline, so its first render is not
// a save, and starts following remote changes. A non-empty hint names
// changes made while loading (such as adding the current user) and
// schedules their write. onRemote receives every snapshot that passes
// the filters of HandleSnapshot.
func (e *Engine) Attach(ctx context.Context, board *model.Board, hint WriteHint, onRemote func(*model.Board)) error {
	e.mu.Lock()
	if e.path == "" {
		e.mu.Unlock()
		return ErrNotAttached
	}
	e.current = board
	e.persisted = fingerprint.Of(board)
	e.pending = WriteHint{}.merge(hint)
	e.dirty = !e.pending.empty()
	e.onRemote = onRemote
	if e.dirty {
		e.scheduleLocked(e.clock.Now(), e.cfg.Debounce)
	}
	e.mu.Unlock()

	return e.follow(ctx)
}

// Create writes board as a new document with a full, non-merge write and
// then attaches it.
func (e *Engine) Create(ctx context.Context, board *model.Board, onRemote func(*model.Board)) error {
	e.writeMu.Lock()
	e.mu.Lock()
	if e.path == "" {
		e.mu.Unlock()
		e.writeMu.Unlock()
		return ErrNotAttached
	}
	now := e.clock.Now()
	e.current = board
	e.onRemote = onRemote
	e.pending = WriteHint{}
	data := document.EncodeBoard(board)
	e.seq++
	seq := e.seq
	e.stampLocked(data, now, seq)
	e.markWrittenLocked(now)
	path := e.path
	e.mu.Unlock()

	err := e.docs.Write(ctx, path, data, store.WriteOptions{})
	e.finishWrite(board, fingerprint.Of(board), WriteHint{}, "create", seq, now, err)
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("creating board %s: %w", board.ID, err)
	}
	return e.follow(ctx)
}

func (e *Engine) follow(ctx context.Context) error {
	e.mu.Lock()
	path := e.path
	shared := e.shared
	e.mu.Unlock()

	// The subscription outlives ctx; Detach ends it.
	unsubscribe, err := e.docs.Subscribe(context.Background(), path, e.receive)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", path, err)
	}

	e.mu.Lock()
	e.unsubscribe = unsubscribe
	if shared {
		e.stopRefresh = make(chan struct{})
		go e.refreshLoop(path, e.clock.NewTicker(e.cfg.RefreshInterval), e.stopRefresh)
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) receive(snap store.Snapshot) {
	board, ok := e.HandleSnapshot(snap)
	if !ok {
		return
	}
	e.mu.Lock()
	fn := e.onRemote
	e.mu.Unlock()
	if fn != nil {
		fn(board)
	}
}

// Observe records the latest local board after a mutation and schedules
// a write when it differs from what was last persisted.
func (e *Engine) Observe(board *model.Board, hint WriteHint) {
	e.mu.Lock()
	if e.closed || e.path == "" {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	e.current = board
	e.pending = e.pending.merge(hint)

	moved := board.LastMoveTimestamp
	if !moved.IsZero() {
		if until := moved.Add(e.cfg.IgnoreWindow); until.After(e.ignoreUntil) {
			e.ignoreUntil = until
		}
	}

	fp := fingerprint.Of(board)
	if !hint.Force && fp.Equal(e.persisted) && e.pending.empty() {
		e.dirty = false
		e.cancelTimerLocked()
		e.mu.Unlock()
		return
	}
	e.dirty = true

	if hint.Force {
		e.cancelTimerLocked()
		e.mu.Unlock()
		go func() {
			ctx, cancel := contextWithWriteTimeout()
			defer cancel()
			_ = e.save(ctx, true)
		}()
		return
	}

	delay := e.cfg.Debounce
	recentMove := !moved.IsZero() && now.Sub(moved) < e.cfg.RecentMoveWindow
	if hint.Priority || recentMove || fingerprint.HasImportantChange(fp.Cards, e.persisted.Cards) {
		delay = e.cfg.PriorityDelay
	}
	e.scheduleLocked(now, delay)
	e.mu.Unlock()
}

// scheduleLocked replaces any pending write with one due after delay,
// pushed back to respect the throttle floor.
func (e *Engine) scheduleLocked(now time.Time, delay time.Duration) {
	if e.timer != nil && e.timer.Stop() {
		writesCoalesced.Inc()
	}
	if !e.lastWriteAt.IsZero() {
		if wait := e.cfg.Throttle - now.Sub(e.lastWriteAt); wait > delay {
			delay = wait
		}
	}
	e.timerGen++
	gen := e.timerGen
	e.timer = e.clock.AfterFunc(delay, func() { e.fire(gen) })
}

func (e *Engine) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

func (e *Engine) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.timerGen {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.mu.Unlock()

	ctx, cancel := contextWithWriteTimeout()
	defer cancel()
	_ = e.save(ctx, false)
}

// ForceSave writes the full board now, bypassing debounce and throttle.
// The write still merges, so fields unknown to this client survive.
func (e *Engine) ForceSave(ctx context.Context) error {
	return e.save(ctx, true)
}

func (e *Engine) save(ctx context.Context, force bool) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	if e.path == "" || e.current == nil {
		e.mu.Unlock()
		return ErrNotAttached
	}

	now := e.clock.Now()
	if !force && !e.lastWriteAt.IsZero() && now.Sub(e.lastWriteAt) < e.cfg.Throttle {
		// Too soon: stay dirty and retry once the floor expires.
		if e.timer == nil {
			e.scheduleLocked(now, e.cfg.PriorityDelay)
		}
		e.mu.Unlock()
		return nil
	}

	board := e.current
	fp := fingerprint.Of(board)
	hint := e.pending
	if !force && fp.Equal(e.persisted) && hint.empty() {
		e.dirty = false
		e.mu.Unlock()
		return nil
	}

	kind := "diff"
	var data map[string]any
	if force {
		kind = "full"
		data = e.fullWriteLocked(board, fp)
	} else {
		data = e.diffWriteLocked(board, fp, hint)
	}

	e.seq++
	seq := e.seq
	e.stampLocked(data, now, seq)
	e.pending = WriteHint{}
	e.cancelTimerLocked()
	e.markWrittenLocked(now)
	path := e.path
	e.mu.Unlock()

	start := time.Now()
	err := e.docs.Write(ctx, path, data, store.WriteOptions{Merge: true})
	writeDuration.Observe(time.Since(start).Seconds())

	e.finishWrite(board, fp, hint, kind, seq, now, err)
	if err != nil {
		return fmt.Errorf("saving board %s: %w", board.ID, err)
	}
	return nil
}

func (e *Engine) markWrittenLocked(now time.Time) {
	e.lastWriteAt = now
	e.status.Saving = true
	if until := now.Add(e.cfg.IgnoreWindow); until.After(e.ignoreUntil) {
		e.ignoreUntil = until
	}
}

// finishWrite records the outcome of a write. A failure keeps local state
// and the unwritten hints; nothing is rolled back.
func (e *Engine) finishWrite(board *model.Board, fp fingerprint.Set, hint WriteHint, kind string, seq int64, at time.Time, err error) {
	e.mu.Lock()
	e.status.Saving = false
	result := SaveResultMsg{BoardID: board.ID, Seq: seq, Full: kind != "diff", Err: err}
	if err != nil {
		writesTotal.WithLabelValues(kind, "error").Inc()
		e.pending = hint.merge(e.pending)
		e.dirty = true
		e.status.HasUnsavedChanges = true
		e.status.LastError = err.Error()
		e.log.Error("saving board", "board", board.ID, "seq", seq, "kind", kind, "error", err)
	} else {
		writesTotal.WithLabelValues(kind, "ok").Inc()
		e.persisted = fp
		e.dirty = e.current != board || !e.pending.empty()
		e.status.HasUnsavedChanges = false
		e.status.LastError = ""
		e.status.LastSavedAt = at
		result.SavedAt = at
		e.log.Debug("saved board", "board", board.ID, "seq", seq, "kind", kind)
	}
	e.mu.Unlock()

	e.emit(result)
}

func (e *Engine) stampLocked(data map[string]any, now time.Time, seq int64) {
	data[document.FieldUpdatedAt] = document.EncodeTime(now)
	data[document.FieldLastEditedByID] = e.user.ID
	data[document.FieldLastEditedByEmail] = e.user.Email
	data[document.FieldLastEditedBySharedUser] = e.shared
	data[document.FieldWriterID] = e.writerID
	data[document.FieldWriteSeq] = seq
}

// diffWriteLocked builds a merge write holding only what changed since
// the last persisted state.
func (e *Engine) diffWriteLocked(board *model.Board, fp fingerprint.Set, hint WriteHint) map[string]any {
	prev := e.persisted
	data := map[string]any{}

	if fp.Title != prev.Title {
		data[document.FieldTitle] = board.Title
	}
	if fp.Columns != prev.Columns || hint.Columns {
		data[document.FieldColumns] = document.EncodeColumns(board.Columns)
	}
	if fp.Archived != prev.Archived || hint.Archived {
		data[document.FieldArchivedCards] = document.EncodeCards(board.ArchivedCards)
	}
	if hint.Users {
		data[document.FieldUsers] = document.EncodeUsers(board.Users)
	}

	changed, removed := fp.ChangedCards(prev)
	for _, id := range union(changed, hint.CardIDs) {
		if card, ok := board.Cards[id]; ok {
			data[document.CardField(id)] = cardValue(card)
		}
	}
	for _, id := range union(removed, hint.DeletedCardIDs) {
		if _, ok := board.Cards[id]; !ok {
			data[document.CardField(id)] = store.DeleteField
		}
	}
	return data
}

// fullWriteLocked builds a merge write of the whole board. Cards removed
// since the last persisted state are deleted explicitly because a merge
// would otherwise keep them.
func (e *Engine) fullWriteLocked(board *model.Board, fp fingerprint.Set) map[string]any {
	data := document.EncodeBoard(board)
	cards := data[document.FieldCards].(map[string]any)
	for id, card := range board.Cards {
		cards[id] = cardValue(card)
	}
	_, removed := fp.ChangedCards(e.persisted)
	for _, id := range union(removed, e.pending.DeletedCardIDs) {
		if _, ok := board.Cards[id]; !ok {
			cards[id] = store.DeleteField
		}
	}
	return data
}

// cardValue encodes a card for a merge write, clearing optional fields
// the card no longer has.
func cardValue(card model.Card) map[string]any {
	m := document.EncodeCard(card)
	for _, key := range []string{"codebaseContext", "devTimeEstimate", "timeEstimate"} {
		if _, ok := m[key]; !ok {
			m[key] = store.DeleteField
		}
	}
	return m
}

// HandleSnapshot decides whether an inbound snapshot should replace local
// state. It returns the decoded board when it should. Snapshots are
// discarded when they echo one of this engine's writes, arrive inside the
// ignore window that follows a local write or move, arrive while local
// changes are waiting to be written, or carry nothing new.
func (e *Engine) HandleSnapshot(snap store.Snapshot) (*model.Board, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.path == "" || snap.Path != e.path {
		return nil, false
	}
	if !snap.Exists {
		snapshotsTotal.WithLabelValues(outcomeMissing).Inc()
		e.log.Warn("board document disappeared", "path", snap.Path)
		return nil, false
	}

	meta := document.DecodeMeta(snap.Data)
	if meta.WriterID == e.writerID && meta.WriteSeq <= e.seq {
		snapshotsTotal.WithLabelValues(outcomeEcho).Inc()
		return nil, false
	}

	now := e.clock.Now()
	if now.Before(e.ignoreUntil) {
		snapshotsTotal.WithLabelValues(outcomeIgnored).Inc()
		e.log.Debug("ignoring snapshot inside ignore window", "path", snap.Path, "writer", meta.WriterID)
		return nil, false
	}
	if e.dirty {
		snapshotsTotal.WithLabelValues(outcomePending).Inc()
		return nil, false
	}

	incoming := document.DecodeBoard(e.ref.BoardID, snap.Data, now)
	fp := fingerprint.Of(incoming)
	if e.current != nil && fp.Equal(fingerprint.Of(e.current)) && slices.Equal(incoming.Users, e.current.Users) {
		snapshotsTotal.WithLabelValues(outcomeUnchanged).Inc()
		return nil, false
	}

	snapshotsTotal.WithLabelValues(outcomeApplied).Inc()
	e.current = incoming
	e.persisted = fp
	return incoming, true
}

// refreshLoop periodically re-reads a shared board and retries a failed
// save.
func (e *Engine) refreshLoop(path string, ticker clock.Ticker, stop chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			e.refresh(path)
		}
	}
}

func (e *Engine) refresh(path string) {
	ctx, cancel := contextWithWriteTimeout()
	defer cancel()

	e.mu.Lock()
	unsaved := e.status.HasUnsavedChanges
	e.mu.Unlock()
	if unsaved {
		if err := e.save(ctx, true); err != nil {
			return
		}
	}

	data, err := e.docs.Read(ctx, path)
	if err != nil {
		e.log.Warn("refreshing shared board", "path", path, "error", err)
		return
	}
	e.receive(store.Snapshot{Path: path, Data: data, Exists: true})
}

// Status returns the current save state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	s.PendingWrite = e.timer != nil
	return s
}

// Detach saves pending changes of the attached board and stops following
// it.
func (e *Engine) Detach(ctx context.Context) error {
	e.mu.Lock()
	dirty := e.dirty && e.current != nil && e.path != ""
	e.mu.Unlock()

	var err error
	if dirty {
		err = e.ForceSave(ctx)
	}

	e.mu.Lock()
	e.cancelTimerLocked()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.stopRefresh != nil {
		close(e.stopRefresh)
		e.stopRefresh = nil
	}
	e.path = ""
	e.current = nil
	e.onRemote = nil
	e.persisted = fingerprint.Set{}
	e.pending = WriteHint{}
	e.dirty = false
	e.mu.Unlock()
	return err
}

// Close detaches the board and stops delivering results.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Detach(ctx)

	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()
	return err
}

// emit sends a result without blocking; results are dropped when nobody
// is reading.
func (e *Engine) emit(msg SaveResultMsg) {
	select {
	case e.results <- msg:
	default:
	}
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := append([]string(nil), a...)
	for _, id := range b {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
