package room

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pcollard/wordhall/internal/config"
	"github.com/pcollard/wordhall/internal/game/lexicon"
	"github.com/pcollard/wordhall/internal/game/mode"
	"github.com/pcollard/wordhall/internal/protocol"
)

// Phase is a room's lifecycle position.
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// End reasons not owned by any mode.
const (
	ReasonIdleTimeout    = "idle-timeout"
	ReasonAllPlayersLeft = "all-players-left"
)

// ErrRoomClosed is returned when submitting to a stopped room.
var ErrRoomClosed = errors.New("room closed")

// Result is the final outcome handed to end-of-room consumers (score
// persistence, notifications).
type Result struct {
	RoomID      string
	Mode        string
	Reason      string
	FinalScores []protocol.FinalScore
	Ledger      []LedgerEntry
}

// Info is a point-in-time view of a room published for the registry sweep
// and diagnostics. It is updated by the room loop and read lock-free.
type Info struct {
	RoomID       string
	Phase        Phase
	Players      int
	Seq          uint64
	LastActivity time.Time
	EndedAt      time.Time
	EndReason    string
}

// Room is the authoritative state machine for one shared game. All board,
// session, and sequence mutations happen on the single goroutine consuming
// the command channel; transports and the registry only enqueue.
type Room struct {
	id      string
	cfg     mode.Config
	timing  config.GameConfig
	lexicon *lexicon.Lexicon
	logger  *zap.Logger

	commands  chan command
	done      chan struct{}
	stopped   sync.Once
	endClosed sync.Once
	loopDone  chan struct{}

	// onEnded is invoked once, from the room loop, when the room reaches
	// the ended phase. It must not block; heavy work belongs on the
	// consumer's own goroutine.
	onEnded func(Result)

	// now is the clock source; replaceable in tests.
	now func() time.Time
	// tickInterval drives liveness sweeps and timed-mode expiry.
	tickInterval time.Duration

	info atomic.Pointer[Info]

	// State below is owned by the run loop.
	phase        Phase
	seq          uint64
	board        *Board
	sessions     map[string]*PlayerSession
	joinOrder    []string
	usedWords    map[string]bool
	ledger       Ledger
	strikes      int
	createdAt    time.Time
	lastActivity time.Time
	activatedAt  time.Time
	endedAt      time.Time
	endReason    string
}

// command is a unit of work for the room loop.
type command interface{ apply(r *Room) }

type joinCmd struct {
	playerID string
	name     string
	outbox   *Outbox
}

type leaveCmd struct{ playerID string }

type disconnectCmd struct{ playerID string }

type heartbeatCmd struct{ playerID string }

type startCmd struct{ playerID string }

type snapshotCmd struct{ playerID string }

type moveCmd struct {
	playerID string
	token    string
	position int
}

// New creates a stopped Room. The registry is the only caller; it guards
// against duplicate construction for the same id.
//
// Precondition: cfg must pass Validate; lex and logger must be non-nil.
// Postcondition: Returns a Room ready to Start().
func New(id string, cfg mode.Config, timing config.GameConfig, lex *lexicon.Lexicon, logger *zap.Logger, onEnded func(Result)) *Room {
	r := &Room{
		id:           id,
		cfg:          cfg,
		timing:       timing,
		lexicon:      lex,
		logger:       logger.With(zap.String("room", id), zap.String("mode", string(cfg.Name))),
		commands:     make(chan command, 256),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		onEnded:      onEnded,
		now:          time.Now,
		tickInterval: time.Second,
		phase:        PhaseLobby,
		sessions:     make(map[string]*PlayerSession),
		usedWords:    make(map[string]bool),
	}
	r.createdAt = r.now()
	r.lastActivity = r.createdAt
	r.publishInfo()
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Mode returns the room's mode name.
func (r *Room) Mode() string { return string(r.cfg.Name) }

// Info returns the latest published room view.
func (r *Room) Info() Info {
	return *r.info.Load()
}

// Start launches the room's run loop.
func (r *Room) Start() {
	go r.run()
}

// Stop terminates the run loop and closes every attached session. Safe to
// call more than once.
func (r *Room) Stop() {
	r.stopped.Do(func() { close(r.done) })
	<-r.loopDone
	// Scripted end conditions hold a Lua state per room; close it exactly
	// once, after the run loop can no longer call Check.
	r.endClosed.Do(func() {
		if c, ok := r.cfg.End.(interface{ Close() }); ok {
			c.Close()
		}
	})
}

// Join attaches a player to the room. New players are admitted in lobby and
// active phases; a returning player within the grace window is reattached
// to their existing session with score intact. The response (join_accepted
// or error) is delivered through the outbox.
func (r *Room) Join(playerID, name string, outbox *Outbox) error {
	return r.enqueue(joinCmd{playerID: playerID, name: name, outbox: outbox})
}

// Leave removes a player permanently.
func (r *Room) Leave(playerID string) error {
	return r.enqueue(leaveCmd{playerID: playerID})
}

// Disconnect reports a transport loss; the session enters the grace window.
func (r *Room) Disconnect(playerID string) error {
	return r.enqueue(disconnectCmd{playerID: playerID})
}

// Heartbeat refreshes a session's liveness.
func (r *Room) Heartbeat(playerID string) error {
	return r.enqueue(heartbeatCmd{playerID: playerID})
}

// RequestStart asks for the lobby→active transition.
func (r *Room) RequestStart(playerID string) error {
	return r.enqueue(startCmd{playerID: playerID})
}

// RequestSnapshot sends the requesting player a full state snapshot. Used
// by clients that observe a sequence gap.
func (r *Room) RequestSnapshot(playerID string) error {
	return r.enqueue(snapshotCmd{playerID: playerID})
}

// SubmitMove submits a word claim for a board position.
func (r *Room) SubmitMove(playerID, token string, position int) error {
	return r.enqueue(moveCmd{playerID: playerID, token: token, position: position})
}

func (r *Room) enqueue(c command) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case <-r.done:
		return ErrRoomClosed
	case r.commands <- c:
		return nil
	}
}

// run is the room's single serialization point.
func (r *Room) run() {
	defer close(r.loopDone)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.commands:
			cmd.apply(r)
		case <-ticker.C:
			r.tick()
		case <-r.done:
			r.closeAllSessions()
			r.rejectQueued()
			r.publishInfo()
			return
		}
		r.publishInfo()
	}
}

// rejectQueued drains commands still buffered when the loop exits. A join
// carries an outbox with a pipe goroutine blocked on it; closing the outbox
// releases that reader.
func (r *Room) rejectQueued() {
	for {
		select {
		case cmd := <-r.commands:
			if j, ok := cmd.(joinCmd); ok {
				_ = j.outbox.Close()
			}
		default:
			return
		}
	}
}

func (r *Room) publishInfo() {
	r.info.Store(&Info{
		RoomID:       r.id,
		Phase:        r.phase,
		Players:      r.presentCount(),
		Seq:          r.seq,
		LastActivity: r.lastActivity,
		EndedAt:      r.endedAt,
		EndReason:    r.endReason,
	})
}

// presentCount counts sessions that have not left.
func (r *Room) presentCount() int {
	n := 0
	for _, s := range r.sessions {
		if s.Status != StatusLeft {
			n++
		}
	}
	return n
}

func (r *Room) connectedCount() int {
	n := 0
	for _, s := range r.sessions {
		if s.Connected() {
			n++
		}
	}
	return n
}

// --- command handlers ---

func (c joinCmd) apply(r *Room) {
	now := r.now()
	sess, known := r.sessions[c.playerID]

	if known && sess.Status != StatusLeft {
		// Reconnect or duplicate join of a live session: reattach, keep
		// the contributed score, and resend the full snapshot.
		sess.attach(c.outbox, now)
		if c.name != "" {
			sess.Name = c.name
		}
		r.logger.Debug("player reattached", zap.String("player", c.playerID))
		r.sendJoinAccepted(sess)
		if r.phase == PhaseEnded {
			// Late reconnect to a finished room gets the final notification
			// and nothing else.
			r.sendRoomEnded(sess)
			return
		}
		r.touch(now)
		return
	}

	if r.phase == PhaseEnded {
		// The room only lingers to serve final state to prior members.
		r.rejectOutbox(c.outbox, "room_ended", "room has ended")
		return
	}

	if known {
		// A player who left rejoins as a fresh participant; the old score
		// was settled when they left.
		delete(r.sessions, c.playerID)
		r.removeFromJoinOrder(c.playerID)
	}

	sess = &PlayerSession{
		PlayerID: c.playerID,
		Name:     c.name,
		JoinedAt: now,
	}
	sess.attach(c.outbox, now)
	r.sessions[c.playerID] = sess
	r.joinOrder = append(r.joinOrder, c.playerID)
	r.touch(now)

	r.logger.Info("player joined",
		zap.String("player", c.playerID),
		zap.Int("players", r.presentCount()),
	)

	r.sendJoinAccepted(sess)
	r.broadcastExcept(c.playerID, protocol.MustEncode(protocol.KindPlayerJoined, 0, protocol.PlayerEvent{
		PlayerID: c.playerID,
		Name:     sess.Name,
	}))
}

func (c startCmd) apply(r *Room) {
	if r.phase != PhaseLobby {
		return
	}
	if r.presentCount() < r.cfg.MinPlayers {
		sess, ok := r.sessions[c.playerID]
		if ok {
			r.trySend(sess, protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
				Code:    "not_enough_players",
				Message: "waiting for more players",
			}))
		}
		return
	}

	now := r.now()
	r.phase = PhaseActive
	r.seq = 0
	r.board = NewBoard(r.cfg.BoardSize)
	r.usedWords = make(map[string]bool)
	r.strikes = 0
	r.activatedAt = now
	r.touch(now)

	r.logger.Info("room started",
		zap.Int("board_size", r.cfg.BoardSize),
		zap.Int("players", r.presentCount()),
	)

	r.broadcast(protocol.MustEncode(protocol.KindRoomStarted, r.seq, protocol.RoomStarted{
		BoardSize: r.cfg.BoardSize,
	}))
}

func (c moveCmd) apply(r *Room) {
	sess, ok := r.sessions[c.playerID]

	reject := func(reason protocol.RejectReason) {
		if ok {
			r.trySend(sess, protocol.MustEncode(protocol.KindMoveRejected, 0, protocol.MoveRejected{
				Reason:   reason,
				Token:    c.token,
				Position: c.position,
			}))
		}
		if r.phase == PhaseActive {
			r.strikes++
			r.checkEndCondition()
		}
	}

	if r.phase != PhaseActive {
		reject(protocol.RejectWrongPhase)
		return
	}
	if !ok || !sess.Connected() {
		reject(protocol.RejectNotJoined)
		return
	}

	claimed, err := r.board.At(c.position)
	if err != nil {
		reject(protocol.RejectOutOfBounds)
		return
	}
	if claimed != nil {
		reject(protocol.RejectPositionTaken)
		return
	}

	word := lexicon.Normalize(c.token)
	if r.usedWords[word] {
		reject(protocol.RejectWordUsed)
		return
	}
	score, valid := r.lexicon.Validate(word)
	if !valid {
		reject(protocol.RejectInvalidWord)
		return
	}

	// Accepted: this is the only path that advances the sequence number.
	if err := r.board.Claim(c.position, word, c.playerID, score); err != nil {
		reject(protocol.RejectPositionTaken)
		return
	}
	r.seq++
	r.usedWords[word] = true
	r.strikes = 0
	sess.ContributedScore += score
	r.ledger.Append(LedgerEntry{
		PlayerID: c.playerID,
		Position: c.position,
		Word:     word,
		Delta:    score,
		Seq:      r.seq,
	})
	r.touch(r.now())

	r.logger.Debug("move accepted",
		zap.String("player", c.playerID),
		zap.String("word", word),
		zap.Int("position", c.position),
		zap.Uint64("seq", r.seq),
	)

	r.broadcast(protocol.MustEncode(protocol.KindStateDelta, r.seq, protocol.StateDelta{
		Position:   c.position,
		Word:       word,
		PlayerID:   c.playerID,
		ScoreDelta: score,
	}))

	r.checkEndCondition()
}

func (c heartbeatCmd) apply(r *Room) {
	sess, ok := r.sessions[c.playerID]
	if !ok || sess.Status == StatusLeft {
		return
	}
	sess.LastHeartbeat = r.now()
}

func (c snapshotCmd) apply(r *Room) {
	sess, ok := r.sessions[c.playerID]
	if !ok || !sess.Connected() {
		return
	}
	r.trySend(sess, protocol.MustEncode(protocol.KindSnapshot, r.seq, r.snapshot()))
}

func (c disconnectCmd) apply(r *Room) {
	sess, ok := r.sessions[c.playerID]
	if !ok || sess.Status != StatusConnected {
		return
	}
	r.markDisconnected(sess)
}

func (c leaveCmd) apply(r *Room) {
	sess, ok := r.sessions[c.playerID]
	if !ok || sess.Status == StatusLeft {
		return
	}
	r.removeSession(sess)
}

// --- loop internals ---

// tick performs liveness sweeps, the idle-timeout policy, and time-driven
// end conditions.
func (r *Room) tick() {
	now := r.now()

	for _, sess := range r.sessions {
		switch sess.Status {
		case StatusConnected:
			if now.Sub(sess.LastHeartbeat) > r.timing.HeartbeatInterval {
				r.markDisconnected(sess)
			}
		case StatusPending:
			if now.Sub(sess.DisconnectedAt) > r.timing.GraceWindow {
				r.removeSession(sess)
			}
		}
	}

	if r.phase == PhaseEnded {
		return
	}

	if now.Sub(r.lastActivity) > r.timing.IdleTimeout {
		r.endRoom(ReasonIdleTimeout)
		return
	}

	if r.phase == PhaseActive {
		r.checkEndCondition()
	}
}

// markDisconnected moves a session into the grace window and tells the
// other players. The session and its score stay resumable.
func (r *Room) markDisconnected(sess *PlayerSession) {
	sess.detach(r.now())
	r.logger.Info("player disconnected",
		zap.String("player", sess.PlayerID),
		zap.Duration("grace_window", r.timing.GraceWindow),
	)
	r.broadcastExcept(sess.PlayerID, protocol.MustEncode(protocol.KindPlayerDisconnected, 0, protocol.PlayerEvent{
		PlayerID: sess.PlayerID,
		Name:     sess.Name,
	}))
}

// removeSession finalizes a session (explicit leave or grace expiry).
// The session record stays in the map with StatusLeft so its contributed
// score survives into the final ledger.
func (r *Room) removeSession(sess *PlayerSession) {
	if sess.outbox != nil {
		_ = sess.outbox.Close()
		sess.outbox = nil
	}
	sess.Status = StatusLeft

	r.logger.Info("player left",
		zap.String("player", sess.PlayerID),
		zap.Int("players", r.presentCount()),
	)
	r.broadcastExcept(sess.PlayerID, protocol.MustEncode(protocol.KindPlayerLeft, 0, protocol.PlayerEvent{
		PlayerID: sess.PlayerID,
		Name:     sess.Name,
	}))

	if r.phase != PhaseEnded && r.presentCount() == 0 {
		r.endRoom(ReasonAllPlayersLeft)
	}
}

// checkEndCondition consults the mode's predicate and ends the room when it
// fires. Called after every accepted or rejected move and on each tick.
func (r *Room) checkEndCondition() {
	if r.phase != PhaseActive || r.cfg.End == nil {
		return
	}
	status := mode.Status{
		BoardSize:     r.cfg.BoardSize,
		Claimed:       r.boardClaimed(),
		Elapsed:       r.now().Sub(r.activatedAt),
		Strikes:       r.strikes,
		ActivePlayers: r.presentCount(),
	}
	if reason, done := r.cfg.End.Check(status); done {
		r.endRoom(reason)
	}
}

func (r *Room) boardClaimed() int {
	if r.board == nil {
		return 0
	}
	return r.board.ClaimedCount()
}

// endRoom performs the terminal transition. The room stays resident (and
// reachable for late reconnects) until the registry purges it.
func (r *Room) endRoom(reason string) {
	if r.phase == PhaseEnded {
		return
	}
	r.phase = PhaseEnded
	r.endReason = reason
	r.endedAt = r.now()

	finals := r.finalScores()
	r.logger.Info("room ended",
		zap.String("reason", reason),
		zap.Uint64("seq", r.seq),
		zap.Int("moves", r.ledger.Len()),
	)

	r.broadcast(protocol.MustEncode(protocol.KindRoomEnded, r.seq, protocol.RoomEnded{
		Reason:      reason,
		FinalScores: finals,
	}))

	if r.onEnded != nil {
		r.onEnded(Result{
			RoomID:      r.id,
			Mode:        string(r.cfg.Name),
			Reason:      reason,
			FinalScores: finals,
			Ledger:      r.ledger.Entries(),
		})
	}
}

// finalScores lists every participant's total, including players who left
// before the end, in join order.
func (r *Room) finalScores() []protocol.FinalScore {
	finals := make([]protocol.FinalScore, 0, len(r.sessions))
	for _, id := range r.joinOrder {
		sess, ok := r.sessions[id]
		if !ok {
			continue
		}
		finals = append(finals, protocol.FinalScore{
			PlayerID: sess.PlayerID,
			Score:    sess.ContributedScore,
		})
	}
	sort.SliceStable(finals, func(i, j int) bool { return finals[i].Score > finals[j].Score })
	return finals
}

// snapshot assembles the full authoritative state. Always sent in place of
// deltas after join, reconnect, or a client-reported gap.
func (r *Room) snapshot() protocol.RoomSnapshot {
	snap := protocol.RoomSnapshot{
		RoomID:    r.id,
		Mode:      string(r.cfg.Name),
		Phase:     string(r.phase),
		Seq:       r.seq,
		BoardSize: r.cfg.BoardSize,
		EndReason: r.endReason,
	}
	if r.board != nil {
		for _, c := range r.board.Claims() {
			snap.Board = append(snap.Board, protocol.SlotState{
				Position: c.Position,
				Word:     c.Word,
				PlayerID: c.PlayerID,
				Score:    c.Score,
			})
		}
	}
	for _, id := range r.joinOrder {
		sess, ok := r.sessions[id]
		if !ok {
			continue
		}
		snap.Players = append(snap.Players, protocol.PlayerState{
			PlayerID: sess.PlayerID,
			Name:     sess.Name,
			Status:   string(sess.Status),
			Score:    sess.ContributedScore,
		})
	}
	return snap
}

func (r *Room) sendJoinAccepted(sess *PlayerSession) {
	r.trySend(sess, protocol.MustEncode(protocol.KindJoinAccepted, r.seq, protocol.JoinAccepted{
		PlayerID: sess.PlayerID,
		Snapshot: r.snapshot(),
	}))
}

func (r *Room) sendRoomEnded(sess *PlayerSession) {
	r.trySend(sess, protocol.MustEncode(protocol.KindRoomEnded, r.seq, protocol.RoomEnded{
		Reason:      r.endReason,
		FinalScores: r.finalScores(),
	}))
}

// rejectOutbox answers a join that never became a session, then closes the
// attachment.
func (r *Room) rejectOutbox(out *Outbox, code, msg string) {
	_ = out.Push(protocol.MustEncode(protocol.KindError, 0, protocol.ErrorMessage{
		Code:    code,
		Message: msg,
	}))
	_ = out.Close()
}

// broadcast delivers to every connected session. Delivery is fire-and-
// forget: a failed push marks that session disconnected and never rolls
// back or retries the originating mutation.
func (r *Room) broadcast(data []byte) {
	r.broadcastExcept("", data)
}

func (r *Room) broadcastExcept(skipPlayerID string, data []byte) {
	var lost []*PlayerSession
	for _, id := range r.joinOrder {
		sess, ok := r.sessions[id]
		if !ok || id == skipPlayerID || !sess.Connected() {
			continue
		}
		if err := sess.send(data); err != nil {
			lost = append(lost, sess)
		}
	}
	for _, sess := range lost {
		r.logger.Warn("dropping slow or dead session",
			zap.String("player", sess.PlayerID),
		)
		r.markDisconnected(sess)
	}
}

// trySend delivers to one session; a failure starts its grace window.
func (r *Room) trySend(sess *PlayerSession, data []byte) {
	if !sess.Connected() {
		return
	}
	if err := sess.send(data); err != nil {
		r.markDisconnected(sess)
	}
}

func (r *Room) closeAllSessions() {
	for _, sess := range r.sessions {
		if sess.outbox != nil {
			_ = sess.outbox.Close()
			sess.outbox = nil
		}
	}
}

func (r *Room) removeFromJoinOrder(playerID string) {
	for i, id := range r.joinOrder {
		if id == playerID {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			return
		}
	}
}

func (r *Room) touch(now time.Time) {
	r.lastActivity = now
}
