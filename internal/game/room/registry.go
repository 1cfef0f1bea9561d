package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pcollard/wordhall/internal/config"
	"github.com/pcollard/wordhall/internal/game/lexicon"
	"github.com/pcollard/wordhall/internal/game/mode"
)

// ErrRoomNotFound is returned when looking up an unknown room id.
var ErrRoomNotFound = errors.New("room not found")

// ModeFactory builds a mode configuration for a requested mode name.
// Returning an error refuses room creation.
type ModeFactory func(name string) (mode.Config, error)

// EndHook consumes the final result of an ended room. Hooks run on their
// own goroutine; a slow consumer never blocks a room loop.
type EndHook func(Result)

// Registry is the process-wide directory of live rooms. Creation is
// idempotent under concurrent joins: at most one Room ever exists per id.
type Registry struct {
	timing  config.GameConfig
	lexicon *lexicon.Lexicon
	logger  *zap.Logger
	modeFor ModeFactory

	mu    sync.Mutex
	rooms map[string]*Room
	hooks []EndHook

	done     chan struct{}
	stopOnce sync.Once
	swept    chan struct{}
}

// NewRegistry creates an empty Registry.
//
// Precondition: lex, logger, and modeFor must be non-nil.
func NewRegistry(timing config.GameConfig, lex *lexicon.Lexicon, modeFor ModeFactory, logger *zap.Logger) *Registry {
	return &Registry{
		timing:  timing,
		lexicon: lex,
		logger:  logger,
		modeFor: modeFor,
		rooms:   make(map[string]*Room),
		done:    make(chan struct{}),
		swept:   make(chan struct{}, 1),
	}
}

// OnRoomEnded registers a hook for room results (score persistence,
// notifications). Must be called before rooms are created.
func (g *Registry) OnRoomEnded(hook EndHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, hook)
}

// GetOrCreate returns the room for roomID, constructing and starting it on
// first use. Two near-simultaneous joins for the same id observe the same
// Room; the construction race loser is discarded before it ever starts.
//
// Postcondition: Returns a running Room or a non-nil error.
func (g *Registry) GetOrCreate(roomID, modeName string) (*Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room id must not be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[roomID]; ok {
		return room, nil
	}

	cfg, err := g.modeFor(modeName)
	if err != nil {
		return nil, fmt.Errorf("resolving mode %q: %w", modeName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mode %q: %w", modeName, err)
	}

	room := New(roomID, cfg, g.timing, g.lexicon, g.logger, g.dispatchEnded)
	g.rooms[roomID] = room
	room.Start()

	g.logger.Info("room created",
		zap.String("room", roomID),
		zap.String("mode", string(cfg.Name)),
		zap.Int("rooms", len(g.rooms)),
	)
	return room, nil
}

// Get returns the room for roomID.
//
// Postcondition: Returns (room, nil) or (nil, ErrRoomNotFound).
func (g *Registry) Get(roomID string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Remove stops and deletes a room.
func (g *Registry) Remove(roomID string) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	if ok {
		delete(g.rooms, roomID)
	}
	g.mu.Unlock()

	if ok {
		room.Stop()
		g.logger.Info("room removed", zap.String("room", roomID))
	}
}

// Count returns the number of resident rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// dispatchEnded fans a room result out to the registered hooks. Called from
// a room loop, so every hook gets its own goroutine.
func (g *Registry) dispatchEnded(res Result) {
	g.mu.Lock()
	hooks := make([]EndHook, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.Unlock()

	for _, hook := range hooks {
		go hook(res)
	}
}

// Start runs the sweep loop until Stop is called. It satisfies the
// server.Service contract and blocks.
func (g *Registry) Start() error {
	ticker := time.NewTicker(g.timing.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep(time.Now())
			select {
			case g.swept <- struct{}{}:
			default:
			}
		case <-g.done:
			return nil
		}
	}
}

// Stop terminates the sweep loop and every resident room.
func (g *Registry) Stop() {
	g.stopOnce.Do(func() { close(g.done) })

	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
}

// sweep purges rooms that ended longer than the purge grace ago. Idle
// lobby/active rooms transition themselves via their own tickers; the
// sweep only reaps what is already terminal.
func (g *Registry) sweep(now time.Time) {
	g.mu.Lock()
	var expired []*Room
	for id, room := range g.rooms {
		info := room.Info()
		if info.Phase == PhaseEnded && now.Sub(info.EndedAt) > g.timing.PurgeGrace {
			delete(g.rooms, id)
			expired = append(expired, room)
		}
	}
	remaining := len(g.rooms)
	g.mu.Unlock()

	for _, room := range expired {
		room.Stop()
		g.logger.Info("room purged",
			zap.String("room", room.ID()),
			zap.Int("rooms", remaining),
		)
	}
}
