package mode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// end-condition evaluation.
const DefaultInstructionLimit = 50_000

// Script is a loaded Lua end-condition source. One Script may back many
// rooms; each room instantiates its own Condition so no Lua state is shared
// across room goroutines.
type Script struct {
	// Name is the mode name the script registers (file basename).
	Name string
	src  []byte
}

// LoadScripts reads all .lua files in dir as end-condition scripts keyed by
// file basename.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns the scripts found (possibly none) or an error.
func LoadScripts(dir string) (map[string]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading mode script directory %s: %w", dir, err)
	}

	scripts := make(map[string]*Script)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading mode script %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		scripts[name] = &Script{Name: name, src: src}
	}
	return scripts, nil
}

// NewScript builds a Script from in-memory source.
func NewScript(name string, src []byte) *Script {
	return &Script{Name: name, src: src}
}

// Condition instantiates a fresh sandboxed evaluator for one room. The
// returned ScriptCondition is not safe for concurrent use; call Close when
// the room is purged.
//
// Postcondition: The script has been executed once and must have defined a
// global function `ended`.
func (s *Script) Condition() (*ScriptCondition, error) {
	L := newSandboxedState()

	// Opcode budget for the load-time run; Check installs a fresh one per
	// evaluation.
	ctx, cancel := newCountingContext(DefaultInstructionLimit)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(string(s.src)); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading mode script %s: %w", s.Name, err)
	}
	fn := L.GetGlobal("ended")
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("mode script %s does not define ended()", s.Name)
	}
	return &ScriptCondition{name: s.Name, state: L, fn: fn.(*lua.LFunction)}, nil
}

// ScriptCondition evaluates a Lua `ended(status)` predicate. The status table
// exposes claimed, board_size, elapsed_seconds, strikes, and players fields.
type ScriptCondition struct {
	name  string
	state *lua.LState
	fn    *lua.LFunction
}

// Check runs the predicate. A script error is treated as "not ended" so a
// broken script cannot terminate a live room.
func (c *ScriptCondition) Check(s Status) (string, bool) {
	// Fresh opcode budget per evaluation; a prior exhausted budget must not
	// poison later checks.
	ctx, cancel := newCountingContext(DefaultInstructionLimit)
	defer cancel()
	c.state.SetContext(ctx)

	tbl := c.state.NewTable()
	c.state.SetField(tbl, "claimed", lua.LNumber(s.Claimed))
	c.state.SetField(tbl, "board_size", lua.LNumber(s.BoardSize))
	c.state.SetField(tbl, "elapsed_seconds", lua.LNumber(s.Elapsed.Seconds()))
	c.state.SetField(tbl, "strikes", lua.LNumber(s.Strikes))
	c.state.SetField(tbl, "players", lua.LNumber(s.ActivePlayers))

	err := c.state.CallByParam(lua.P{Fn: c.fn, NRet: 2, Protect: true}, tbl)
	if err != nil {
		return "", false
	}

	reason := c.state.Get(-1)
	done := c.state.Get(-2)
	c.state.Pop(2)

	if done != lua.LTrue {
		return "", false
	}
	if str, ok := reason.(lua.LString); ok && string(str) != "" {
		return string(str), true
	}
	return "script-ended", true
}

// Close releases the Lua state.
func (c *ScriptCondition) Close() {
	c.state.Close()
}

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's main loop calls Done() once per
// opcode, making this an exact instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

// Done returns the underlying cancellation channel. Each call decrements the
// remaining counter; when it reaches zero the cancel function fires,
// terminating the Lua VM on the next opcode boundary.
func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// newSandboxedState creates a GopherLua LState with only the safe stdlib
// loaded (base, table, string, math) and dangerous globals removed. The
// caller installs an opcode-counting context before running any code.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	return L
}
