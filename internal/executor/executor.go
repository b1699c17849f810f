package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/logger"
)

// Mode selects the trust boundary for generated scripts.
type Mode string

const (
	// ModeTrusted runs scripts with the full Lua standard library.
	ModeTrusted Mode = "trusted"
	// ModeSandboxed restricts scripts to pure computation under a time limit.
	ModeSandboxed Mode = "sandboxed"
)

// DefaultSandboxTimeout applies in sandboxed mode when Options.Timeout is zero.
const DefaultSandboxTimeout = 10 * time.Second

// ParseMode validates a mode name. The empty string means trusted.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTrusted:
		return ModeTrusted, nil
	case ModeSandboxed, "sandbox":
		return ModeSandboxed, nil
	}
	return "", fmt.Errorf("unknown exec mode %q (want trusted or sandboxed)", s)
}

// Options configures a LuaExecutor.
type Options struct {
	Mode Mode
	// Timeout bounds a single run; 0 means none in trusted mode and
	// DefaultSandboxTimeout in sandboxed mode.
	Timeout time.Duration
	// MaxOutputBytes caps captured print output; 0 means 1 MiB.
	MaxOutputBytes int
	Logger         *zap.Logger
}

// Table is a rectangular result.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Result is what a script produced.
type Result struct {
	Output   string
	Text     string
	Table    *Table
	Chart    *Chart
	Notes    []string
	Duration time.Duration
}

// Empty reports whether the script produced nothing visible.
func (r *Result) Empty() bool {
	return r == nil || (r.Output == "" && r.Text == "" && r.Table == nil && r.Chart == nil)
}

// RuntimeError is a failure raised while running a script. Output holds
// whatever was printed before the failure.
type RuntimeError struct {
	Message string
	Output  string
	Trace   string
}

func (e *RuntimeError) Error() string { return "runtime error: " + e.Message }

// Executor runs generated code against a dataset.
type Executor interface {
	Run(ctx context.Context, code string, ds *dataset.Dataset) (*Result, error)
}

// LuaExecutor runs Lua 5.1 scripts in a fresh interpreter per call.
type LuaExecutor struct {
	opt Options
	log *zap.Logger
}

// New returns an executor for the given options.
func New(opt Options) *LuaExecutor {
	if opt.Mode == "" {
		opt.Mode = ModeTrusted
	}
	if opt.Mode == ModeSandboxed && opt.Timeout <= 0 {
		opt.Timeout = DefaultSandboxTimeout
	}
	if opt.MaxOutputBytes <= 0 {
		opt.MaxOutputBytes = 1 << 20
	}
	return &LuaExecutor{opt: opt, log: logger.OrNop(opt.Logger)}
}

// Mode returns the configured trust mode.
func (e *LuaExecutor) Mode() Mode { return e.opt.Mode }

// Run executes code with df bound to ds. The dataset itself is never touched:
// the script sees Lua copies of its rows.
func (e *LuaExecutor) Run(ctx context.Context, code string, ds *dataset.Dataset) (res *Result, err error) {
	start := time.Now()
	out := &outputBuffer{max: e.opt.MaxOutputBytes}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &RuntimeError{Message: fmt.Sprintf("interpreter panic: %v", r), Output: out.String()}
		}
		e.log.Debug("script finished",
			zap.String("mode", string(e.opt.Mode)),
			zap.Duration("took", time.Since(start)),
			zap.Bool("failed", err != nil))
	}()

	runCtx := ctx
	if e.opt.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opt.Timeout)
		defer cancel()
	}

	L, err := e.newState(out)
	if err != nil {
		return nil, &RuntimeError{Message: err.Error()}
	}
	defer L.Close()
	L.SetContext(runCtx)

	lib := &vzLib{}
	L.SetGlobal(DataVar, bindDataset(L, ds))
	L.SetGlobal(HelperVar, lib.table(L))

	if derr := L.DoString(code); derr != nil {
		rerr := &RuntimeError{Message: derr.Error(), Output: out.String()}
		var apiErr *lua.ApiError
		if errors.As(derr, &apiErr) && apiErr.Object != nil {
			rerr.Message = apiErr.Object.String()
			rerr.Trace = apiErr.StackTrace
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			rerr.Message = fmt.Sprintf("execution timed out after %s", e.opt.Timeout)
		} else if ctx.Err() != nil {
			rerr.Message = "execution cancelled: " + ctx.Err().Error()
		}
		return nil, rerr
	}

	res = &Result{Output: out.String()}
	if out.truncated {
		res.Notes = append(res.Notes, fmt.Sprintf("printed output truncated at %d bytes", e.opt.MaxOutputBytes))
	}
	if cerr := collect(L, lib, res); cerr != nil {
		return nil, &RuntimeError{Message: cerr.Error(), Output: res.Output}
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (e *LuaExecutor) newState(out *outputBuffer) (*lua.LState, error) {
	var L *lua.LState
	if e.opt.Mode == ModeSandboxed {
		L = lua.NewState(lua.Options{
			SkipOpenLibs:    true,
			CallStackSize:   200,
			RegistrySize:    1024 * 4,
			RegistryMaxSize: 1024 * 256,
		})
		for _, lib := range []struct {
			name string
			fn   lua.LGFunction
		}{
			{lua.BaseLibName, lua.OpenBase},
			{lua.TabLibName, lua.OpenTable},
			{lua.StringLibName, lua.OpenString},
			{lua.MathLibName, lua.OpenMath},
		} {
			if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
				L.Close()
				return nil, fmt.Errorf("open %s library: %w", lib.name, err)
			}
		}
		for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
			L.SetGlobal(name, lua.LNil)
		}
		L.SetGlobal("io", L.NewTable())
	} else {
		L = lua.NewState()
		if osT, ok := L.GetGlobal("os").(*lua.LTable); ok {
			L.SetField(osT, "exit", L.NewFunction(func(L *lua.LState) int {
				L.RaiseError("os.exit is not allowed inside an analysis script")
				return 0
			}))
		}
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		for i := 1; i <= n; i++ {
			if i > 1 {
				out.WriteString("\t")
			}
			out.WriteString(L.ToStringMeta(L.Get(i)).String())
		}
		out.WriteString("\n")
		return 0
	}))
	if ioT, ok := L.GetGlobal("io").(*lua.LTable); ok {
		L.SetField(ioT, "write", L.NewFunction(func(L *lua.LState) int {
			n := L.GetTop()
			for i := 1; i <= n; i++ {
				out.WriteString(L.ToStringMeta(L.Get(i)).String())
			}
			return 0
		}))
	}
	return L, nil
}

type outputBuffer struct {
	buf       strings.Builder
	max       int
	truncated bool
}

func (o *outputBuffer) WriteString(s string) {
	if o.truncated {
		return
	}
	if o.max > 0 && o.buf.Len()+len(s) > o.max {
		if remain := o.max - o.buf.Len(); remain > 0 {
			o.buf.WriteString(s[:remain])
		}
		o.truncated = true
		return
	}
	o.buf.WriteString(s)
}

func (o *outputBuffer) String() string { return strings.ToValidUTF8(o.buf.String(), "") }
