package executor

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ChartKind names a supported plot type.
type ChartKind string

const (
	ChartBar     ChartKind = "bar"
	ChartLine    ChartKind = "line"
	ChartScatter ChartKind = "scatter"
	ChartPie     ChartKind = "pie"
	ChartHist    ChartKind = "hist"
)

// Chart is a plot description produced by a script. Bar, pie and hist charts
// use Labels with Y; line and scatter use X with Y, plus Labels when the x
// values were not numeric.
type Chart struct {
	Kind   ChartKind
	Title  string
	XLabel string
	YLabel string
	Labels []string
	X      []float64
	Y      []float64
}

func validKind(k ChartKind) bool {
	switch k {
	case ChartBar, ChartLine, ChartScatter, ChartPie, ChartHist:
		return true
	}
	return false
}

func (c *Chart) toLua(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("kind", lua.LString(c.Kind))
	t.RawSetString("title", lua.LString(c.Title))
	t.RawSetString("xlabel", lua.LString(c.XLabel))
	t.RawSetString("ylabel", lua.LString(c.YLabel))
	if len(c.Labels) > 0 {
		lt := L.CreateTable(len(c.Labels), 0)
		for _, s := range c.Labels {
			lt.Append(lua.LString(s))
		}
		t.RawSetString("labels", lt)
	}
	if len(c.X) > 0 {
		t.RawSetString("x", floatsToLua(L, c.X))
	}
	t.RawSetString("y", floatsToLua(L, c.Y))
	return t
}

func floatsToLua(L *lua.LState, xs []float64) *lua.LTable {
	t := L.CreateTable(len(xs), 0)
	for _, x := range xs {
		t.Append(lua.LNumber(x))
	}
	return t
}

// chartFromLua reads a chart table, possibly edited by the script.
func chartFromLua(t *lua.LTable) (*Chart, error) {
	c := &Chart{
		Kind:   ChartKind(lua.LVAsString(t.RawGetString("kind"))),
		Title:  lua.LVAsString(t.RawGetString("title")),
		XLabel: lua.LVAsString(t.RawGetString("xlabel")),
		YLabel: lua.LVAsString(t.RawGetString("ylabel")),
	}
	if !validKind(c.Kind) {
		return nil, fmt.Errorf("chart: unknown kind %q", c.Kind)
	}
	if lt, ok := t.RawGetString("labels").(*lua.LTable); ok {
		for i := 1; i <= lt.Len(); i++ {
			c.Labels = append(c.Labels, cellString(lt.RawGetInt(i)))
		}
	}
	if xt, ok := t.RawGetString("x").(*lua.LTable); ok {
		xs := arrayValues(xt)
		if hasNonFinite(xs) {
			return nil, fmt.Errorf("chart: %s chart has non-finite values", c.Kind)
		}
		c.X = numbersOf(xs)
	}
	if yt, ok := t.RawGetString("y").(*lua.LTable); ok {
		ys := arrayValues(yt)
		if hasNonFinite(ys) {
			return nil, fmt.Errorf("chart: %s chart has non-finite values", c.Kind)
		}
		c.Y = numbersOf(ys)
	}
	if len(c.Y) == 0 {
		return nil, fmt.Errorf("chart: %s chart has no values", c.Kind)
	}
	return c, nil
}
