package executor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// vzLib is the analysis/plotting helper table bound as vz. It records every
// chart it builds so the first one can stand in for an unset chart global.
type vzLib struct {
	charts []*Chart
}

func (v *vzLib) table(L *lua.LState) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"column":  vzColumn,
		"unique":  vzUnique,
		"sum":     aggregate(aggSum),
		"mean":    aggregate(aggMean),
		"median":  aggregate(aggMedian),
		"min":     aggregate(aggMin),
		"max":     aggregate(aggMax),
		"count":   vzCount,
		"round":   vzRound,
		"group":   vzGroup,
		"filter":  vzFilter,
		"sort":    vzSort,
		"head":    vzHead,
		"frame":   vzFrame,
		"bar":     v.labelled(ChartBar),
		"pie":     v.labelled(ChartPie),
		"line":    v.xy(ChartLine),
		"scatter": v.xy(ChartScatter),
		"hist":    v.hist,
	})
}

// values reads either (frame, name) or (array) starting at argument 1.
func values(L *lua.LState) []lua.LValue {
	t := L.CheckTable(1)
	if isFrame(t) {
		return frameColumn(t, L.CheckString(2))
	}
	return arrayValues(t)
}

func vzColumn(L *lua.LState) int {
	L.Push(valuesToLua(L, values(L)))
	return 1
}

func vzUnique(L *lua.LState) int {
	seen := map[string]bool{}
	var out []lua.LValue
	for _, v := range values(L) {
		key := v.Type().String() + ":" + v.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return lessValue(out[i], out[j]) })
	L.Push(valuesToLua(L, out))
	return 1
}

func vzCount(L *lua.LState) int {
	L.Push(lua.LNumber(len(values(L))))
	return 1
}

func vzRound(L *lua.LState) int {
	x := float64(L.CheckNumber(1))
	p := math.Pow(10, float64(L.OptInt(2, 0)))
	L.Push(lua.LNumber(math.Round(x*p) / p))
	return 1
}

type aggFunc func([]float64) (float64, bool)

func aggSum(xs []float64) (float64, bool) {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s, true
}

func aggMean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	s, _ := aggSum(xs)
	return s / float64(len(xs)), true
}

func aggMedian(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	c := append([]float64(nil), xs...)
	sort.Float64s(c)
	m := len(c) / 2
	if len(c)%2 == 1 {
		return c[m], true
	}
	return (c[m-1] + c[m]) / 2, true
}

func aggMin(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m, true
}

func aggMax(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m, true
}

func aggCount(xs []float64) (float64, bool) { return float64(len(xs)), true }

var aggregations = map[string]aggFunc{
	"sum":    aggSum,
	"mean":   aggMean,
	"avg":    aggMean,
	"median": aggMedian,
	"min":    aggMin,
	"max":    aggMax,
	"count":  aggCount,
}

func aggregate(fn aggFunc) lua.LGFunction {
	return func(L *lua.LState) int {
		if v, ok := fn(numbersOf(values(L))); ok {
			L.Push(lua.LNumber(v))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}
}

// vzGroup implements vz.group(frame, by, name, agg). Rows with a nil key are
// dropped and groups come back sorted by key.
func vzGroup(L *lua.LState) int {
	frame := L.CheckTable(1)
	by := L.CheckString(2)
	col := L.OptString(3, "")
	aggName := strings.ToLower(L.OptString(4, "mean"))
	if col == "" {
		col, aggName = "count", "size"
	}
	fn, ok := aggregations[aggName]
	if aggName == "size" {
		fn, ok = aggCount, true
	}
	if !ok {
		L.ArgError(4, fmt.Sprintf("unknown aggregation %q", aggName))
		return 0
	}

	type group struct {
		key  lua.LValue
		vals []float64
		size int
	}
	groups := map[string]*group{}
	var order []*group
	for _, r := range frameRows(frame) {
		k := r.RawGetString(by)
		if k == lua.LNil {
			continue
		}
		id := k.Type().String() + ":" + k.String()
		g, ok := groups[id]
		if !ok {
			g = &group{key: k}
			groups[id] = g
			order = append(order, g)
		}
		g.size++
		if n, ok := r.RawGetString(col).(lua.LNumber); ok {
			g.vals = append(g.vals, float64(n))
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return lessValue(order[i].key, order[j].key) })

	rows := make([]*lua.LTable, 0, len(order))
	for _, g := range order {
		row := L.NewTable()
		row.RawSetString(by, g.key)
		switch {
		case aggName == "size":
			row.RawSetString(col, lua.LNumber(g.size))
		default:
			if v, ok := fn(g.vals); ok {
				row.RawSetString(col, lua.LNumber(v))
			}
		}
		rows = append(rows, row)
	}
	L.Push(newFrame(L, []string{by, col}, rows))
	return 1
}

func vzFilter(L *lua.LState) int {
	frame := L.CheckTable(1)
	pred := L.CheckFunction(2)
	var keep []*lua.LTable
	for _, r := range frameRows(frame) {
		if err := L.CallByParam(lua.P{Fn: pred, NRet: 1, Protect: true}, r); err != nil {
			L.RaiseError("filter: %s", err.Error())
			return 0
		}
		ok := lua.LVAsBool(L.Get(-1))
		L.Pop(1)
		if ok {
			keep = append(keep, r)
		}
	}
	L.Push(newFrame(L, frameColumns(frame), keep))
	return 1
}

func vzSort(L *lua.LState) int {
	frame := L.CheckTable(1)
	col := L.CheckString(2)
	desc := L.OptBool(3, false)
	rows := frameRows(frame)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].RawGetString(col), rows[j].RawGetString(col)
		// nils sort last in both directions
		if a == lua.LNil || b == lua.LNil {
			return a != lua.LNil && b == lua.LNil
		}
		if desc {
			return lessValue(b, a)
		}
		return lessValue(a, b)
	})
	L.Push(newFrame(L, frameColumns(frame), rows))
	return 1
}

func vzHead(L *lua.LState) int {
	frame := L.CheckTable(1)
	n := L.OptInt(2, 5)
	rows := frameRows(frame)
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	L.Push(newFrame(L, frameColumns(frame), rows))
	return 1
}

// vzFrame builds a frame from column names and rows given either
// positionally or keyed by column name.
func vzFrame(L *lua.LState) int {
	ct := L.CheckTable(1)
	rt := L.OptTable(2, L.NewTable())
	var cols []string
	for _, v := range arrayValues(ct) {
		cols = append(cols, v.String())
	}
	var rows []*lua.LTable
	for i, v := range arrayValues(rt) {
		src, ok := v.(*lua.LTable)
		if !ok {
			L.ArgError(2, fmt.Sprintf("row %d is not a table", i+1))
			return 0
		}
		if src.Len() == 0 {
			rows = append(rows, src)
			continue
		}
		row := L.NewTable()
		for j, c := range cols {
			row.RawSetString(c, src.RawGetInt(j+1))
		}
		rows = append(rows, row)
	}
	L.Push(newFrame(L, cols, rows))
	return 1
}

func valuesToLua(L *lua.LState, vals []lua.LValue) *lua.LTable {
	t := L.CreateTable(len(vals), 0)
	for _, v := range vals {
		t.Append(v)
	}
	return t
}

func (v *vzLib) push(L *lua.LState, c *Chart, opts *lua.LTable) int {
	if opts != nil {
		c.Title = lua.LVAsString(opts.RawGetString("title"))
		c.XLabel = lua.LVAsString(opts.RawGetString("xlabel"))
		c.YLabel = lua.LVAsString(opts.RawGetString("ylabel"))
	}
	if len(c.Y) == 0 {
		L.RaiseError("%s chart has no numeric values", c.Kind)
		return 0
	}
	for _, xs := range [][]float64{c.X, c.Y} {
		for _, f := range xs {
			if !finite(f) {
				L.RaiseError("%s chart has non-finite values (division by zero?)", c.Kind)
				return 0
			}
		}
	}
	v.charts = append(v.charts, c)
	L.Push(c.toLua(L))
	return 1
}

// pairs reads (frame, xcol, ycol) or (xs, ys); rows where y is not a number
// or x is nil are skipped. It returns the index of the options argument.
func pairs(L *lua.LState) (xs []lua.LValue, ys []float64, optIdx int) {
	t := L.CheckTable(1)
	if isFrame(t) {
		xc, yc := L.CheckString(2), L.CheckString(3)
		for _, r := range frameRows(t) {
			x := r.RawGetString(xc)
			y, ok := r.RawGetString(yc).(lua.LNumber)
			if x == lua.LNil || !ok {
				continue
			}
			xs = append(xs, x)
			ys = append(ys, float64(y))
		}
		return xs, ys, 4
	}
	yt := L.CheckTable(2)
	n := t.Len()
	if yt.Len() < n {
		n = yt.Len()
	}
	for i := 1; i <= n; i++ {
		x := t.RawGetInt(i)
		y, ok := yt.RawGetInt(i).(lua.LNumber)
		if x == lua.LNil || !ok {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, float64(y))
	}
	return xs, ys, 3
}

func (v *vzLib) labelled(kind ChartKind) lua.LGFunction {
	return func(L *lua.LState) int {
		xs, ys, optIdx := pairs(L)
		c := &Chart{Kind: kind, Y: ys}
		for _, x := range xs {
			c.Labels = append(c.Labels, x.String())
		}
		return v.push(L, c, L.OptTable(optIdx, nil))
	}
}

func (v *vzLib) xy(kind ChartKind) lua.LGFunction {
	return func(L *lua.LState) int {
		xs, ys, optIdx := pairs(L)
		c := &Chart{Kind: kind, Y: ys}
		numeric := true
		for _, x := range xs {
			if _, ok := x.(lua.LNumber); !ok {
				numeric = false
				break
			}
		}
		for i, x := range xs {
			if numeric {
				c.X = append(c.X, float64(x.(lua.LNumber)))
				continue
			}
			c.X = append(c.X, float64(i))
			c.Labels = append(c.Labels, x.String())
		}
		return v.push(L, c, L.OptTable(optIdx, nil))
	}
}

// hist bins values into equal-width buckets: vz.hist(values, bins, opts) or
// vz.hist(frame, name, bins, opts).
func (v *vzLib) hist(L *lua.LState) int {
	t := L.CheckTable(1)
	var xs []float64
	binIdx := 2
	if isFrame(t) {
		xs = numbersOf(frameColumn(t, L.CheckString(2)))
		binIdx = 3
	} else {
		xs = numbersOf(arrayValues(t))
	}
	bins := L.OptInt(binIdx, 10)
	if bins <= 0 {
		L.ArgError(binIdx, "bins must be positive")
		return 0
	}
	c := &Chart{Kind: ChartHist}
	if len(xs) > 0 {
		c.Labels, c.Y = binValues(xs, bins)
	}
	return v.push(L, c, L.OptTable(binIdx+1, nil))
}

func binValues(xs []float64, bins int) ([]string, []float64) {
	lo, _ := aggMin(xs)
	hi, _ := aggMax(xs)
	if hi == lo {
		return []string{fmt.Sprintf("%.4g", lo)}, []float64{float64(len(xs))}
	}
	width := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, x := range xs {
		i := int((x - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.4g..%.4g", lo+float64(i)*width, lo+float64(i+1)*width)
	}
	return labels, counts
}
