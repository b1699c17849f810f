package executor

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/KaramelBytes/vizloom/internal/dataset"
)

// bindDataset copies ds into a Lua frame.
func bindDataset(L *lua.LState, ds *dataset.Dataset) *lua.LTable {
	names := ds.ColumnNames()
	df := L.NewTable()
	cols := L.CreateTable(len(names), 0)
	for _, n := range names {
		cols.Append(lua.LString(n))
	}
	rows := L.CreateTable(ds.NumRows(), 0)
	for i := 0; i < ds.NumRows(); i++ {
		row := L.CreateTable(0, len(names))
		for j, n := range names {
			if f, ok := ds.Float(i, j); ok {
				row.RawSetString(n, lua.LNumber(f))
				continue
			}
			if s, ok := ds.Cell(i, j); ok {
				row.RawSetString(n, lua.LString(s))
			}
		}
		rows.Append(row)
	}
	if ds != nil {
		df.RawSetString("name", lua.LString(ds.Name))
	}
	df.RawSetString("columns", cols)
	df.RawSetString("rows", rows)
	df.RawSetString("nrows", lua.LNumber(ds.NumRows()))
	return df
}

func newFrame(L *lua.LState, columns []string, rows []*lua.LTable) *lua.LTable {
	f := L.NewTable()
	ct := L.CreateTable(len(columns), 0)
	for _, c := range columns {
		ct.Append(lua.LString(c))
	}
	rt := L.CreateTable(len(rows), 0)
	for _, r := range rows {
		rt.Append(r)
	}
	f.RawSetString("columns", ct)
	f.RawSetString("rows", rt)
	f.RawSetString("nrows", lua.LNumber(len(rows)))
	return f
}

func isFrame(t *lua.LTable) bool {
	_, ok := t.RawGetString("rows").(*lua.LTable)
	return ok
}

func frameRows(t *lua.LTable) []*lua.LTable {
	rt, ok := t.RawGetString("rows").(*lua.LTable)
	if !ok {
		return nil
	}
	out := make([]*lua.LTable, 0, rt.Len())
	for i := 1; i <= rt.Len(); i++ {
		if r, ok := rt.RawGetInt(i).(*lua.LTable); ok {
			out = append(out, r)
		}
	}
	return out
}

func frameColumns(t *lua.LTable) []string {
	var cols []string
	if ct, ok := t.RawGetString("columns").(*lua.LTable); ok {
		for i := 1; i <= ct.Len(); i++ {
			cols = append(cols, lua.LVAsString(ct.RawGetInt(i)))
		}
	}
	return cols
}

// frameColumn returns the non-nil values of one column.
func frameColumn(t *lua.LTable, name string) []lua.LValue {
	var out []lua.LValue
	for _, r := range frameRows(t) {
		if v := r.RawGetString(name); v != lua.LNil {
			out = append(out, v)
		}
	}
	return out
}

func arrayValues(t *lua.LTable) []lua.LValue {
	n := t.Len()
	out := make([]lua.LValue, 0, n)
	for i := 1; i <= n; i++ {
		if v := t.RawGetInt(i); v != lua.LNil {
			out = append(out, v)
		}
	}
	return out
}

// numbersOf keeps the finite numbers in vals; NaN and infinities from a
// division by zero are skipped like non-numeric cells.
func numbersOf(vals []lua.LValue) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if n, ok := v.(lua.LNumber); ok && finite(float64(n)) {
			out = append(out, float64(n))
		}
	}
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// hasNonFinite reports whether any number in vals is NaN or infinite.
func hasNonFinite(vals []lua.LValue) bool {
	for _, v := range vals {
		if n, ok := v.(lua.LNumber); ok && !finite(float64(n)) {
			return true
		}
	}
	return false
}

func isScalar(v lua.LValue) bool {
	switch v.Type() {
	case lua.LTNumber, lua.LTString, lua.LTBool:
		return true
	}
	return false
}

// cellString renders a scalar cell; tables and functions render as their
// type name so output does not carry pointer addresses.
func cellString(v lua.LValue) string {
	if v == lua.LNil {
		return ""
	}
	if !isScalar(v) {
		return v.Type().String()
	}
	return v.String()
}

// lessValue orders numbers before strings, numbers numerically and strings lexically.
func lessValue(a, b lua.LValue) bool {
	an, aNum := a.(lua.LNumber)
	bn, bNum := b.(lua.LNumber)
	switch {
	case aNum && bNum:
		return an < bn
	case aNum != bNum:
		return aNum
	}
	return a.String() < b.String()
}

// collect converts the script's globals into the Result.
func collect(L *lua.LState, lib *vzLib, res *Result) error {
	switch v := L.GetGlobal(ResultVar).(type) {
	case *lua.LNilType:
	case *lua.LTable:
		res.Table = tableResult(v)
	case lua.LString, lua.LNumber, lua.LBool:
		res.Text = v.String()
	default:
		res.Text = L.ToStringMeta(v).String()
	}

	switch v := L.GetGlobal(ChartVar).(type) {
	case *lua.LNilType:
		if len(lib.charts) > 0 {
			res.Chart = lib.charts[0]
		}
	case *lua.LTable:
		c, err := chartFromLua(v)
		if err != nil {
			return err
		}
		res.Chart = c
	default:
		return fmt.Errorf("%s must be a chart table, got %s", ChartVar, v.Type().String())
	}
	if len(lib.charts) > 1 {
		res.Notes = append(res.Notes, fmt.Sprintf("%d charts were produced; showing one", len(lib.charts)))
	}
	return nil
}

// tableResult converts a Lua table: frames and arrays of records become
// tables, arrays of scalars a one-column table, maps a key/value table.
func tableResult(t *lua.LTable) *Table {
	if isFrame(t) {
		return recordsTable(frameColumns(t), frameRows(t))
	}
	if n := t.Len(); n > 0 {
		vals := arrayValues(t)
		var recs []*lua.LTable
		for _, v := range vals {
			if r, ok := v.(*lua.LTable); ok {
				recs = append(recs, r)
			}
		}
		if len(recs) == len(vals) {
			return recordsTable(nil, recs)
		}
		tbl := &Table{Columns: []string{"value"}}
		for _, v := range vals {
			tbl.Rows = append(tbl.Rows, []string{cellString(v)})
		}
		return tbl
	}

	type kv struct{ k, v lua.LValue }
	var pairs []kv
	t.ForEach(func(k, v lua.LValue) {
		pairs = append(pairs, kv{k, v})
	})
	if len(pairs) == 0 {
		return &Table{Columns: []string{"key", "value"}}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return lessValue(pairs[i].k, pairs[j].k) })
	tbl := &Table{Columns: []string{"key", "value"}}
	for _, p := range pairs {
		tbl.Rows = append(tbl.Rows, []string{cellString(p.k), cellString(p.v)})
	}
	return tbl
}

func recordsTable(columns []string, rows []*lua.LTable) *Table {
	positional := len(rows) > 0 && rows[0].Len() > 0
	if len(columns) == 0 {
		if positional {
			for i := 1; i <= rows[0].Len(); i++ {
				columns = append(columns, strconv.Itoa(i))
			}
		} else {
			seen := map[string]bool{}
			for _, r := range rows {
				r.ForEach(func(k, _ lua.LValue) {
					if s, ok := k.(lua.LString); ok && !seen[string(s)] {
						seen[string(s)] = true
						columns = append(columns, string(s))
					}
				})
			}
			sort.Strings(columns)
		}
	}
	tbl := &Table{Columns: columns}
	for _, r := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			var v lua.LValue
			if r.Len() > 0 {
				v = r.RawGetInt(j + 1)
			} else {
				v = r.RawGetString(c)
			}
			cells[j] = cellString(v)
		}
		tbl.Rows = append(tbl.Rows, cells)
	}
	return tbl
}
