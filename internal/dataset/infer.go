package dataset

import (
	"strconv"
	"strings"
	"time"
)

// categoricalMaxUnique bounds distinct values for a column to count as categorical
// regardless of its size.
const categoricalMaxUnique = 50

type colTally struct {
	numCnt, dtCnt, txtCnt int
	vals                  []float64
	ok                    []bool
	cats                  map[string]int
}

// infer decides each column's Kind by the predominant parsed type and keeps
// parsed numbers for numeric columns.
func infer(d *Dataset, opt Options) {
	ncol := len(d.Columns)
	d.nums = make([][]float64, ncol)
	d.numOK = make([][]bool, ncol)
	for j := 0; j < ncol; j++ {
		t := colTally{
			vals: make([]float64, len(d.rows)),
			ok:   make([]bool, len(d.rows)),
			cats: map[string]int{},
		}
		nonNull := 0
		for i, row := range d.rows {
			v := row[j]
			if v == "" {
				continue
			}
			nonNull++
			if f, ok := parseNumeric(v, opt); ok {
				t.numCnt++
				t.vals[i] = f
				t.ok[i] = true
				continue
			}
			if _, ok := parseTimeMaybe(v); ok {
				t.dtCnt++
				continue
			}
			t.txtCnt++
			if len(t.cats) <= 10000 {
				t.cats[v]++
			}
		}
		kind := KindUnknown
		switch {
		case t.numCnt > 0 && t.numCnt >= t.dtCnt && t.numCnt >= t.txtCnt:
			kind = KindNumeric
			d.nums[j] = t.vals
			d.numOK[j] = t.ok
		case t.dtCnt > 0 && t.dtCnt >= t.txtCnt:
			kind = KindDatetime
		case t.txtCnt > 0 && (len(t.cats) <= categoricalMaxUnique || len(t.cats)*2 <= nonNull):
			kind = KindCategorical
		case t.txtCnt > 0:
			kind = KindText
		}
		d.Columns[j].Kind = kind
	}
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric accepts plain and locale-formatted numbers ("1,234.5", "1.234,5",
// "12%"). With no DecimalSeparator configured the separator is guessed from
// whichever of ',' or '.' appears last.
func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\u00A0", " "))
	if raw == "" {
		return 0, false
	}
	dec, thou := opt.DecimalSeparator, opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0 && cpos > dpos:
			dec, thou = ',', '.'
		case cpos >= 0 && dpos >= 0:
			dec, thou = '.', ','
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	// ParseFloat also accepts "inf" and "infinity"; those read as text here.
	if strings.ContainsAny(raw, "iInN") {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
