package executor

// Global names shared between the prompt and the interpreter.
const (
	DataVar   = "df"
	HelperVar = "vz"
	ResultVar = "result"
	ChartVar  = "chart"
)

// APIReference describes the script environment. It is embedded verbatim in prompts.
const APIReference = `Environment (Lua 5.1):
- df is the dataset: df.name, df.columns (array of column names), df.nrows,
  df.rows[i][name] with i starting at 1. Numeric cells are numbers, missing cells are nil.
- A "frame" is a table {columns = {...}, rows = {{name = value, ...}, ...}}. df is a frame.
- vz.column(frame, name) -> array of the non-missing values of a column
- vz.unique(frame, name) -> sorted array of distinct values
- vz.sum / vz.mean / vz.median / vz.min / vz.max / vz.count (frame, name) or (array) -> number
- vz.round(x, digits) -> number
- vz.group(frame, by, name, agg) -> frame with columns {by, name}, one row per group sorted by key;
  agg is "mean" (default), "sum", "count", "min", "max" or "median"
- vz.filter(frame, function(row) return <condition> end) -> frame
- vz.sort(frame, name, descending) -> frame
- vz.head(frame, n) -> frame
- vz.frame(columns, rows) -> frame (rows may be arrays or {name = value} tables)
- vz.bar(labels, values, opts) or vz.bar(frame, label_col, value_col, opts) -> chart
- vz.line(x, y, opts) / vz.scatter(x, y, opts), or (frame, x_col, y_col, opts) -> chart
- vz.pie(labels, values, opts) or vz.pie(frame, label_col, value_col, opts) -> chart
- vz.hist(values, bins, opts) or vz.hist(frame, name, bins, opts) -> chart
- opts = {title = "...", xlabel = "...", ylabel = "..."}
Outputs:
- Assign the final answer to the global variable result: a frame, a {key = value} table,
  an array, a string or a number.
- Assign a chart returned by a vz chart function to the global variable chart.
- Text written with print(...) is shown to the user.`
