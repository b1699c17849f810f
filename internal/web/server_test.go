package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/metrics"
	"github.com/KaramelBytes/vizloom/internal/session"
)

const titanicCSV = "Pclass,Age,Fare\n1,38,71.2833\n1,35,53.1\n1,54,51.8625\n2,14,30.0708\n2,27,13\n3,22,7.25\n3,26,7.925\n3,,8.05\n"

const groupCode = `local g = vz.group(df, "Pclass", "Fare", "mean")
for _, r in ipairs(g.rows) do print(r.Pclass, vz.round(r.Fare, 2)) end
result = g
vz.bar(g, "Pclass", "Fare", {title = "Average fare"})`

type stubRuntime struct{ text string }

func (s stubRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Content: s.text}}}}, nil
}

type harness struct {
	srv    *httptest.Server
	client *http.Client
	keys   []string
}

func newHarness(t *testing.T, reply string, opt Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{}
	rf := func(key string) (ai.Runtime, error) {
		h.keys = append(h.keys, key)
		return stubRuntime{text: reply}, nil
	}
	if opt.Dataset == (dataset.Options{}) {
		opt.Dataset = dataset.DefaultOptions()
	}
	s, err := New(opt, rf,
		executor.New(executor.Options{}),
		session.NewStore(session.Options{MaxHistory: 10}),
		metrics.New(),
		zaptest.NewLogger(t))
	require.NoError(t, err)
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{Jar: jar}
	return h
}

func (h *harness) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) string {
	t.Helper()
	resp, err := h.client.PostForm(h.srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return string(b)
}

func (h *harness) upload(t *testing.T, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := h.client.Post(h.srv.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

type historyBody struct {
	History []entryView `json:"history"`
}

func (h *harness) history(t *testing.T) []entryView {
	t.Helper()
	code, body := h.get(t, "/api/v1/history")
	require.Equal(t, http.StatusOK, code)
	var hb historyBody
	require.NoError(t, json.Unmarshal([]byte(body), &hb))
	return hb.History
}

func TestDashboardUploadAskFlow(t *testing.T) {
	h := newHarness(t, "```lua\n"+groupCode+"\n```", Options{Provider: "gemini"})

	code, page := h.get(t, "/")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, page, DefaultQuery)
	assert.Contains(t, page, "executes model-generated code locally")

	page = h.postForm(t, "/key", url.Values{"api_key": {"secret-key"}})
	assert.Contains(t, page, "API key saved")

	page = h.upload(t, "titanic.csv", titanicCSV)
	assert.Contains(t, page, "Loaded titanic.csv: 8 rows, 3 columns.")
	assert.Contains(t, page, "Show full dataset")

	page = h.postForm(t, "/ask", url.Values{"query": {"average fare by Pclass"}})
	assert.Contains(t, page, "average fare by Pclass")
	assert.Contains(t, page, "58.75")
	assert.Contains(t, page, "data:image/png;base64,")
	assert.Contains(t, page, `id="latest"`)

	hist := h.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, groupCode, hist[0].Code)
	assert.Equal(t, "1\t58.75\n2\t21.54\n3\t7.74\n", hist[0].Output)
	require.NotNil(t, hist[0].Table)
	assert.Equal(t, []string{"Pclass", "Fare"}, hist[0].Table.Columns)
	assert.NotEmpty(t, hist[0].ChartPNG)
	assert.Equal(t, []string{"secret-key"}, h.keys)
}

func TestAskWithoutDatasetShowsInlineError(t *testing.T) {
	h := newHarness(t, "```lua\nresult = 1\n```", Options{})
	page := h.postForm(t, "/ask", url.Values{"query": {"anything"}})
	assert.Contains(t, page, "Upload a dataset before asking a question.")

	hist := h.history(t)
	require.Len(t, hist, 1)
	assert.Equal(t, "load", hist[0].Stage)
}

func TestAskWithoutCodeBlockShowsResponse(t *testing.T) {
	h := newHarness(t, "I cannot help with that.", Options{})
	h.upload(t, "titanic.csv", titanicCSV)
	page := h.postForm(t, "/ask", url.Values{"query": {"q"}})
	assert.Contains(t, page, "No code found in the model response")
	assert.Contains(t, page, "I cannot help with that.")
}

func TestUploadErrorsAreFlashed(t *testing.T) {
	h := newHarness(t, "", Options{})
	page := h.upload(t, "bad.csv", "a,b\n1,2,3\n")
	assert.Contains(t, page, "row 1: expected 2 fields, saw 3")
	assert.Contains(t, page, "Upload a CSV file to get started.")

	page = h.upload(t, "empty.csv", "")
	assert.Contains(t, page, "The uploaded file is empty.")
}

func TestSecondUploadReplacesDataset(t *testing.T) {
	h := newHarness(t, "```lua\nresult = table.concat(df.columns, \",\")\n```", Options{})
	h.upload(t, "titanic.csv", titanicCSV)
	h.postForm(t, "/ask", url.Values{"query": {"columns"}})
	page := h.upload(t, "sales.csv", "Region,Revenue\nnorth,1\n")
	assert.NotContains(t, page, "Pclass<br>")
	h.postForm(t, "/ask", url.Values{"query": {"columns"}})

	hist := h.history(t)
	require.Len(t, hist, 2)
	assert.Equal(t, "Pclass,Age,Fare", hist[0].Text)
	assert.Equal(t, "Region,Revenue", hist[1].Text)
}

func TestFullDatasetAndClear(t *testing.T) {
	h := newHarness(t, "```lua\nresult = 1\n```", Options{PreviewRows: 2})
	h.upload(t, "titanic.csv", titanicCSV)

	_, page := h.get(t, "/")
	assert.NotContains(t, page, "7.925")
	_, page = h.get(t, "/?full=1")
	assert.Contains(t, page, "7.925")
	assert.Contains(t, page, "Show preview only")

	h.postForm(t, "/ask", url.Values{"query": {"q"}})
	require.Len(t, h.history(t), 1)
	page = h.postForm(t, "/clear", nil)
	assert.Contains(t, page, "History cleared.")
	assert.Empty(t, h.history(t))
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, "```lua\nresult = 1\n```", Options{})
	h.upload(t, "titanic.csv", titanicCSV)
	h.postForm(t, "/ask", url.Values{"query": {"q"}})

	other := &harness{srv: h.srv, client: &http.Client{}}
	assert.Empty(t, other.history(t))
}

func TestUploadSizeLimit(t *testing.T) {
	h := newHarness(t, "", Options{MaxUploadBytes: 64})
	page := h.upload(t, "big.csv", "a,b\n"+strings.Repeat("1,2\n", 100))
	assert.Contains(t, page, "Upload a CSV file to get started.")
	assert.NotContains(t, page, "Loaded big.csv")
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, "", Options{})
	h.upload(t, "titanic.csv", titanicCSV)

	code, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"healthy"`)

	code, body = h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `vizloom_uploads_total{outcome="ok"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, "", Options{AllowedOrigins: []string{"http://example.test"}})
	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/v1/history", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://example.test", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDivisionByZeroChartDoesNotBlockSession(t *testing.T) {
	reply := "```lua\nlocal g = vz.group(df, \"Pclass\", \"Fare\", \"mean\")\n" +
		"g.rows[1].Fare = g.rows[1].Fare / 0\nchart = vz.bar(g, \"Pclass\", \"Fare\")\n```"
	h := newHarness(t, reply, Options{})
	h.client.Timeout = 10 * time.Second
	h.upload(t, "titanic.csv", titanicCSV)

	h.postForm(t, "/ask", url.Values{"query": {"fare ratio"}})
	page := h.postForm(t, "/ask", url.Values{"query": {"fare ratio again"}})
	assert.Contains(t, page, "non-finite")

	hist := h.history(t)
	require.Len(t, hist, 2)
	for _, e := range hist {
		assert.Equal(t, "execute", e.Stage)
		assert.Empty(t, e.ChartPNG)
	}
}
