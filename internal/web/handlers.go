package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
	"github.com/KaramelBytes/vizloom/internal/render"
	"github.com/KaramelBytes/vizloom/internal/session"
)

// DefaultQuery pre-fills the question box.
const DefaultQuery = "Group by class or category and compare averages."

var templateFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

type columnView struct {
	Name string
	Kind dataset.Kind
}

type datasetView struct {
	Name     string
	Rows     int
	Cols     int
	Columns  []columnView
	Preview  [][]string
	Full     bool
	Warnings []string
}

// entryView is the display and JSON form of one interaction.
type entryView struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	Model       string          `json:"model,omitempty"`
	RawResponse string          `json:"raw_response,omitempty"`
	Code        string          `json:"code,omitempty"`
	Output      string          `json:"output,omitempty"`
	Text        string          `json:"text,omitempty"`
	Table       *executor.Table `json:"table,omitempty"`
	ChartPNG    string          `json:"chart_png,omitempty"`
	Stage       string          `json:"error_stage,omitempty"`
	Error       string          `json:"error,omitempty"`
	Notes       []string        `json:"notes,omitempty"`
	Started     time.Time       `json:"started"`
}

// ChartSrc is the chart as an inline image URL.
func (e entryView) ChartSrc() template.URL {
	return template.URL("data:image/png;base64," + e.ChartPNG)
}

func viewOf(e session.Entry) entryView {
	it := e.Interaction
	v := entryView{
		ID:          it.ID,
		Query:       it.Query,
		Model:       it.Model,
		RawResponse: it.RawResponse,
		Code:        it.Code,
		Stage:       it.Stage(),
		Error:       e.Message,
		Notes:       it.Notes,
		Started:     it.Started,
	}
	if it.Result != nil {
		v.Output = it.Result.Output
		v.Text = it.Result.Text
		v.Table = it.Result.Table
	}
	var rerr *executor.RuntimeError
	if errors.As(it.Err, &rerr) {
		v.Output = rerr.Output
	}
	if len(e.ChartPNG) > 0 {
		v.ChartPNG = base64.StdEncoding.EncodeToString(e.ChartPNG)
	}
	return v
}

func viewsOf(entries []session.Entry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		if e.Interaction != nil {
			out = append(out, viewOf(e))
		}
	}
	return out
}

func (s *Server) dashboard(c *gin.Context) {
	sess, cs := s.current(c)
	var flashes []string
	for _, f := range cs.Flashes() {
		if m, ok := f.(string); ok {
			flashes = append(flashes, m)
		}
	}
	if len(flashes) > 0 {
		s.save(c, cs)
	}

	data := gin.H{
		"Provider":     s.opt.Provider,
		"HasKey":       sess.APIKey() != "",
		"Flashes":      flashes,
		"DefaultQuery": DefaultQuery,
		"History":      viewsOf(sess.History()),
		"MaxUploadMB":  s.opt.MaxUploadBytes >> 20,
	}
	if ds := sess.Dataset(); ds != nil {
		full := c.Query("full") == "1"
		dv := datasetView{Name: ds.Name, Rows: ds.NumRows(), Cols: ds.NumCols(), Full: full, Warnings: ds.Warnings}
		for _, col := range ds.Columns {
			dv.Columns = append(dv.Columns, columnView{Name: col.Name, Kind: col.Kind})
		}
		if full {
			dv.Preview = ds.Rows()
		} else {
			dv.Preview = ds.Head(s.opt.PreviewRows)
		}
		data["Dataset"] = dv
	}
	c.HTML(http.StatusOK, "dashboard.html", data)
}

func (s *Server) setKey(c *gin.Context) {
	sess, cs := s.current(c)
	key := strings.TrimSpace(c.PostForm("api_key"))
	sess.SetAPIKey(key)
	msg := "API key saved for this session."
	if key == "" {
		msg = "API key cleared."
	}
	s.flashRedirect(c, cs, msg)
}

func (s *Server) upload(c *gin.Context) {
	sess, cs := s.current(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opt.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		s.rec.Upload(false)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.flashRedirect(c, cs, fmt.Sprintf("File is larger than the %d MB upload limit.", s.opt.MaxUploadBytes>>20))
			return
		}
		s.flashRedirect(c, cs, "Choose a file to upload.")
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.rec.Upload(false)
		s.flashRedirect(c, cs, "Could not open the uploaded file.")
		return
	}
	defer f.Close()

	ds, err := pipeline.LoadDataset(fh.Filename, f, s.opt.Dataset)
	if err != nil {
		s.rec.Upload(false)
		s.log.Info("upload rejected", zap.String("session", sess.ID), zap.String("file", fh.Filename), zap.Error(err))
		s.flashRedirect(c, cs, pipeline.UserMessage(err))
		return
	}
	sess.ReplaceDataset(ds)
	s.rec.Upload(true)
	s.log.Info("dataset loaded",
		zap.String("session", sess.ID),
		zap.String("file", ds.Name),
		zap.Int("rows", ds.NumRows()),
		zap.Int("cols", ds.NumCols()))
	s.flashRedirect(c, cs, fmt.Sprintf("Loaded %s: %d rows, %d columns.", ds.Name, ds.NumRows(), ds.NumCols()))
}

func (s *Server) ask(c *gin.Context) {
	sess, _ := s.current(c)
	query := strings.TrimSpace(c.PostForm("query"))

	sess.Serialize(func() {
		var (
			it  *pipeline.Interaction
			err error
		)
		rt, rerr := s.runtime(sess.APIKey())
		if rerr != nil {
			err = &pipeline.StageError{Stage: pipeline.StageModel, Err: rerr}
			it = &pipeline.Interaction{Query: query, Model: s.opt.Pipeline.Model, Err: err, Started: time.Now(), Finished: time.Now()}
		} else {
			p := pipeline.New(rt, s.exec, s.opt.Pipeline, pipeline.WithLogger(s.log), pipeline.WithMetrics(s.rec))
			it, err = p.Ask(c.Request.Context(), sess.Dataset(), query)
		}

		entry := session.Entry{Interaction: it, Message: pipeline.UserMessage(err)}
		if it.Result != nil && it.Result.Chart != nil {
			png, cerr := render.ChartPNG(it.Result.Chart, s.opt.ChartWidth, s.opt.ChartHeight)
			if cerr != nil {
				it.Notes = append(it.Notes, "chart could not be drawn: "+cerr.Error())
			} else {
				entry.ChartPNG = png
			}
		}
		sess.Append(entry)
	})
	c.Redirect(http.StatusSeeOther, "/#latest")
}

func (s *Server) clear(c *gin.Context) {
	sess, cs := s.current(c)
	sess.ClearHistory()
	s.flashRedirect(c, cs, "History cleared.")
}

func (s *Server) history(c *gin.Context) {
	sess, _ := s.current(c)
	c.JSON(http.StatusOK, gin.H{"history": viewsOf(sess.History())})
}
