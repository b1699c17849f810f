// Package pipeline runs one query through prompt assembly, the model call,
// code extraction and execution.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/logger"
	"github.com/KaramelBytes/vizloom/internal/metrics"
	"github.com/KaramelBytes/vizloom/internal/prompt"
)

// Stage names, also used as metric labels.
const (
	StageLoad    = "load"
	StagePrompt  = "prompt"
	StageModel   = "model"
	StageExtract = "extract"
	StageExecute = "execute"
)

// Options tunes a pipeline.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	SampleRows  int
	TokenLimit  int
	// RequestTimeout bounds the model call; 0 leaves it to the caller's context.
	RequestTimeout time.Duration
}

// Interaction is one query and everything derived from it.
type Interaction struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	Prompt      string           `json:"prompt,omitempty"`
	Tokens      int              `json:"prompt_tokens,omitempty"`
	Model       string           `json:"model,omitempty"`
	RawResponse string           `json:"raw_response,omitempty"`
	Code        string           `json:"code,omitempty"`
	Result      *executor.Result `json:"result,omitempty"`
	Err         error            `json:"-"`
	Notes       []string         `json:"notes,omitempty"`
	Usage       ai.Usage         `json:"usage"`
	Started     time.Time        `json:"started"`
	Finished    time.Time        `json:"finished"`
}

// Failed reports whether any stage failed.
func (it *Interaction) Failed() bool { return it != nil && it.Err != nil }

// Stage returns the failing stage, or "".
func (it *Interaction) Stage() string {
	if se, ok := AsStageError(it.Err); ok {
		return se.Stage
	}
	return ""
}

// Pipeline wires a model runtime to an executor.
type Pipeline struct {
	rt    ai.Runtime
	ex    executor.Executor
	opt   Options
	log   *zap.Logger
	rec   *metrics.Recorder
	now   func() time.Time
	newID func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.log = logger.OrNop(l) } }

// WithMetrics records stage timings and outcomes on r.
func WithMetrics(r *metrics.Recorder) Option { return func(p *Pipeline) { p.rec = r } }

// New returns a pipeline. rt may be nil for pipelines that only execute local scripts.
func New(rt ai.Runtime, ex executor.Executor, opt Options, opts ...Option) *Pipeline {
	p := &Pipeline{
		rt:    rt,
		ex:    ex,
		opt:   opt,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// LoadDataset parses an uploaded file, reporting failures as load-stage errors.
func LoadDataset(name string, r io.Reader, opt dataset.Options) (*dataset.Dataset, error) {
	ds, err := dataset.Load(name, r, opt)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	return ds, nil
}

// BuildPrompt renders the prompt for query without calling the model.
func (p *Pipeline) BuildPrompt(ds *dataset.Dataset, query string) (*prompt.Prompt, error) {
	if ds == nil {
		return nil, &StageError{Stage: StageLoad, Err: prompt.ErrNoDataset}
	}
	pr, err := prompt.Build(query, ds, prompt.Options{SampleRows: p.opt.SampleRows, TokenLimit: p.opt.TokenLimit})
	if err != nil {
		return nil, &StageError{Stage: StagePrompt, Err: err}
	}
	return pr, nil
}

// Ask runs query against ds. The returned Interaction is never nil; on
// failure it carries whatever was produced before the failing stage and the
// same error is returned.
func (p *Pipeline) Ask(ctx context.Context, ds *dataset.Dataset, query string) (*Interaction, error) {
	it := &Interaction{ID: p.newID(), Query: query, Model: p.opt.Model, Started: p.now()}
	fail := func(err error) (*Interaction, error) {
		it.Err = err
		it.Finished = p.now()
		p.rec.Query(it.Stage())
		p.log.Warn("query failed",
			zap.String("id", it.ID),
			zap.String("stage", it.Stage()),
			zap.Error(err))
		return it, err
	}

	t0 := p.now()
	pr, err := p.BuildPrompt(ds, query)
	p.rec.ObserveStage(StagePrompt, p.now().Sub(t0))
	if err != nil {
		return fail(err)
	}
	it.Prompt = pr.Text
	it.Tokens = pr.Tokens
	if pr.Truncated {
		it.Notes = append(it.Notes, "dataset context was truncated to fit the prompt token limit")
	}
	p.log.Debug("prompt built", zap.String("id", it.ID), zap.Int("tokens", pr.Tokens))

	if p.rt == nil {
		return fail(&StageError{Stage: StageModel, Err: fmt.Errorf("no model runtime configured")})
	}
	mctx := ctx
	if p.opt.RequestTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, p.opt.RequestTimeout)
		defer cancel()
	}
	t0 = p.now()
	resp, err := p.rt.Generate(mctx, ai.UserPrompt(p.opt.Model, pr.Text, p.opt.MaxTokens, p.opt.Temperature))
	p.rec.ObserveStage(StageModel, p.now().Sub(t0))
	if err != nil {
		return fail(&StageError{Stage: StageModel, Err: err})
	}
	if resp.Model != "" {
		it.Model = resp.Model
	}
	it.Usage = resp.Usage
	it.RawResponse = resp.Text()
	p.log.Info("model responded",
		zap.String("id", it.ID),
		zap.String("model", it.Model),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", p.now().Sub(t0)))
	if it.RawResponse == "" {
		return fail(&StageError{Stage: StageModel, Err: ai.ErrEmptyResponse})
	}

	block, err := ai.ExtractCode(it.RawResponse)
	if err != nil {
		return fail(&StageError{Stage: StageExtract, Err: err})
	}
	it.Code = block.Code
	if n := len(ai.ExtractAll(it.RawResponse)); n > 1 {
		it.Notes = append(it.Notes, fmt.Sprintf("response contained %d code blocks; ran the first %s block", n, langName(block.Lang)))
	}

	res, err := p.execute(ctx, ds, it.Code)
	it.Result = res
	if err != nil {
		return fail(err)
	}
	it.Notes = append(it.Notes, res.Notes...)
	it.Finished = p.now()
	p.rec.Query("ok")
	return it, nil
}

// Run executes a local script against ds; it is the execute stage on its own.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset, code string) (*executor.Result, error) {
	if ds == nil {
		return nil, &StageError{Stage: StageLoad, Err: prompt.ErrNoDataset}
	}
	return p.execute(ctx, ds, code)
}

func (p *Pipeline) execute(ctx context.Context, ds *dataset.Dataset, code string) (*executor.Result, error) {
	t0 := p.now()
	res, err := p.ex.Run(ctx, code, ds)
	p.rec.ObserveStage(StageExecute, p.now().Sub(t0))
	if err != nil {
		return res, &StageError{Stage: StageExecute, Err: err}
	}
	return res, nil
}

func langName(lang string) string {
	if lang == "" {
		return "untagged"
	}
	return lang
}
