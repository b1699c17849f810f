package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/prompt"
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// AsStageError unwraps err to a *StageError.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// UserMessage turns a pipeline error into text suitable for showing inline
// next to the query.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		parseErr *dataset.ParseError
		authErr  *ai.AuthError
		rateErr  *ai.RateLimitError
		quotaErr *ai.QuotaExceededError
		modelErr *ai.ModelNotFoundError
		badErr   *ai.BadRequestError
		srvErr   *ai.ServerError
		netErr   *ai.UnreachableError
		runErr   *executor.RuntimeError
	)
	switch {
	case errors.Is(err, prompt.ErrNoDataset):
		return "Upload a dataset before asking a question."
	case errors.Is(err, prompt.ErrEmptyQuery):
		return "Type a question first."
	case errors.Is(err, prompt.ErrTokenLimit):
		return "The dataset has too many columns for the prompt token limit; raise prompt_token_limit."
	case errors.Is(err, dataset.ErrEmptyFile):
		return "The uploaded file is empty."
	case errors.As(err, &parseErr):
		return fmt.Sprintf("Could not read the file: %v", parseErr)
	case errors.As(err, &authErr):
		return "The API key is missing or was rejected by the provider. Check the key in the sidebar."
	case errors.As(err, &quotaErr):
		return "The provider reports that the quota for this key is exhausted."
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			return fmt.Sprintf("The provider is rate limiting requests; try again in about %ds.", int(rateErr.RetryAfter.Seconds()))
		}
		return "The provider is rate limiting requests; try again shortly."
	case errors.As(err, &modelErr):
		return "The selected model is not available from this provider."
	case errors.As(err, &badErr):
		return fmt.Sprintf("The provider rejected the request: %s", badErr.Message)
	case errors.As(err, &srvErr):
		return "The provider had an internal error; try again."
	case errors.As(err, &netErr):
		return fmt.Sprintf("Could not reach the model API: %v", netErr.Err)
	case errors.Is(err, context.DeadlineExceeded):
		return "The model did not answer in time."
	case errors.Is(err, ai.ErrEmptyResponse):
		return "The model returned an empty response."
	case errors.Is(err, ai.ErrNoCodeBlock):
		return "No code found in the model response, so nothing was executed."
	case errors.As(err, &runErr):
		return "Error executing generated code: " + runErr.Message
	}
	return err.Error()
}
