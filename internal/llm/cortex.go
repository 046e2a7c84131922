// Package llm answers prompts through Snowflake Cortex COMPLETE.
package llm

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	stderrors "cyphr-server/internal/common/errors"
	"cyphr-server/internal/common/logger"
)

// Request carries one completion call. Model and Temperature fall back to the
// processor defaults when unset.
type Request struct {
	Prompt       string
	Model        string
	Temperature  float64
	Instructions string
}

// Processor answers completion requests.
type Processor interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var multiNewline = regexp.MustCompile(`\n{3,}`)

// CortexProcessor runs completions as warehouse SQL through the Snowflake
// driver. The warehouse, database, and role are fixed by the connection DSN.
// Each query attempt runs under queryTimeout; retryable failures are retried
// up to maxRetries more times while the caller's context is still alive.
type CortexProcessor struct {
	db           *sql.DB
	defaultModel string
	queryTimeout time.Duration
	maxRetries   int
	logger       logger.Logger
}

func NewCortexProcessor(db *sql.DB, defaultModel string, queryTimeout time.Duration, maxRetries int, log logger.Logger) *CortexProcessor {
	return &CortexProcessor{
		db:           db,
		defaultModel: defaultModel,
		queryTimeout: queryTimeout,
		maxRetries:   maxRetries,
		logger:       log.WithFields(map[string]interface{}{"component": "cortex"}),
	}
}

// Complete sends a prompt to the model and returns its reply text.
func (p *CortexProcessor) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	prompt := Preprocess(req.Prompt)
	if req.Instructions != "" {
		prompt = fmt.Sprintf("System: %s\n\n%s", req.Instructions, prompt)
	}

	// Cortex COMPLETE takes string literals, so single quotes are doubled.
	safePrompt := strings.ReplaceAll(prompt, "'", "''")
	safeModel := strings.ReplaceAll(model, "'", "''")
	query := fmt.Sprintf("SELECT SNOWFLAKE.CORTEX.COMPLETE('%s', '%s') AS processed_result", safeModel, safePrompt)

	p.logger.Info("executing cortex completion", map[string]interface{}{
		"model":        model,
		"promptLength": len(prompt),
	})

	var result string
	var err error
	for attempt := 0; ; attempt++ {
		result, err = p.runQuery(ctx, model, query)
		if err == nil {
			break
		}
		se, ok := stderrors.AsStandardError(err)
		if !ok || !se.Retryable || attempt >= p.maxRetries || ctx.Err() != nil {
			return "", err
		}
		p.logger.Warn("cortex completion failed, retrying", map[string]interface{}{
			"model":   model,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	p.logger.Debug("cortex completion finished", map[string]interface{}{
		"model":          model,
		"responseLength": len(result),
	})
	return result, nil
}

// runQuery executes one completion attempt under the configured deadline.
func (p *CortexProcessor) runQuery(ctx context.Context, model, query string) (string, error) {
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}

	var result string
	if err := p.db.QueryRowContext(ctx, query).Scan(&result); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", stderrors.NewLLMTimeoutError(model)
		}
		return "", stderrors.NewLLMQueryFailedError(model, err)
	}
	return result, nil
}

// Preprocess trims the prompt and collapses runs of blank lines.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	return multiNewline.ReplaceAllString(text, "\n\n")
}

// EstimateTokens approximates token usage at four characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
