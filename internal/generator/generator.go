// Package generator drives the generation port and turns untrusted
// model output into validated questions matching a requested
// distribution.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/acadlab/examsmith/internal/llm"
	"github.com/acadlab/examsmith/internal/llm/prompts"
	"github.com/acadlab/examsmith/internal/model"
)

// repairAttempts bounds per-item re-generation so a persistently
// malformed upstream cannot make Generate loop forever.
const repairAttempts = 3

// GenerationError reports an upstream failure: the model call errored,
// timed out, or returned output that could not be recovered.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DistributionMismatchError reports that the model's per-kind output
// did not match the requested distribution. The batch is rejected
// rather than padded or truncated.
type DistributionMismatchError struct {
	Kind    model.QuestionKind
	Want    int
	Got     int
	Missing bool
}

func (e *DistributionMismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("generated output missing %s array (want %d items)", e.Kind, e.Want)
	}
	return fmt.Sprintf("generated %d %s questions, requested %d", e.Got, e.Kind, e.Want)
}

// Params describes one generation request.
type Params struct {
	Subject        string
	Difficulty     model.Difficulty
	TotalQuestions int
	Reference      string
	Distribution   *model.Distribution
	PreferredKind  string
}

// Report records per-batch outcomes so callers see exactly which items
// needed repair instead of a single aggregate failure.
type Report struct {
	Total    int `json:"total"`
	Repaired int `json:"repaired"`
	Flagged  int `json:"flagged"`
}

// Result is a generated batch plus its outcome report.
type Result struct {
	Questions []model.GeneratedQuestion `json:"questions"`
	Report    Report                    `json:"report"`
}

// Generator orchestrates prompt building, the port call, parsing,
// validation, and the bounded repair loop.
type Generator struct {
	port      llm.Port
	cfg       llm.GenerationConfig
	streaming bool
}

// New creates a Generator. Streaming support is detected once here, so
// no call path probes for an optional method at runtime.
func New(port llm.Port, cfg llm.GenerationConfig) *Generator {
	_, canStream := port.(llm.StreamingPort)
	return &Generator{
		port:      port,
		cfg:       cfg,
		streaming: canStream && cfg.Stream,
	}
}

// Generate produces the requested batch of questions. With a
// distribution it returns exactly the requested counts or a
// DistributionMismatchError; items the repair loop could not fix are
// returned flagged, never dropped.
func (g *Generator) Generate(ctx context.Context, p Params) (*Result, error) {
	if p.Distribution != nil && p.Distribution.Total() != p.TotalQuestions {
		return nil, &model.DistributionError{Sum: p.Distribution.Total(), Total: p.TotalQuestions}
	}

	var questions []model.GeneratedQuestion
	var err error
	if p.Distribution != nil {
		questions, err = g.generateDistributed(ctx, p, *p.Distribution)
	} else {
		questions, err = g.generateFlat(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	report := Report{Total: len(questions)}
	for i := range questions {
		if !questions[i].Flagged {
			continue
		}
		if g.repair(ctx, p, &questions[i]) {
			report.Repaired++
		} else {
			report.Flagged++
		}
	}

	slog.Info("generated question batch",
		"subject", p.Subject,
		"total", report.Total,
		"repaired", report.Repaired,
		"flagged", report.Flagged,
	)
	return &Result{Questions: questions, Report: report}, nil
}

// complete runs one port call under the configured timeout. The
// json_object response format pins output to a top-level object, so
// the hint is only sent when the contract is an object; flat mode
// expects a top-level array and must not request it.
func (g *Generator) complete(ctx context.Context, prompt string, jsonObject bool) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	opts := llm.Options{
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		JSONOnly:    jsonObject,
	}

	var completion llm.Completion
	var err error
	if g.streaming {
		completion, err = g.port.(llm.StreamingPort).CompleteStream(ctx, prompt, opts)
	} else {
		completion, err = g.port.Complete(ctx, prompt, opts)
	}
	if err != nil {
		return "", &GenerationError{Stage: "completion", Err: err}
	}
	return completion.Text, nil
}

func (g *Generator) generateDistributed(ctx context.Context, p Params, d model.Distribution) ([]model.GeneratedQuestion, error) {
	prompt := prompts.BuildDistribution(promptParams(p), d)
	text, err := g.complete(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	obj, err := llm.ParseObject(text)
	if err != nil {
		return nil, err
	}

	var questions []model.GeneratedQuestion
	for _, kind := range model.Kinds {
		want := d.Of(kind)
		raw, ok := obj[prompts.JSONKey(kind)]
		if !ok {
			if want == 0 {
				continue
			}
			return nil, &DistributionMismatchError{Kind: kind, Want: want, Missing: true}
		}

		var items []rawItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, &GenerationError{Stage: "decode " + prompts.JSONKey(kind), Err: err}
		}
		if len(items) != want {
			return nil, &DistributionMismatchError{Kind: kind, Want: want, Got: len(items)}
		}

		for _, item := range items {
			questions = append(questions, item.toQuestion(kind))
		}
	}
	return questions, nil
}

func (g *Generator) generateFlat(ctx context.Context, p Params) ([]model.GeneratedQuestion, error) {
	prompt := prompts.BuildFlat(promptParams(p))
	text, err := g.complete(ctx, prompt, false)
	if err != nil {
		return nil, err
	}

	arr, err := llm.ParseArray(text)
	if err != nil {
		return nil, err
	}

	questions := make([]model.GeneratedQuestion, 0, len(arr))
	for i, raw := range arr {
		var item rawItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, &GenerationError{Stage: fmt.Sprintf("decode item %d", i), Err: err}
		}
		questions = append(questions, item.toQuestion(canonicalKind(item.Type)))
	}
	return questions, nil
}

// repair re-generates a single flagged item with a one-count
// distribution of its kind, splicing the replacement in place.
// Failures inside the loop are absorbed locally; this is the only spot
// where that happens, and only up to repairAttempts.
func (g *Generator) repair(ctx context.Context, p Params, q *model.GeneratedQuestion) bool {
	single := model.Single(q.Kind)
	params := promptParams(p)
	params.Total = 1

	for attempt := 1; attempt <= repairAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		text, err := g.complete(ctx, prompts.BuildDistribution(params, single), true)
		if err != nil {
			slog.Debug("repair attempt failed", "kind", q.Kind, "attempt", attempt, "error", err)
			continue
		}
		obj, err := llm.ParseObject(text)
		if err != nil {
			slog.Debug("repair parse failed", "kind", q.Kind, "attempt", attempt, "error", err)
			continue
		}
		raw, ok := obj[prompts.JSONKey(q.Kind)]
		if !ok {
			continue
		}
		var items []rawItem
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			continue
		}

		candidate := items[0].toQuestion(q.Kind)
		if candidate.Flagged {
			continue
		}

		// Splice in place, keeping the original batch position.
		*q = candidate
		return true
	}
	return false
}

func promptParams(p Params) prompts.Params {
	return prompts.Params{
		Subject:       p.Subject,
		Difficulty:    p.Difficulty,
		Total:         p.TotalQuestions,
		Reference:     p.Reference,
		PreferredKind: p.PreferredKind,
	}
}
