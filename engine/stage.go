package engine

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/event"
	"github.com/hupe1980/agentpack/model"
	"github.com/hupe1980/agentpack/protocol"
	"github.com/hupe1980/agentpack/script"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StageResult is the outcome of one input. A skipped input keeps its slot in
// the outputs with a nil value.
type StageResult struct {
	Index   int
	Skipped bool
	Reason  string
	Value   any
}

const (
	reasonDataSkip     = "skipped by data script"
	reasonOutputSkip   = "skipped by output script"
	reasonRequestOnly  = "dry run: request only"
	reasonResponseOnly = "dry run: response only"
)

// runStages drives one input through data, instruction, AI call and output.
func (e *Engine) runStages(ctx context.Context, r *run, index int, input any) (res StageResult, err error) {
	if err := ctx.Err(); err != nil {
		return StageResult{}, err
	}

	ctx, span := e.tracer.Start(ctx, "agentpack.task", trace.WithAttributes(
		attribute.String("agentpack.run_id", r.id),
		attribute.Int("agentpack.input_index", index),
	))
	defer func() { endSpan(span, err) }()

	ctx = script.WithConsole(ctx, func(level, msg string) {
		e.publisher.Publish(r.taskEvent(event.TypeScriptLog, index).WithMessage(msg).WithData(map[string]any{"level": level}))
	})

	cbCtx := &CallbackContext{RunID: r.id, Agent: r.agent, InputIndex: index, Input: input}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTask, cbCtx); err != nil {
		return StageResult{}, err
	}
	e.publisher.Publish(r.taskEvent(event.TypeTaskStarted, index))

	res, err = e.pipeline(ctx, r, index, input)
	if err != nil {
		return StageResult{}, err
	}

	if res.Skipped {
		e.publisher.Publish(r.taskEvent(event.TypeTaskSkipped, index).WithMessage(res.Reason))
	} else {
		e.publisher.Publish(r.taskEvent(event.TypeTaskCompleted, index))
	}

	cbCtx.Result = &res
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTask, cbCtx); err != nil {
		return StageResult{}, err
	}
	return res, nil
}

func (e *Engine) pipeline(ctx context.Context, r *run, index int, input any) (StageResult, error) {
	skipped := func(reason string) (StageResult, error) {
		return StageResult{Index: index, Skipped: true, Reason: reason}, nil
	}

	// Data
	var data any
	if r.agent.HasData() {
		value, err := e.evaluate(ctx, core.StageData, r.agent.Data, map[string]any{
			"input":  input,
			"shared": r.shared,
			"CTX":    r.literals,
		})
		if err != nil {
			return StageResult{}, err
		}
		sv, err := protocol.ParseStage(core.StageData, value)
		if err != nil {
			return StageResult{}, err
		}
		switch v := sv.(type) {
		case protocol.Skip:
			return skipped(v.ReasonOr(reasonDataSkip))
		case protocol.Data:
			data = v.Value
		default:
			return StageResult{}, core.NewProtocolError(core.StageData, "unexpected directive %T", sv)
		}
	}

	// Instruction
	messages, err := e.render(r.agent.Parts, map[string]any{
		"data":   data,
		"input":  input,
		"shared": r.shared,
	})
	if err != nil {
		return StageResult{}, err
	}
	if r.opts.Verbose || r.opts.DryMode == DryModeRequestOnly {
		e.publisher.Publish(r.taskEvent(event.TypeInstruction, index).WithData(messages))
	}
	if r.opts.DryMode == DryModeRequestOnly {
		return skipped(reasonRequestOnly)
	}

	// AI call
	var (
		aiResult map[string]any
		content  any
	)
	if len(messages) > 0 {
		resp, err := e.chat(ctx, r, index, input, messages)
		if err != nil {
			return StageResult{}, err
		}
		aiResult = toAIResult(resp)
		content = resp.Content
		if r.opts.Verbose || r.opts.DryMode == DryModeResponseOnly {
			e.publisher.Publish(r.taskEvent(event.TypeAIResponse, index).WithMessage(resp.Content).WithData(aiResult))
		}
	}
	if r.opts.DryMode == DryModeResponseOnly {
		return skipped(reasonResponseOnly)
	}

	// Output
	if !r.agent.HasOutput() {
		return StageResult{Index: index, Value: content}, nil
	}
	value, err := e.evaluate(ctx, core.StageOutput, r.agent.Output, map[string]any{
		"input":     input,
		"data":      data,
		"shared":    r.shared,
		"ai_result": aiResult,
		"CTX":       r.literals,
	})
	if err != nil {
		return StageResult{}, err
	}
	sv, err := protocol.ParseStage(core.StageOutput, value)
	if err != nil {
		return StageResult{}, err
	}
	switch v := sv.(type) {
	case protocol.Skip:
		return skipped(v.ReasonOr(reasonOutputSkip))
	case protocol.Data:
		return StageResult{Index: index, Value: v.Value}, nil
	default:
		return StageResult{}, core.NewProtocolError(core.StageOutput, "unexpected directive %T", sv)
	}
}

// render renders every prompt part and drops the ones that are blank.
func (e *Engine) render(parts []core.PromptPart, data map[string]any) ([]model.Message, error) {
	messages := make([]model.Message, 0, len(parts))
	for _, part := range parts {
		text, err := e.renderer.Render(part.Content, data)
		if err != nil {
			return nil, &core.ScriptError{Stage: core.StageInstruction, Err: err}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		messages = append(messages, model.Message{Role: part.Role, Content: text})
	}
	return messages, nil
}

func (e *Engine) chat(ctx context.Context, r *run, index int, input any, messages []model.Message) (*model.Response, error) {
	req := model.Request{
		Model:       r.agent.Options.ResolveModel(),
		Messages:    messages,
		Temperature: r.agent.Options.Temperature,
	}
	if e.model == nil {
		return nil, &core.ChatError{Model: req.Model, Err: ErrNoModel}
	}

	cbCtx := &CallbackContext{RunID: r.id, Agent: r.agent, InputIndex: index, Input: input, Request: &req}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, cbCtx); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "agentpack.chat", trace.WithAttributes(
		attribute.String("gen_ai.request.model", req.Model),
	))
	start := time.Now()
	resp, err := model.Chat(ctx, e.model, req)
	if err != nil {
		endSpan(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &core.ChatError{Model: req.Model, Err: err}
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		)
	}
	endSpan(span, nil)

	e.logger.Debug("llm call",
		"run_id", r.id,
		"input_index", index,
		"model", resp.Model,
		"duration", time.Since(start),
		"finish_reason", resp.FinishReason,
	)

	cbCtx.Response = resp
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, cbCtx); err != nil {
		return nil, err
	}
	return resp, nil
}

// toAIResult shapes a model response for output scripts.
func toAIResult(resp *model.Response) map[string]any {
	usage := map[string]any{
		"prompt_tokens":     0,
		"completion_tokens": 0,
		"total_tokens":      0,
	}
	if resp.Usage != nil {
		usage["prompt_tokens"] = resp.Usage.PromptTokens
		usage["completion_tokens"] = resp.Usage.CompletionTokens
		usage["total_tokens"] = resp.Usage.TotalTokens
	}
	return map[string]any{
		"content":    resp.Content,
		"model_name": resp.Model,
		"usage":      usage,
	}
}
