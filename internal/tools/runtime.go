package tools

import (
	"context"
	"strings"

	"github.com/Andy963/ads-sub001/internal/common/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AgentInvoker is the small interface the tool runtime uses to delegate the
// "agent" tool to another registered adapter, avoiding a back-pointer to the
// orchestrator (spec.md §9 "Cyclic adapter↔tool references").
type AgentInvoker interface {
	InvokeAgentText(ctx context.Context, agentID, prompt string) (string, error)
}

// Hooks are called around every tool invocation (spec.md §4.4).
type Hooks struct {
	// OnInvoke fires before a tool runs.
	OnInvoke func(name, inputPreview string)
	// OnResult fires after a tool runs, with a truncated preview of output.
	OnResult func(name, outputPreview string, err error)
}

// Runtime parses and executes tool blocks embedded in assistant output.
type Runtime struct {
	policy  Policy
	invoker AgentInvoker
	log     *logger.Logger

	searchClient SearchClient
	vectorClient VectorSearchClient
}

// Option configures optional Runtime collaborators.
type Option func(*Runtime)

// WithSearchClient wires the external web-search collaborator behind the
// `search` tool. Omitted, the tool reports Disabled.
func WithSearchClient(c SearchClient) Option {
	return func(r *Runtime) { r.searchClient = c }
}

// WithVectorSearchClient wires the workspace-scoped semantic search
// collaborator behind the `vsearch` tool. Omitted, the tool reports Disabled.
func WithVectorSearchClient(c VectorSearchClient) Option {
	return func(r *Runtime) { r.vectorClient = c }
}

// New builds a Runtime bound to one policy and agent invoker.
func New(policy Policy, invoker AgentInvoker, log *logger.Logger, opts ...Option) *Runtime {
	r := &Runtime{policy: policy, invoker: invoker, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of running every tool block found in one assistant
// message (spec.md §4.4 "Substitution discipline").
type Result struct {
	ReplacedText string
	StrippedText string
	Invocations  int
}

const previewLen = 200

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "…"
}

// Execute parses text for tool blocks, runs them (batching the
// parallelizable set, serializing the rest), and substitutes each block's
// output back into the text by identity, not position (spec.md §5 ordering
// guarantee (e)).
func (r *Runtime) Execute(ctx context.Context, text string, hooks Hooks) (Result, error) {
	blocks := ParseBlocks(text)
	if len(blocks) == 0 {
		return Result{ReplacedText: text, StrippedText: text}, nil
	}

	outputs := make([]string, len(blocks))

	i := 0
	for i < len(blocks) {
		if IsParallelizable(blocks[i].Name) {
			j := i
			for j < len(blocks) && IsParallelizable(blocks[j].Name) {
				j++
			}
			if err := r.runBatch(ctx, blocks[i:j], outputs[i:j], hooks); err != nil {
				return Result{}, err
			}
			i = j
			continue
		}
		out, err := r.runOne(ctx, blocks[i], hooks)
		if err != nil {
			return Result{}, err
		}
		outputs[i] = out
		i++
	}

	replaced := text
	stripped := text
	for idx, b := range blocks {
		replaced = strings.Replace(replaced, b.Match, outputs[idx], 1)
		stripped = strings.Replace(stripped, b.Match, "", 1)
	}

	return Result{ReplacedText: replaced, StrippedText: stripped, Invocations: len(blocks)}, nil
}

// runBatch executes a contiguous run of parallelizable blocks concurrently.
// Blocks may finish out of order; outputs is indexed by block identity so
// substitution stays deterministic regardless of completion order.
func (r *Runtime) runBatch(ctx context.Context, blocks []Block, outputs []string, hooks Hooks) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range blocks {
		i, b := i, b
		g.Go(func() error {
			out, err := r.runOne(gctx, b, hooks)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	return g.Wait()
}

// runOne executes one tool block. Tool failures never abort the turn: the
// error is formatted as an inline warning and execution continues
// (spec.md §4.4, §7 propagation policy).
func (r *Runtime) runOne(ctx context.Context, b Block, hooks Hooks) (string, error) {
	if hooks.OnInvoke != nil {
		hooks.OnInvoke(b.Name, preview(b.Payload))
	}
	out, err := r.dispatch(ctx, b)
	if hooks.OnResult != nil {
		hooks.OnResult(b.Name, preview(out), err)
	}
	if err != nil {
		if r.log != nil {
			r.log.Warn("tool invocation failed", zap.String("tool", b.Name), zap.Error(err))
		}
		return warningLine(b.Name, err), nil
	}
	return out, nil
}

func (r *Runtime) dispatch(ctx context.Context, b Block) (string, error) {
	switch b.Name {
	case "search":
		return r.runSearch(ctx, b.Payload)
	case "vsearch":
		return r.runVSearch(ctx, b.Payload)
	case "read":
		return r.runRead(b.Payload)
	case "write":
		return r.runWrite(b.Payload)
	case "apply_patch":
		return r.runApplyPatch(ctx, b.Payload)
	case "exec":
		return r.runExec(ctx, b.Payload)
	case "agent":
		return r.runAgent(ctx, b.Payload)
	case "grep":
		return r.runGrep(ctx, b.Payload)
	case "find":
		return r.runFind(ctx, b.Payload)
	default:
		return "", &PolicyError{Reason: "unknown tool: " + b.Name}
	}
}

func warningLine(tool string, err error) string {
	return "⚠️ tool." + tool + " failed: " + err.Error()
}
