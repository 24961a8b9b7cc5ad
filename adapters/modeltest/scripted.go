package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gurpartap/promptchain/chain"
)

// Response configures one generator call in a scripted sequence.
type Response struct {
	Generation chain.Generation
	Err        error
}

// Text is shorthand for a successful response with rough token counts.
func Text(text string) Response {
	return Response{Generation: chain.Generation{
		Text:         text,
		InputTokens:  10,
		OutputTokens: max(len(text)/4, 1),
	}}
}

// Fail is shorthand for a failed response.
func Fail(err error) Response {
	return Response{Err: err}
}

// ScriptedGenerator is a deterministic generator for chain and pipeline tests.
type ScriptedGenerator struct {
	mu        sync.Mutex
	index     int
	responses []Response
	requests  []chain.GenerateRequest
}

func NewScriptedGenerator(responses ...Response) *ScriptedGenerator {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &ScriptedGenerator{
		responses: cloned,
	}
}

var _ chain.Generator = (*ScriptedGenerator)(nil)

func (g *ScriptedGenerator) Generate(ctx context.Context, request chain.GenerateRequest) (chain.Generation, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return chain.Generation{}, ctxErr
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, request)
	if g.index >= len(g.responses) {
		return chain.Generation{}, fmt.Errorf("script exhausted at call %d", g.index+1)
	}
	current := g.responses[g.index]
	g.index++
	if current.Err != nil {
		return chain.Generation{}, current.Err
	}
	return current.Generation, nil
}

// Requests returns a copy of every request received so far.
func (g *ScriptedGenerator) Requests() []chain.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]chain.GenerateRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// Prompts returns the prompt of every request received so far.
func (g *ScriptedGenerator) Prompts() []string {
	requests := g.Requests()
	out := make([]string, len(requests))
	for i := range requests {
		out[i] = requests[i].Prompt
	}
	return out
}

// FuncGenerator answers each request with a function. It is safe for
// concurrent use when fn is.
type FuncGenerator func(ctx context.Context, request chain.GenerateRequest) (chain.Generation, error)

var _ chain.Generator = FuncGenerator(nil)

func (f FuncGenerator) Generate(ctx context.Context, request chain.GenerateRequest) (chain.Generation, error) {
	return f(ctx, request)
}
