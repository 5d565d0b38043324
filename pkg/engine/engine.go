// Package engine assembles the provider system prompt from store state and
// drives completion/streaming generation, keeping that one piece of
// prompt-construction business logic outside the provider abstraction
// itself.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/anp-network/node/internal/logger"
	imetrics "github.com/anp-network/node/internal/metrics"
	"github.com/anp-network/node/pkg/maturity"
	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/store"
)

// BudgetExceededReply is returned by Generate/GenerateSelfResponse in place of a
// real completion once the monthly token budget has been exhausted.
const BudgetExceededReply = "[budget_exceeded: this node has reached its monthly token budget]"

const systemPromptTemplate = `You are the digital agent for %s on the agent network.

## Identity
DID: %s
Node name: %s
Domain: %s
Essence maturity: %v (%s)

## Accumulated context
%s

## Known reasoning patterns
%s

## Operating principles
- You represent %s, not any AI vendor.
- You answer in first person as %s's agent.
- Before committing to anything consequential, you check with %s.
- You are asynchronous: you don't rush, you favor a considered reply.
- You never invent information about %s. If you don't know, you say so.
- Everything you send is signed with your Ed25519 key.
%s`

// Engine builds the provider system prompt from persisted state and
// delegates generation to a Provider.
type Engine struct {
	store    store.Store
	provider provider.Provider
	log      logger.Logger
}

// New returns an Engine backed by s and delegating generation to p. log
// receives a structured BudgetExceeded record each time a generation call
// is turned away for being over budget; it may be nil in tests that don't
// care about that signal.
func New(s store.Store, p provider.Provider, log logger.Logger) *Engine {
	return &Engine{store: s, provider: p, log: log}
}

func (e *Engine) logBudgetExceeded(ctx context.Context) {
	if e.log == nil {
		return
	}
	b, err := e.store.ReadBudget(ctx)
	if err != nil {
		return
	}
	e.log.Warn("generation refused", logger.Error(logger.BudgetExceeded(b.UsedTokens, b.MonthlyLimitTokens)))
}

// BuildSystemPrompt composes the full system prompt from the identity
// record, maturity score, accumulated context, and extracted patterns. An
// optional instruction is appended as the "current instruction" section,
// used to give the owner's direct conversation a different tone than a
// peer's.
func (e *Engine) BuildSystemPrompt(ctx context.Context, instruction string) (string, error) {
	identity, err := e.store.ReadIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: read identity: %w", err)
	}
	contextText, err := e.store.ReadContext(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: read context: %w", err)
	}
	patterns, err := e.store.ReadPatterns(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: read patterns: %w", err)
	}

	score, err := maturity.Calculate(ctx, e.store)
	if err != nil {
		return "", fmt.Errorf("engine: calculate maturity: %w", err)
	}
	label := maturity.Label(score)

	if contextText == "" {
		contextText = "(no accumulated context yet)"
	}

	patternsText := "(no patterns yet -- the agent is still learning)"
	if len(patterns) > 0 {
		lines := make([]string, 0, len(patterns))
		for _, p := range patterns {
			lines = append(lines, "- "+p.Description)
		}
		patternsText = strings.Join(lines, "\n")
	}

	name := identity.DisplayName
	if name == "" {
		name = identity.ID
	}

	instructionBlock := ""
	if instruction != "" {
		instructionBlock = "\n## Current instruction\n" + instruction
	}

	return fmt.Sprintf(systemPromptTemplate,
		name, identity.ID, name, identity.Domain, score, label,
		contextText, patternsText,
		name, name, name, name,
		instructionBlock,
	), nil
}

// Generate builds the system prompt, appends userMessage to history, and
// completes against the provider. If the store's over-budget predicate
// holds, the provider is never called and BudgetExceededReply is returned
// directly.
func (e *Engine) Generate(ctx context.Context, userMessage string, history []provider.Turn, maxTokens int) (string, error) {
	overBudget, err := e.store.IsOverBudget(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: check budget: %w", err)
	}
	if overBudget {
		imetrics.BudgetExceeded.Inc()
		e.logBudgetExceeded(ctx)
		return BudgetExceededReply, nil
	}

	system, err := e.BuildSystemPrompt(ctx, "")
	if err != nil {
		return "", err
	}

	turns := append(append([]provider.Turn{}, history...), provider.Turn{Role: "user", Content: userMessage})

	resp, err := e.provider.Complete(ctx, system, turns, maxTokens)
	if err != nil {
		return "", fmt.Errorf("engine: provider completion: %w", err)
	}

	if err := e.store.RecordUsage(ctx, int64(resp.TotalTokens())); err != nil {
		return "", fmt.Errorf("engine: record usage: %w", err)
	}
	imetrics.ProviderCalls.Inc()
	imetrics.TokensUsed.WithLabelValues("input").Add(float64(resp.InputTokens))
	imetrics.TokensUsed.WithLabelValues("output").Add(float64(resp.OutputTokens))

	return resp.Text, nil
}

// GenerateSelfResponse generates a reply to the owner talking directly to
// their own agent, using a warmer, more exploratory instruction.
func (e *Engine) GenerateSelfResponse(ctx context.Context, ownerMessage string) (string, error) {
	overBudget, err := e.store.IsOverBudget(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: check budget: %w", err)
	}
	if overBudget {
		imetrics.BudgetExceeded.Inc()
		e.logBudgetExceeded(ctx)
		return BudgetExceededReply, nil
	}

	system, err := e.BuildSystemPrompt(ctx, "The owner is talking to you directly. "+
		"You can be more reflective and personal. You can ask questions to get to know them better.")
	if err != nil {
		return "", err
	}

	resp, err := e.provider.Complete(ctx, system, []provider.Turn{{Role: "user", Content: ownerMessage}}, 1024)
	if err != nil {
		return "", fmt.Errorf("engine: provider completion: %w", err)
	}

	if err := e.store.RecordUsage(ctx, int64(resp.TotalTokens())); err != nil {
		return "", fmt.Errorf("engine: record usage: %w", err)
	}
	imetrics.ProviderCalls.Inc()

	return resp.Text, nil
}
