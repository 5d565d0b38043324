// Package patterns turns a run of human corrections into durable behavioral
// patterns by asking a provider to summarize what changed between what the
// agent proposed and what the owner actually approved.
package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anp-network/node/pkg/provider"
	"github.com/anp-network/node/pkg/store"
)

// DefaultWindow is how many of the most recent corrections are analyzed per
// extraction pass.
const DefaultWindow = 5

const extractionPrompt = `Analyze the following corrections the node owner made to the agent's proposed replies.
Each correction has 'original' (what the agent proposed) and 'edited' (what the owner approved).

Corrections:
%s

Extract concrete reasoning patterns. A pattern captures ONE consistent way the owner adjusts
replies: preferred tone, level of detail, values emphasized, topics avoided, etc.

Respond with ONLY a JSON array of objects with this exact shape:
[
  {
    "description": "short description of the pattern (one sentence)",
    "examples": ["example of original -> edited", ...],
    "confidence": 0.0-1.0
  }
]

If no clear patterns are found, respond with [].
Do not include any explanation outside the JSON.`

type rawCorrection struct {
	Original string `json:"original"`
	Edited   string `json:"edited"`
}

type rawPattern struct {
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
	Confidence  float64  `json:"confidence"`
}

// Extract analyzes the last window corrections, asks p to summarize them
// into patterns, and persists any newly-discovered ones (deduplicated by
// lowercased description against what is already stored). It returns the
// number of patterns added.
func Extract(ctx context.Context, s store.Store, p provider.Provider, window int) (int, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	corrections, err := s.ReadCorrections(ctx)
	if err != nil {
		return 0, fmt.Errorf("patterns: read corrections: %w", err)
	}
	if len(corrections) == 0 {
		return 0, nil
	}

	recent := corrections
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	meaningful := make([]rawCorrection, 0, len(recent))
	for _, c := range recent {
		if c.Original != "" && c.Edited != "" && c.Edited != c.Original {
			meaningful = append(meaningful, rawCorrection{Original: c.Original, Edited: c.Edited})
		}
	}
	if len(meaningful) == 0 {
		return 0, nil
	}

	correctionsJSON, err := json.MarshalIndent(meaningful, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("patterns: marshal corrections: %w", err)
	}

	prompt := fmt.Sprintf(extractionPrompt, correctionsJSON)
	resp, err := p.Complete(ctx, "", []provider.Turn{{Role: "user", Content: prompt}}, 1024)
	if err != nil {
		return 0, fmt.Errorf("patterns: provider completion: %w", err)
	}

	newPatterns, err := parsePatterns(resp.Text)
	if err != nil || len(newPatterns) == 0 {
		return 0, nil
	}

	existing, err := s.ReadPatterns(ctx)
	if err != nil {
		return 0, fmt.Errorf("patterns: read existing patterns: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[strings.ToLower(e.Description)] = struct{}{}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	added := 0
	for _, np := range newPatterns {
		desc := strings.ToLower(strings.TrimSpace(np.Description))
		if desc == "" {
			continue
		}
		if _, dup := seen[desc]; dup {
			continue
		}
		confidence := np.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		examples := np.Examples
		if examples == nil {
			examples = []string{}
		}
		existing = append(existing, store.Pattern{
			Description: np.Description,
			Examples:    examples,
			Confidence:  confidence,
			ExtractedAt: now,
		})
		seen[desc] = struct{}{}
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := s.WritePatterns(ctx, existing); err != nil {
		return 0, fmt.Errorf("patterns: write patterns: %w", err)
	}
	return added, nil
}

// parsePatterns strips a possible markdown code fence and decodes the JSON
// array of patterns a provider returned. A malformed or non-array response
// returns the decode error, which Extract treats as no patterns rather than
// an error, matching the forgiving treatment of an LLM response that didn't
// follow instructions.
func parsePatterns(raw string) ([]rawPattern, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 1 {
			if strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[1 : len(lines)-1]
			} else {
				lines = lines[1:]
			}
			text = strings.Join(lines, "\n")
		}
	}

	var out []rawPattern
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}
