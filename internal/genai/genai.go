// Package genai is the boundary to the content-generation model. Every
// wizard screen calls through the Gateway interface; the contract is that
// Generate always returns a usable value. Failures of any sort (transport,
// model, malformed output) surface as the kind's documented fallback, so
// rendering code never needs its own error handling around a generation
// call.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Format tells callers whether a kind yields structured data or prose.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Kind describes one generation variant: the wizard has a closed set of
// them, each with its own output shape and fallback.
type Kind struct {
	Name        string
	Format      Format
	Instruction string
	Fallback    func() any
}

// Gateway produces content for a kind from the section inputs and an
// optional cross-section context. Implementations must not fail: the
// returned value is either generated content or the kind's fallback.
type Gateway interface {
	Generate(ctx context.Context, kind string, inputs, extra map[string]any) any
}

var kinds = map[string]Kind{
	"waterfallAnalysis": {
		Name:        "waterfallAnalysis",
		Format:      FormatJSON,
		Instruction: "Analyze the distribution waterfall (preferred return, catch-up, carry) and score its efficiency for investors.",
		Fallback: func() any {
			return map[string]any{"efficiencyScore": 0, "education": []any{}, "note": fallbackNote}
		},
	},
	"feeAnalysis": {
		Name:        "feeAnalysis",
		Format:      FormatJSON,
		Instruction: "Assess the fee structure and estimate total fee drag over the holding period.",
		Fallback: func() any {
			return map[string]any{"feeDragPct": 0, "flags": []any{}, "note": fallbackNote}
		},
	},
	"tokenomicsModel": {
		Name:        "tokenomicsModel",
		Format:      FormatJSON,
		Instruction: "Propose a token supply and pricing model for the asset, with allocation buckets.",
		Fallback: func() any {
			return map[string]any{"supply": 0, "allocations": []any{}, "note": fallbackNote}
		},
	},
	"distributionPlan": {
		Name:        "distributionPlan",
		Format:      FormatJSON,
		Instruction: "Draft a token distribution strategy across investor tiers and vesting schedules.",
		Fallback: func() any {
			return map[string]any{"tiers": []any{}, "vesting": []any{}, "note": fallbackNote}
		},
	},
	"investorPersona": {
		Name:        "investorPersona",
		Format:      FormatJSON,
		Instruction: "Describe the target investor persona for this offering.",
		Fallback: func() any {
			return map[string]any{"personas": []any{}, "note": fallbackNote}
		},
	},
	"governanceMatrix": {
		Name:        "governanceMatrix",
		Format:      FormatJSON,
		Instruction: "Build a governance rights matrix for token holders versus the sponsor.",
		Fallback: func() any {
			return map[string]any{"rights": []any{}, "note": fallbackNote}
		},
	},
	"riskScenario": {
		Name:        "riskScenario",
		Format:      FormatJSON,
		Instruction: "Stress the plan with downside scenarios and list mitigations.",
		Fallback: func() any {
			return map[string]any{"scenarios": []any{}, "note": fallbackNote}
		},
	},
	"swot": {
		Name:        "swot",
		Format:      FormatJSON,
		Instruction: "Produce a SWOT analysis for the tokenization plan.",
		Fallback: func() any {
			return map[string]any{"strengths": []any{}, "weaknesses": []any{}, "opportunities": []any{}, "threats": []any{}, "note": fallbackNote}
		},
	},
	"pitchDeck": {
		Name:        "pitchDeck",
		Format:      FormatJSON,
		Instruction: "Outline an investor pitch deck: one entry per slide with title and talking points.",
		Fallback: func() any {
			return map[string]any{"slides": []any{}, "note": fallbackNote}
		},
	},
	"executionMap": {
		Name:        "executionMap",
		Format:      FormatJSON,
		Instruction: "Lay out an execution roadmap from legal setup to token issuance, with milestones.",
		Fallback: func() any {
			return map[string]any{"milestones": []any{}, "note": fallbackNote}
		},
	},
	"jurisdictionMemo": {
		Name:        "jurisdictionMemo",
		Format:      FormatText,
		Instruction: "Write a short memo on the regulatory posture of the chosen jurisdiction for this offering.",
		Fallback:    func() any { return fallbackNote },
	},
	"finalReview": {
		Name:        "finalReview",
		Format:      FormatText,
		Instruction: "Write a final review memo pulling together all completed wizard steps, highlighting gaps.",
		Fallback:    func() any { return fallbackNote },
	},
}

const fallbackNote = "Generation is temporarily unavailable. Your inputs were saved; try generating again."

// KindByName resolves a kind. Callers validate at the API boundary;
// gateways treat an unknown kind as a failure and fall back.
func KindByName(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Kinds returns all registered kind names in sorted order.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fallbackFor returns the safe value for a kind, or the generic note when
// the kind itself is unknown.
func fallbackFor(kind string) any {
	if k, ok := kinds[kind]; ok {
		return k.Fallback()
	}
	return fallbackNote
}

// buildPrompt renders the model prompt for a kind from the section inputs
// and the optional cross-section context.
func buildPrompt(k Kind, inputs, extra map[string]any) string {
	prompt := k.Instruction
	if encoded, err := json.Marshal(inputs); err == nil && len(inputs) > 0 {
		prompt += fmt.Sprintf("\n\nUser inputs:\n%s", encoded)
	}
	if encoded, err := json.Marshal(extra); err == nil && len(extra) > 0 {
		prompt += fmt.Sprintf("\n\nContext from other wizard steps:\n%s", encoded)
	}
	if k.Format == FormatJSON {
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}
	return prompt
}
