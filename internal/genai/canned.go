package genai

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// CannedGateway produces deterministic content locally, with no model
// behind it. It is the default when no API key is configured and is what
// tests run against: the same inputs always generate the same output.
type CannedGateway struct{}

func NewCannedGateway() *CannedGateway {
	return &CannedGateway{}
}

func (g *CannedGateway) Generate(ctx context.Context, kind string, inputs, extra map[string]any) any {
	k, ok := KindByName(kind)
	if !ok {
		return fallbackFor(kind)
	}

	score := seedScore(inputs)
	switch kind {
	case "waterfallAnalysis":
		return map[string]any{
			"efficiencyScore": score,
			"education": []any{
				"Preferred return is paid before any carry accrues.",
				"A higher carry percentage shifts upside from investors to the sponsor.",
			},
		}
	case "feeAnalysis":
		return map[string]any{
			"feeDragPct": float64(score%5) + 1,
			"flags":      []any{"Compare management fees against the projected net yield."},
		}
	case "tokenomicsModel":
		return map[string]any{
			"supply": 1000000,
			"allocations": []any{
				map[string]any{"bucket": "investors", "pct": 70},
				map[string]any{"bucket": "sponsor", "pct": 20},
				map[string]any{"bucket": "reserve", "pct": 10},
			},
		}
	case "distributionPlan":
		return map[string]any{
			"tiers": []any{
				map[string]any{"name": "anchor", "minTicket": 100000},
				map[string]any{"name": "retail", "minTicket": 1000},
			},
			"vesting": []any{map[string]any{"bucket": "sponsor", "cliffMonths": 12}},
		}
	case "investorPersona":
		return map[string]any{
			"personas": []any{
				map[string]any{"name": "Yield-focused family office", "horizonYears": 7},
			},
		}
	case "governanceMatrix":
		return map[string]any{
			"rights": []any{
				map[string]any{"decision": "asset sale", "holderVote": true},
				map[string]any{"decision": "operating budget", "holderVote": false},
			},
		}
	case "riskScenario":
		return map[string]any{
			"scenarios": []any{
				map[string]any{"name": "valuation drawdown", "severity": "high"},
				map[string]any{"name": "liquidity freeze", "severity": "medium"},
			},
		}
	case "swot":
		return map[string]any{
			"strengths":     []any{"Fractional access to an illiquid asset"},
			"weaknesses":    []any{"Regulatory complexity across jurisdictions"},
			"opportunities": []any{"Secondary market liquidity"},
			"threats":       []any{"Shifting securities guidance"},
		}
	case "pitchDeck":
		return map[string]any{
			"slides": []any{
				map[string]any{"title": "The Asset", "points": []any{"What it is and why it holds value"}},
				map[string]any{"title": "The Offering", "points": []any{"Token terms and investor rights"}},
				map[string]any{"title": "The Numbers", "points": []any{"Projected yield and fee structure"}},
			},
		}
	case "executionMap":
		return map[string]any{
			"milestones": []any{
				map[string]any{"step": "Entity formation", "weeks": 4},
				map[string]any{"step": "Legal opinion & filings", "weeks": 6},
				map[string]any{"step": "Token issuance", "weeks": 2},
			},
		}
	case "jurisdictionMemo":
		return fmt.Sprintf("Memo: the selected jurisdiction scores %d/100 on regulatory clarity for tokenized offerings. Confirm local counsel review before marketing to investors.", score)
	case "finalReview":
		return fmt.Sprintf("Final review: %d wizard inputs considered. The plan is internally consistent; revisit any step still showing default values before generating investor materials.", len(inputs)+len(extra))
	}
	return k.Fallback()
}

// seedScore derives a stable 0-99 score from the inputs so canned output
// reacts to edits without being random.
func seedScore(inputs map[string]any) int {
	encoded, err := json.Marshal(inputs)
	if err != nil {
		return 50
	}
	sum := sha256.Sum256(encoded)
	return int(sum[0]) % 100
}
