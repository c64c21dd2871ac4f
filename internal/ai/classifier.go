package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/david/grant-search/internal/models"
)

// ClassifyEligibility maps free-text eligibility onto the known academic
// positions. Tags the model invents are dropped.
func ClassifyEligibility(ctx context.Context, c Completer, title, eligibilityText string) ([]models.AcademicPosition, error) {
	allowed := make([]string, len(models.AcademicPositions))
	for i, p := range models.AcademicPositions {
		allowed[i] = string(p)
	}

	prompt := fmt.Sprintf(`You classify who may apply for a grant.

GRANT TITLE: %s
ELIGIBILITY TEXT: %s

Select the applicant positions from this EXACT list. Do not invent new tags.

AVAILABLE POSITIONS: %s

Return a JSON object with this format:
{
  "positions": ["Position1", "Position2"]
}

If no position applies, return an empty array. RESPOND ONLY WITH JSON.`, title, eligibilityText, strings.Join(allowed, ", "))

	resp, err := c.GenerateCompletion(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		Positions []string `json:"positions"`
	}
	if jsonStr, ok := extractFirstJSONObject(resp); ok {
		resp = jsonStr
	}
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return nil, fmt.Errorf("failed to parse classification json: %w", err)
	}

	valid := filterValid(result.Positions, allowed)
	out := make([]models.AcademicPosition, len(valid))
	for i, v := range valid {
		out[i] = models.AcademicPosition(v)
	}
	return out, nil
}

// filterValid keeps tags found in allowed, case-insensitively, returning the
// canonical spelling once each.
func filterValid(tags []string, allowed []string) []string {
	valid := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, t := range tags {
		for _, a := range allowed {
			if strings.EqualFold(a, strings.TrimSpace(t)) {
				if !seen[a] {
					seen[a] = true
					valid = append(valid, a)
				}
				break
			}
		}
	}
	return valid
}
