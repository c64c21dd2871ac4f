package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// GrantInfo is the structured output of LLM extraction over a grant page.
type GrantInfo struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AmountMin          *float64 `json:"amount_min"`
	AmountMax          *float64 `json:"amount_max"`
	DeadlineISO        string   `json:"deadline_iso"`
	NextCycleStartISO  string   `json:"next_cycle_start_iso"`
	Eligibility        []string `json:"eligibility"`
	DeadlineCandidates []string `json:"deadline_candidates"`
}

// ExtractGrantInfo asks the model for the grant fields present in text.
func ExtractGrantInfo(ctx context.Context, c Completer, title, url, text string) (*GrantInfo, error) {
	prompt := fmt.Sprintf(`You are an expert grant analyst. Extract the grant described by the following page into JSON.

Input:
Title: %s
URL: %s
Text:
%s

Instructions:
1. title: the grant name as written on the page.
2. description: 2-4 plain sentences describing what the grant funds.
3. amount_min and amount_max as numbers in USD, or null when the page gives none. A single award amount goes in both.
4. deadline_iso: the application deadline as YYYY-MM-DD, or null. List every deadline you see in deadline_candidates.
5. next_cycle_start_iso: when the next application cycle opens (YYYY-MM-DD), or null.
6. eligibility: who may apply, using short labels such as "Undergraduate", "Masters Student", "Coterm", "PhD", "Postdoc", "Faculty", "Staff".

JSON Schema:
{
	"title": "string",
	"description": "string",
	"amount_min": number or null,
	"amount_max": number or null,
	"deadline_iso": "YYYY-MM-DD or null",
	"deadline_candidates": ["YYYY-MM-DD"],
	"next_cycle_start_iso": "YYYY-MM-DD or null",
	"eligibility": ["string"]
}

Respond ONLY with the JSON object.`, title, url, text)

	// JSON mode first; some models ignore it, so fall back to text mode with
	// brace matching.
	resp, err := c.GenerateCompletion(ctx, prompt, true)
	if err == nil {
		data, parseErr := parseGrantInfo(resp)
		if parseErr == nil {
			return data, nil
		}
		log.Printf("JSON mode failed parsing: %v. Retrying with text mode...", parseErr)
	} else {
		log.Printf("JSON mode generation failed: %v. Retrying with text mode...", err)
	}

	resp, err = c.GenerateCompletion(ctx, prompt, false)
	if err != nil {
		return nil, err
	}

	data, err := parseGrantInfo(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse LLM JSON after retry: %w (response: %s)", err, resp)
	}
	return data, nil
}

func parseGrantInfo(resp string) (*GrantInfo, error) {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	if jsonStr, ok := extractFirstJSONObject(cleaned); ok {
		cleaned = jsonStr
	}

	var data GrantInfo
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
