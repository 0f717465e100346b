package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CaseDataset is the normalized input to one generation job. It is owned by
// the caller; the pipeline only reads it.
type CaseDataset struct {
	CaseNumber     string         `json:"caseNumber,omitempty"`
	FilingLocation string         `json:"filingLocation"`
	Property       *Address       `json:"property,omitempty"`
	Plaintiffs     []Party        `json:"plaintiffs"`
	Defendants     []Party        `json:"defendants"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Party is one plaintiff or defendant.
type Party struct {
	Name    PartyName       `json:"name"`
	Type    string          `json:"type,omitempty"`
	Address *Address        `json:"address,omitempty"`
	Phone   string          `json:"phone,omitempty"`
	Email   string          `json:"email,omitempty"`
	Issues  map[string]bool `json:"issues,omitempty"`
}

type PartyName struct {
	First  string `json:"first,omitempty"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last,omitempty"`
	Full   string `json:"full,omitempty"`
}

// Display returns Full, or the joined name parts when Full is empty.
func (n PartyName) Display() string {
	if full := strings.TrimSpace(n.Full); full != "" {
		return full
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{n.First, n.Middle, n.Last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type Address struct {
	Street string `json:"street,omitempty"`
	Unit   string `json:"unit,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
	County string `json:"county,omitempty"`
}

// Tree returns the dataset as the generic JSON tree that mapping source
// paths address. Empty full names are filled from their parts.
func (c *CaseDataset) Tree() (map[string]any, error) {
	normalized := *c
	normalized.Plaintiffs = withFullNames(c.Plaintiffs)
	normalized.Defendants = withFullNames(c.Defendants)

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode case dataset: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode case dataset tree: %w", err)
	}
	return tree, nil
}

func withFullNames(parties []Party) []Party {
	out := make([]Party, len(parties))
	for i, p := range parties {
		p.Name.Full = p.Name.Display()
		out[i] = p
	}
	return out
}
