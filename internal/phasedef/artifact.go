package phasedef

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoPhases is returned when an artifact parses but carries no timeline phases.
var ErrNoPhases = errors.New("artifact has no timeline phases")

// Artifact is the subset of an analysis document used for phase proposals.
type Artifact struct {
	Phases []ArtifactPhase
}

// ArtifactPhase is one timeline entry. Raw keeps the full entry for question extraction.
type ArtifactPhase struct {
	Phase        string
	Weeks        string
	Deliverables []string
	Raw          json.RawMessage
}

type artifactDoc struct {
	Timeline struct {
		Phases []json.RawMessage `json:"phases"`
	} `json:"timeline"`
}

type artifactEntry struct {
	Phase        string          `json:"phase"`
	Weeks        json.RawMessage `json:"weeks"`
	Deliverables []any           `json:"deliverables"`
}

// ParseArtifact decodes raw analysis text, tolerating a surrounding code fence.
func ParseArtifact(raw string) (*Artifact, error) {
	var doc artifactDoc
	if err := json.Unmarshal([]byte(stripFence(raw)), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if len(doc.Timeline.Phases) == 0 {
		return nil, ErrNoPhases
	}

	a := &Artifact{Phases: make([]ArtifactPhase, 0, len(doc.Timeline.Phases))}
	for _, item := range doc.Timeline.Phases {
		var e artifactEntry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("failed to decode timeline phase: %w", err)
		}
		a.Phases = append(a.Phases, ArtifactPhase{
			Phase:        strings.TrimSpace(e.Phase),
			Weeks:        weeksText(e.Weeks),
			Deliverables: sanitizeDeliverables(e.Deliverables),
			Raw:          item,
		})
	}
	return a, nil
}

// Entry returns the raw timeline entry whose phase title matches title, case-insensitively.
func (a *Artifact) Entry(title string) (json.RawMessage, bool) {
	want := strings.ToLower(strings.TrimSpace(title))
	for _, p := range a.Phases {
		if strings.ToLower(p.Phase) == want {
			return p.Raw, true
		}
	}
	return nil, false
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, including any language tag.
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func weeksText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

// leadingInt reads the first integer of weeks text such as "2" or "2-3".
func leadingInt(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func sanitizeDeliverables(items []any) []string {
	out := []string{}
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
