package workflow

import (
	"encoding/json"
	"strings"

	"devmarket/internal/model"
)

type artifactQuestions struct {
	Questions       []json.RawMessage `json:"questions"`
	Recommendations []json.RawMessage `json:"recommendations"`
}

type questionObject struct {
	Question string `json:"question"`
	Required *bool  `json:"required"`
	Order    *int   `json:"order"`
}

// ExtractQuestions pulls client questions out of an artifact object. It reads
// "questions" (strings or objects) and falls back to "recommendations" entries
// that contain a question mark. Malformed input yields nil.
func ExtractQuestions(raw []byte) []model.Question {
	if len(raw) == 0 {
		return nil
	}
	var doc artifactQuestions
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}

	var out []model.Question
	for _, item := range doc.Questions {
		q, ok := parseQuestion(item)
		if !ok {
			continue
		}
		if q.Order == 0 {
			q.Order = len(out) + 1
		}
		out = append(out, q)
	}
	if len(out) > 0 {
		return out
	}

	for _, item := range doc.Recommendations {
		text := recommendationText(item)
		if !strings.Contains(text, "?") {
			continue
		}
		out = append(out, model.Question{Question: text, Order: len(out) + 1})
	}
	return out
}

func parseQuestion(item json.RawMessage) (model.Question, bool) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		s = strings.TrimSpace(s)
		return model.Question{Question: s}, s != ""
	}

	var obj questionObject
	if err := json.Unmarshal(item, &obj); err != nil {
		return model.Question{}, false
	}
	q := model.Question{Question: strings.TrimSpace(obj.Question)}
	if q.Question == "" {
		return model.Question{}, false
	}
	if obj.Required != nil {
		q.Required = *obj.Required
	}
	if obj.Order != nil && *obj.Order > 0 {
		q.Order = *obj.Order
	}
	return q, true
}

func recommendationText(item json.RawMessage) string {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Text        string `json:"text"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(item, &obj); err != nil {
		return ""
	}
	if obj.Text != "" {
		return strings.TrimSpace(obj.Text)
	}
	return strings.TrimSpace(obj.Description)
}
