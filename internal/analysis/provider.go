package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"fission/internal/project"
	"fission/internal/services"
	"fission/internal/services/llm"
)

var (
	// ErrServiceUnavailable marks an analysis call that may succeed on retry.
	ErrServiceUnavailable = llm.ErrServiceUnavailable
	// ErrMalformedResponse marks model output that held no usable moments.
	ErrMalformedResponse = llm.ErrMalformedResponse
)

// Provider identifies moments in a transcript.
type Provider interface {
	IdentifyMoments(ctx context.Context, transcript *project.Transcript, category project.ContentCategory) ([]project.Moment, error)
}

// Completer is the subset of the LLM client the provider needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMProvider identifies moments with a chat-completion model.
type LLMProvider struct {
	client Completer
}

// NewLLMProvider wraps client.
func NewLLMProvider(client Completer) *LLMProvider {
	return &LLMProvider{client: client}
}

// IdentifyMoments prompts the model and parses its answer.
func (p *LLMProvider) IdentifyMoments(ctx context.Context, transcript *project.Transcript, category project.ContentCategory) ([]project.Moment, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "analysis", "identify moments", "transcript is empty", nil)
	}
	content, err := p.client.CompleteJSON(ctx, systemPrompt, buildPrompt(transcript, category))
	if err != nil {
		return nil, err
	}
	return ParseMoments(content, transcript)
}

type rawMoment struct {
	Start       *float64 `json:"start_time"`
	End         *float64 `json:"end_time"`
	AltStart    *float64 `json:"start"`
	AltEnd      *float64 `json:"end"`
	Type        string   `json:"moment_type"`
	Category    string   `json:"category"`
	Summary     string   `json:"summary"`
	Sentiment   *float64 `json:"sentiment_score"`
	Importance  *float64 `json:"importance_score"`
	Quotable    string   `json:"quotable_text"`
	Quotability *float64 `json:"quotable_score"`
}

// ParseMoments decodes model output into moments bounded by transcript.
func ParseMoments(content string, transcript *project.Transcript) ([]project.Moment, error) {
	var payload json.RawMessage
	if err := llm.DecodeLLMJSON(content, &payload); err != nil {
		return nil, services.Wrap(ErrMalformedResponse, "analysis", "decode moments", "response is not JSON", err)
	}
	raws, err := decodeRawMoments(payload)
	if err != nil {
		return nil, services.Wrap(ErrMalformedResponse, "analysis", "decode moments", "unexpected JSON shape", err)
	}

	duration := transcript.Duration()
	moments := make([]project.Moment, 0, len(raws))
	for _, raw := range raws {
		m, ok := raw.toMoment(duration)
		if !ok {
			continue
		}
		m.Text = textWithin(transcript.Segments, m.Start, m.End)
		if m.Text == "" {
			m.Text = m.Quotable
		}
		moments = append(moments, m)
	}
	if len(moments) == 0 {
		return nil, services.Wrap(ErrMalformedResponse, "analysis", "decode moments",
			fmt.Sprintf("none of %d moments had usable bounds", len(raws)), nil)
	}
	sort.SliceStable(moments, func(i, j int) bool { return moments[i].Start < moments[j].Start })
	return moments, nil
}

func decodeRawMoments(payload json.RawMessage) ([]rawMoment, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var list []rawMoment
		err := json.Unmarshal(payload, &list)
		return list, err
	}
	var wrapper struct {
		Moments *[]rawMoment `json:"moments"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Moments != nil {
		return *wrapper.Moments, nil
	}
	var single rawMoment
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, err
	}
	return []rawMoment{single}, nil
}

func (r rawMoment) toMoment(duration float64) (project.Moment, bool) {
	start, okStart := firstFloat(r.Start, r.AltStart)
	end, okEnd := firstFloat(r.End, r.AltEnd)
	if !okStart || !okEnd {
		return project.Moment{}, false
	}
	start = math.Max(start, 0)
	if duration > 0 {
		end = math.Min(end, duration)
	}
	if end <= start {
		return project.Moment{}, false
	}
	category := r.Type
	if strings.TrimSpace(category) == "" {
		category = r.Category
	}
	return project.Moment{
		Start:       start,
		End:         end,
		Category:    project.ParseMomentCategory(category),
		Summary:     strings.TrimSpace(r.Summary),
		Sentiment:   clamp(valueOr(r.Sentiment, 0), -1, 1),
		Importance:  clamp(valueOr(r.Importance, 0.5), 0, 1),
		Quotable:    strings.TrimSpace(r.Quotable),
		Quotability: clamp(valueOr(r.Quotability, 0.5), 0, 1),
	}, true
}

func firstFloat(values ...*float64) (float64, bool) {
	for _, v := range values {
		if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			return *v, true
		}
	}
	return 0, false
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return fallback
	}
	return *v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// textWithin joins the text of segments that start inside [start, end).
func textWithin(segments []project.Segment, start, end float64) string {
	parts := make([]string, 0, 4)
	for _, seg := range segments {
		if seg.Start >= start && seg.Start < end {
			if text := strings.TrimSpace(seg.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}
