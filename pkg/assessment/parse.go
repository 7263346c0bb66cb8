package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/polisai/gatekeeper/pkg/domain"
)

const fence = "```"

// ErrUnparseable is returned when engine output cannot be decoded as an assessment.
var ErrUnparseable = errors.New("unparseable assessment")

// Response is the decoded assessment object. A nil field was absent from the output.
type Response struct {
	Decision          *string `json:"decision"`
	RiskLevel         *string `json:"risk_level"`
	Reasoning         *string `json:"reasoning"`
	RecommendedAction *string `json:"recommended_action"`
}

// StripFence removes a surrounding Markdown code fence. When the trimmed text starts
// with ``` the first line is dropped along with everything from the last ``` onward.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, fence) {
		return text
	}

	_, body, found := strings.Cut(text, "\n")
	if !found {
		return ""
	}
	if i := strings.LastIndex(body, fence); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// ParseResponse decodes engine output into a Response. The output must be a single
// JSON object; other JSON values, wrongly typed fields and syntax errors all fail.
func ParseResponse(raw string) (Response, error) {
	body := StripFence(raw)

	dec := json.NewDecoder(strings.NewReader(body))
	var probe json.RawMessage
	if err := dec.Decode(&probe); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if dec.More() {
		return Response{}, fmt.Errorf("%w: trailing data after JSON value", ErrUnparseable)
	}
	if trimmed := bytes.TrimSpace(probe); len(trimmed) == 0 || trimmed[0] != '{' {
		return Response{}, fmt.Errorf("%w: expected a JSON object", ErrUnparseable)
	}

	var resp Response
	if err := json.Unmarshal(probe, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return resp, nil
}

// Result completes a Response into an AssessmentResult. Absent decision and risk take
// the policy resolution; absent reasoning gets a placeholder.
func (r Response) Result(policyDecision domain.Decision, policyRisk domain.RiskLevel) domain.AssessmentResult {
	result := domain.AssessmentResult{
		Decision:  string(policyDecision),
		RiskLevel: string(policyRisk),
		Reasoning: noReasoning,
	}
	if r.Decision != nil {
		result.Decision = *r.Decision
	}
	if r.RiskLevel != nil {
		result.RiskLevel = *r.RiskLevel
	}
	if r.Reasoning != nil {
		result.Reasoning = *r.Reasoning
	}
	if r.RecommendedAction != nil {
		result.RecommendedAction = *r.RecommendedAction
	}
	return result
}
