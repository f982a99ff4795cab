// Package vision provides the Gemini-backed vision collaborator client.
//
// The collaborator is treated as an opaque, potentially nondeterministic
// service: the pipeline never assumes repeatability of its output, and
// everything it returns is decoded into the fixed DamageAssessment schema
// and validated before it is allowed past the boundary.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"jansahayak/internal/complaint"
	"jansahayak/internal/errors"
)

const visionPrompt = `Analyze this %s image from a civic complaint. Return ONLY a valid JSON object:
{
  "damage_type": "%s",
  "severity": 1-10,
  "risk_factors": ["near-school", "heavy-traffic", "water-related", "monsoon-exposure"],
  "description": "Short assessment"
}
Rules:
- severity is an integer from 1 (cosmetic) to 10 (hazardous)
- risk_factors lists only the factors actually visible or implied by the scene
- description is one or two sentences, no markdown`

// Client calls the Gemini vision model to turn a complaint photo into a
// structured damage assessment.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini vision client.
//
// Parameters:
//   - apiKey: Gemini API key (required)
//   - model: Model name, e.g. "gemini-2.0-flash"
//
// Returns:
//   - *Client: Ready-to-use client
//   - error: If the API key is missing or the client cannot be built
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Println("✓ Vision collaborator configured:", model)

	return &Client{client: client, model: model}, nil
}

// visionResponse is the wire schema expected back from the model.
type visionResponse struct {
	DamageType  string   `json:"damage_type"`
	Severity    int      `json:"severity"`
	RiskFactors []string `json:"risk_factors"`
	Description string   `json:"description"`
}

// Analyze sends the photo to the vision model and decodes the assessment.
//
// Error contract:
//   - Transport/timeout failures come back as plain errors; the
//     orchestrator maps them to VisionUnavailable after its retry
//   - A response that parses but violates the schema comes back as
//     *errors.InvalidAssessmentError
//
// Parameters:
//   - photo: Raw image bytes
//   - mimeType: Image MIME type, e.g. "image/jpeg"
//   - issueType: Issue category the citizen selected on the form
func (c *Client) Analyze(ctx context.Context, photo []byte, mimeType string, issueType complaint.DamageType) (complaint.DamageAssessment, error) {
	prompt := fmt.Sprintf(visionPrompt, issueType, issueType)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(photo, mimeType),
		}, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return complaint.DamageAssessment{}, fmt.Errorf("vision model call failed: %w", err)
	}

	text := stripCodeFences(result.Text())
	if text == "" {
		return complaint.DamageAssessment{}, errors.NewInvalidAssessment("empty response from vision model")
	}

	var resp visionResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return complaint.DamageAssessment{}, errors.NewInvalidAssessment(fmt.Sprintf("unparseable vision response: %v", err))
	}

	assessment := complaint.DamageAssessment{
		Type:        complaint.DamageType(resp.DamageType),
		Severity:    resp.Severity,
		Description: strings.TrimSpace(resp.Description),
	}
	for _, raw := range resp.RiskFactors {
		f, err := complaint.ParseRiskFactor(raw)
		if err != nil {
			return complaint.DamageAssessment{}, errors.NewInvalidAssessment(err.Error())
		}
		if !assessment.HasFactor(f) {
			assessment.Factors = append(assessment.Factors, f)
		}
	}

	if err := assessment.Validate(); err != nil {
		return complaint.DamageAssessment{}, err
	}
	return assessment, nil
}

// stripCodeFences removes the markdown fences Gemini wraps JSON in.
func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
