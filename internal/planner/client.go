// Package planner provides the Gemini-backed planning collaborator client.
//
// Given the assembled planning context (damage assessment, risk
// assessment, recurrence signal, location) it asks the model for a
// remediation plan in a fixed JSON schema. A failure here is survivable:
// the orchestrator commits the complaint plan-less with the PlanPending
// flag and the backfill worker retries later.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"jansahayak/internal/complaint"
)

const planPrompt = `You are a municipal works planner. Plan remediation for this civic issue.

Issue: %s at %s
Severity: %d/10
Risk score: %d/100 (%s)
Recurring issue: %t (%d prior reports at this location)
Assessment: %s

Return ONLY a valid JSON object:
{
  "immediate_actions": ["ordered list of steps"],
  "required_resources": ["crews, equipment, materials"],
  "timeline": "expected timeline",
  "budget_min_inr": 0,
  "budget_max_inr": 0
}
Budget figures are whole rupees. No markdown.`

// Context is the planning input assembled by the orchestrator.
type Context struct {
	Assessment complaint.DamageAssessment
	Risk       complaint.RiskAssessment
	Recurrence complaint.RecurrenceSignal
	Location   complaint.Location
}

// Client calls the Gemini planning model.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini planning client.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Println("✓ Planning collaborator configured:", model)

	return &Client{client: client, model: model}, nil
}

// planResponse is the wire schema expected back from the model.
type planResponse struct {
	ImmediateActions  []string `json:"immediate_actions"`
	RequiredResources []string `json:"required_resources"`
	Timeline          string   `json:"timeline"`
	BudgetMinINR      float64  `json:"budget_min_inr"`
	BudgetMaxINR      float64  `json:"budget_max_inr"`
}

// Plan requests a remediation plan for the given planning context.
//
// Any failure (transport, timeout, malformed response) comes back as a
// plain error; the orchestrator degrades to PlanPending rather than
// discarding the complaint.
func (c *Client) Plan(ctx context.Context, pc Context) (*complaint.ActionPlan, error) {
	prompt := fmt.Sprintf(planPrompt,
		pc.Assessment.Type, pc.Location.Address,
		pc.Assessment.Severity,
		pc.Risk.Score, pc.Risk.Tier,
		pc.Recurrence.Recurring, pc.Recurrence.PriorCount,
		pc.Assessment.Description,
	)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("planning model call failed: %w", err)
	}

	text := stripCodeFences(result.Text())
	if text == "" {
		return nil, fmt.Errorf("empty response from planning model")
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("unparseable plan response: %w", err)
	}
	if len(resp.ImmediateActions) == 0 {
		return nil, fmt.Errorf("plan response carries no immediate actions")
	}
	if resp.BudgetMaxINR < resp.BudgetMinINR {
		resp.BudgetMinINR, resp.BudgetMaxINR = resp.BudgetMaxINR, resp.BudgetMinINR
	}

	return &complaint.ActionPlan{
		ImmediateActions: resp.ImmediateActions,
		Resources:        resp.RequiredResources,
		Timeline:         strings.TrimSpace(resp.Timeline),
		Budget: complaint.BudgetRange{
			Min:      decimal.NewFromFloat(resp.BudgetMinINR),
			Max:      decimal.NewFromFloat(resp.BudgetMaxINR),
			Currency: "INR",
		},
	}, nil
}

func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
