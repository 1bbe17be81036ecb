// Package assist runs the one-shot project workflows: feature brainstorming,
// UI component generation, and the tech-stack/competitor analysis. Each
// workflow asks the model for a JSON document and stores the decoded result
// on the project.
package assist

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/errors"
	"github.com/loftlabs/loft/internal/genai"
	"github.com/loftlabs/loft/internal/workspace"
)

const brainstormInstruction = `You are a product strategist. Given a product idea, brainstorm its feature set. Respond with a JSON object of the form {"features": [{"text": string, "is_mvp": boolean, "priority": "low"|"medium"|"high"}]}. Include 5 to 10 features, marking the minimal viable subset with is_mvp.`

const componentInstruction = `You are a frontend engineer. Generate a single self-contained UI component for the user's description. Respond with a JSON object of the form {"html": string, "css": string}. The HTML must be a fragment without <html> or <body> tags, and the CSS must only target classes used in that fragment.`

const analysisInstruction = `You are a software architect and market analyst. Analyze the described product. Respond with a JSON object of the form {"technologies": [{"name": string, "reason": string}], "uiux_strategy": string, "competitor_analysis": [{"name": string, "inspirations": [string], "opportunities": [string]}]}. Recommend 3 to 6 technologies and 2 to 4 competitors.`

// Assistant wires the JSON workflows to the workspace.
type Assistant struct {
	ws        *workspace.Workspace
	completer genai.Completer
}

// New builds an assistant over the workspace and completion client.
func New(ws *workspace.Workspace, completer genai.Completer) *Assistant {
	return &Assistant{ws: ws, completer: completer}
}

// BrainstormFeatures generates a feature list for the idea, records the idea
// as the project's problem statement, and stores the features on the project.
func (a *Assistant) BrainstormFeatures(ctx context.Context, projectID, idea string) ([]chat.Feature, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, errors.NewInvalidRequest("idea must not be empty")
	}
	if _, err := a.ws.Project(projectID); err != nil {
		return nil, err
	}

	var out struct {
		Features []chat.Feature `json:"features"`
	}
	if err := a.completer.GenerateJSON(ctx, brainstormInstruction, idea, &out); err != nil {
		return nil, err
	}
	if len(out.Features) == 0 {
		return nil, errors.NewUpstream(fmt.Errorf("model returned no features"))
	}

	if err := a.ws.SetProblemStatement(projectID, idea); err != nil {
		return nil, err
	}
	if err := a.ws.SetFeatures(projectID, out.Features); err != nil {
		return nil, err
	}
	return out.Features, nil
}

// GenerateComponent generates an HTML/CSS component from the description and
// saves it to the project.
func (a *Assistant) GenerateComponent(ctx context.Context, projectID, description string) (chat.UIComponent, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return chat.UIComponent{}, errors.NewInvalidRequest("component description must not be empty")
	}
	if _, err := a.ws.Project(projectID); err != nil {
		return chat.UIComponent{}, err
	}

	var out struct {
		HTML string `json:"html"`
		CSS  string `json:"css"`
	}
	if err := a.completer.GenerateJSON(ctx, componentInstruction, description, &out); err != nil {
		return chat.UIComponent{}, err
	}
	if out.HTML == "" {
		return chat.UIComponent{}, errors.NewUpstream(fmt.Errorf("model returned no component markup"))
	}

	id, err := newID()
	if err != nil {
		return chat.UIComponent{}, errors.NewInternal(err)
	}
	comp := chat.UIComponent{ID: id, Prompt: description, HTML: out.HTML, CSS: out.CSS}
	if err := a.ws.AddComponent(projectID, comp); err != nil {
		return chat.UIComponent{}, err
	}
	return comp, nil
}

// AnalyzeProject generates the tech-stack and competitor blueprint from the
// project's problem statement and stores it on the project.
func (a *Assistant) AnalyzeProject(ctx context.Context, projectID string) (*chat.Analysis, error) {
	project, err := a.ws.Project(projectID)
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(project.ProblemStatement)
	if subject == "" {
		subject = project.Name
	}

	var out chat.Analysis
	if err := a.completer.GenerateJSON(ctx, analysisInstruction, subject, &out); err != nil {
		return nil, err
	}
	if len(out.Technologies) == 0 && out.UIUXStrategy == "" {
		return nil, errors.NewUpstream(fmt.Errorf("model returned an empty analysis"))
	}

	if err := a.ws.SetAnalysis(projectID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// newID generates a new ULID.
func newID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
