package genai

import "github.com/loftlabs/loft/internal/chat"

// Wire types for the generateContent API.

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generateRequest struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// text concatenates the text parts of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var out string
	for _, p := range r.Candidates[0].Content.Parts {
		out += p.Text
	}
	return out
}

// toWireContents converts turns into wire contents, carrying text and inline
// attachment parts through unchanged.
func toWireContents(turns []chat.Turn) []wireContent {
	out := make([]wireContent, 0, len(turns))
	for _, t := range turns {
		c := wireContent{Role: string(t.Role), Parts: make([]wirePart, 0, len(t.Parts))}
		for _, p := range t.Parts {
			if p.Inline != nil {
				c.Parts = append(c.Parts, wirePart{
					InlineData: &wireInlineData{MIMEType: p.Inline.MIMEType, Data: p.Inline.Data},
				})
				continue
			}
			c.Parts = append(c.Parts, wirePart{Text: p.Text})
		}
		out = append(out, c)
	}
	return out
}
