package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/bedrockruntime"

	"docuchat/internal/model"
)

const (
	BackendClaude = "claude"
	BackendTitan  = "titan"

	maxCompletionTokens = 1024
)

// backendSpec is one variant of the invocation gateway: how to render the
// prompt, wrap it in the backend-native request body, and decode the
// completion. Adding a backend means adding one entry to backends; no
// caller changes.
type backendSpec struct {
	modelID       func(ModelIDs) string
	formatPrompt  func(systemPrompt string, history []Turn, userInput string) string
	buildRequest  func(prompt string) ([]byte, error)
	parseResponse func(raw []byte) (string, error)
}

var backends = map[string]backendSpec{
	BackendClaude: {
		modelID:       func(m ModelIDs) string { return m.Claude },
		formatPrompt:  formatMessagePrompt,
		buildRequest:  buildClaudeRequest,
		parseResponse: parseClaudeResponse,
	},
	BackendTitan: {
		modelID:       func(m ModelIDs) string { return m.Titan },
		formatPrompt:  formatFlatPrompt,
		buildRequest:  buildTitanRequest,
		parseResponse: parseTitanResponse,
	},
}

// FormatPrompt renders the backend-specific prompt text from the system
// prompt, the prior history, and the new user input.
func FormatPrompt(backendKey, systemPrompt string, history []Turn, userInput string) (string, error) {
	spec, ok := backends[backendKey]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, backendKey)
	}
	return spec.formatPrompt(systemPrompt, history, userInput), nil
}

// Invoke sends the formatted prompt to the named backend and returns the
// completion text.
func (c *Client) Invoke(ctx context.Context, backendKey, prompt string) (string, error) {
	spec, ok := backends[backendKey]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, backendKey)
	}

	body, err := spec.buildRequest(prompt)
	if err != nil {
		return "", fmt.Errorf("marshal %s request failed: %w", backendKey, err)
	}

	out, err := c.runtime.InvokeModelWithContext(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(spec.modelID(c.models)),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: invoke %s: %v", ErrBackendUnavailable, backendKey, err)
	}

	text, err := spec.parseResponse(out.Body)
	if err != nil {
		return "", fmt.Errorf("parse %s response failed: %w", backendKey, err)
	}
	return text, nil
}

// formatMessagePrompt renders the message-style layout: system prompt,
// one "User:"/"Assistant:" line per turn, and the new input as a trailing
// "User:" line with no assistant cue.
func formatMessagePrompt(systemPrompt string, history []Turn, userInput string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteByte('\n')
	for _, turn := range history {
		prefix := "Assistant"
		if turn.Role == model.RoleUser {
			prefix = "User"
		}
		b.WriteString(prefix)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	b.WriteString("User: ")
	b.WriteString(userInput)
	return b.String()
}

// formatFlatPrompt renders the flat-text layout: turns whose content is
// blank after trimming are skipped, roles are capitalized, and a trailing
// "Assistant:" cue elicits the completion.
func formatFlatPrompt(systemPrompt string, history []Turn, userInput string) string {
	parts := make([]string, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		parts = append(parts, capitalize(turn.Role)+": "+turn.Content)
	}
	return systemPrompt + "\n" + strings.Join(parts, "\n") + "\nUser: " + userInput + "\nAssistant:"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

type claudeContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    string              `json:"role"`
	Content []claudeContentPart `json:"content"`
}

func buildClaudeRequest(prompt string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxCompletionTokens,
		"temperature":       0.0,
		"messages": []claudeMessage{
			{
				Role:    "user",
				Content: []claudeContentPart{{Type: "text", Text: prompt}},
			},
		},
	})
}

func parseClaudeResponse(raw []byte) (string, error) {
	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode json failed: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty content in response")
	}
	return parsed.Content[0].Text, nil
}

func buildTitanRequest(prompt string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"inputText": prompt,
		"textGenerationConfig": map[string]interface{}{
			"maxTokenCount": maxCompletionTokens,
			"temperature":   0.0,
		},
	})
}

func parseTitanResponse(raw []byte) (string, error) {
	var parsed struct {
		Results []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode json failed: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", fmt.Errorf("empty results in response")
	}
	return parsed.Results[0].OutputText, nil
}
