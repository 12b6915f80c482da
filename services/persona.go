package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultPersonaFallback is sent whenever the completion service cannot answer.
const DefaultPersonaFallback = "I'm having trouble thinking right now. Please try again in a moment."

// Persona generates in-character replies. Implementations never fail:
// errors degrade to a fallback text.
type Persona interface {
	GenerateReply(ctx context.Context, userText, displayName string) string
}

// StaticPersona always answers with Reply. Used when no model is configured.
type StaticPersona struct {
	Reply string
}

func (p StaticPersona) GenerateReply(context.Context, string, string) string {
	if p.Reply == "" {
		return DefaultPersonaFallback
	}
	return p.Reply
}

// GenAIPersona answers through the Gemini API.
type GenAIPersona struct {
	client   *genai.Client
	model    string
	prompt   string
	fallback string
	timeout  time.Duration
	log      *zap.Logger
}

// PersonaConfig configures GenAIPersona.
type PersonaConfig struct {
	APIKey     string
	Model      string
	Name       string
	Prompt     string
	Fallback   string
	Timeout    time.Duration
	HTTPClient *http.Client // optional; the SDK default is used when nil
}

func NewGenAIPersona(ctx context.Context, cfg PersonaConfig, logger *zap.Logger) (*GenAIPersona, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultPersonaFallback
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIPersona{
		client:   client,
		model:    cfg.Model,
		prompt:   personaPrompt(cfg.Name, cfg.Prompt),
		fallback: cfg.Fallback,
		timeout:  cfg.Timeout,
		log:      logger,
	}, nil
}

func (p *GenAIPersona) GenerateReply(ctx context.Context, userText, displayName string) string {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	system := p.prompt
	if displayName != "" {
		system += "\nYou are talking to " + displayName + "."
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		genai.Text(userText),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		},
	)
	if err != nil {
		p.log.Warn("[PERSONA] completion failed, using fallback", zap.Error(err))
		return p.fallback
	}
	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		p.log.Warn("[PERSONA] empty completion, using fallback")
		return p.fallback
	}
	return reply
}

func personaPrompt(name, prompt string) string {
	if name == "" {
		name = "Relay"
	}
	if prompt == "" {
		prompt = "You are %s, a friendly assistant that helps people keep track of their todo list. Keep answers short."
	}
	return strings.ReplaceAll(prompt, "%s", name)
}
