package oracle

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"whatbeats/internal/logging"
	"whatbeats/internal/types"
)

// =============================================================================
// GEMINI ORACLE
// =============================================================================

// GeminiConfig configures GeminiOracle.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration

	// HTTPOptions overrides the transport, e.g. BaseURL for tests.
	HTTPOptions genai.HTTPOptions
}

// GeminiOracle judges through the Gemini API with structured JSON output.
type GeminiOracle struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// verdictSchema pins the response to {"valid": bool, "explanation": string}.
var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"valid":       {Type: genai.TypeBoolean},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"valid", "explanation"},
}

// NewGeminiOracle creates a Gemini-backed oracle.
func NewGeminiOracle(ctx context.Context, cfg GeminiConfig) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: cfg.HTTPOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiOracle{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (o *GeminiOracle) Judge(ctx context.Context, challenger, incumbent string, persona types.Persona) (types.Verdict, error) {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryOracle, "gemini judge")
	defer timer.StopWithThreshold(2 * time.Second)

	resp, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(userPrompt(challenger, incumbent)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(persona), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    verdictSchema,
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		logging.OracleWarn("Gemini judge %q vs %q failed: %v", challenger, incumbent, err)
		return types.Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	v, err := parseVerdict(resp.Text())
	if err != nil {
		logging.OracleWarn("Gemini returned an unusable verdict for %q vs %q: %v", challenger, incumbent, err)
		return types.Verdict{}, err
	}
	logging.OracleDebug("Gemini: %q beats %q = %v (%s)", challenger, incumbent, v.Beats, persona)
	return v, nil
}
