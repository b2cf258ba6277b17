// Package oracle asks an upstream language model whether one word beats
// another. Every backend shares the same prompts and the same strict parsing
// contract: anything other than a JSON object with a boolean "valid" field is
// treated as ErrUnavailable.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatbeats/internal/config"
	"whatbeats/internal/types"
)

// ErrUnavailable covers transport failures, timeouts and malformed answers.
var ErrUnavailable = errors.New("oracle: unavailable")

// DefaultTimeout bounds a single judgment when the caller's context has none.
const DefaultTimeout = 10 * time.Second

// Oracle renders a verdict on challenger versus incumbent.
type Oracle interface {
	Judge(ctx context.Context, challenger, incumbent string, persona types.Persona) (types.Verdict, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, challenger, incumbent string, persona types.Persona) (types.Verdict, error)

func (f Func) Judge(ctx context.Context, challenger, incumbent string, persona types.Persona) (types.Verdict, error) {
	return f(ctx, challenger, incumbent, persona)
}

// New builds the oracle selected by c.Oracle.Provider.
func New(ctx context.Context, c *config.Config) (Oracle, error) {
	cfg := c.Oracle
	timeout := c.GetOracleTimeout()

	switch cfg.Provider {
	case "gemini", "":
		o, err := NewGeminiOracle(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	case "openai":
		model := cfg.Model
		if strings.HasPrefix(model, "gemini") {
			// Left over from the default config; use the backend default.
			model = ""
		}
		o, err := NewHTTPOracle(HTTPConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   model,
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

// parseVerdict decodes a model answer. Models sometimes wrap JSON in a
// markdown fence even when asked not to; the fence is stripped, nothing else
// is forgiven.
func parseVerdict(raw string) (types.Verdict, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return types.Verdict{}, fmt.Errorf("%w: response is not a JSON object: %v", ErrUnavailable, err)
	}

	rawValid, ok := fields["valid"]
	if !ok {
		return types.Verdict{}, fmt.Errorf("%w: response has no \"valid\" field", ErrUnavailable)
	}
	// A JSON null leaves a plain bool untouched, so decode through a pointer.
	var beats *bool
	if err := json.Unmarshal(rawValid, &beats); err != nil || beats == nil {
		return types.Verdict{}, fmt.Errorf("%w: \"valid\" is not a boolean: %s", ErrUnavailable, rawValid)
	}
	v := types.Verdict{Beats: *beats}
	if rawExp, ok := fields["explanation"]; ok {
		// A non-string explanation is cosmetic; keep the verdict.
		_ = json.Unmarshal(rawExp, &v.Explanation)
	}
	return v, nil
}

// withTimeout applies d unless ctx already carries a deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
