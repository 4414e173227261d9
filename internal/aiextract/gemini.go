package aiextract

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// generator is the part of *genai.GenerativeModel the extractor uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini extracts through Google's Gemini API with a JSON response schema.
type Gemini struct {
	client *genai.Client
	model  generator
	s      settings
}

// NewGemini creates a Gemini extractor. Close releases the client.
func NewGemini(ctx context.Context, apiKey, modelName string, opts ...Option) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, eris.Wrap(err, "aiextract: create gemini client")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	s := apply(opts)

	m := client.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = geminiSchema()
	m.SystemInstruction = genai.NewUserContent(genai.Text(SystemPrompt))
	m.SetTemperature(float32(s.temperature))
	m.SetMaxOutputTokens(int32(s.maxTokens))

	return &Gemini{client: client, model: m, s: s}, nil
}

// Name implements Extractor.
func (g *Gemini) Name() string { return "gemini" }

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// ExtractViaAI implements Extractor.
func (g *Gemini) ExtractViaAI(ctx context.Context, text string) (model.Candidates, error) {
	return run(ctx, g.Name(), g.s, func(ctx context.Context) (string, error) {
		resp, err := g.model.GenerateContent(ctx, genai.Text(UserPrompt(text)))
		if err != nil {
			var gErr *googleapi.Error
			if errors.As(err, &gErr) && resilience.IsTransientHTTPStatus(gErr.Code) {
				return "", resilience.NewTransientError(err, gErr.Code)
			}
			return "", err
		}
		return geminiText(resp)
	})
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", eris.New("aiextract: gemini returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", eris.New("aiextract: gemini returned no text")
	}
	return b.String(), nil
}

// geminiSchema mirrors ResponseSchema in Gemini's schema dialect.
func geminiSchema() *genai.Schema {
	props := map[string]*genai.Schema{}
	conf := map[string]*genai.Schema{}
	for _, f := range model.Fields() {
		s := &genai.Schema{Type: genai.TypeString, Nullable: true}
		switch f.Kind {
		case model.KindNumber:
			s = &genai.Schema{Type: genai.TypeNumber, Nullable: true, Description: f.Unit}
		case model.KindEnum:
			s.Enum = []string{string(model.BillElectricity), string(model.BillGas), string(model.BillCombined)}
		}
		props[string(f.Name)] = s
		conf[string(f.Name)] = &genai.Schema{Type: genai.TypeNumber, Nullable: true}
	}
	props["confidence"] = &genai.Schema{Type: genai.TypeObject, Properties: conf}
	return &genai.Schema{Type: genai.TypeObject, Properties: props}
}
