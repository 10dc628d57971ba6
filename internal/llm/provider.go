package llm

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"github.com/raphaelgruber/qaharvest/internal/config"
)

// Generation parameters shared by all providers.
const (
	temperature = 0.3
	maxTokens   = 3000
)

// Provider is a single text-completion backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// langchainProvider adapts any langchaingo model.
type langchainProvider struct {
	name  string
	model llms.Model
}

func (p *langchainProvider) Name() string { return p.name }

func (p *langchainProvider) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// geminiProvider talks to the Gemini API through the genai SDK.
type geminiProvider struct {
	client *genai.Client
	model  string
}

func (p *geminiProvider) Name() string { return config.ProviderGemini }

func (p *geminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

// NewProvider creates the named provider from configuration.
func NewProvider(ctx context.Context, name string, cfg config.Config) (Provider, error) {
	var (
		model llms.Model
		err   error
	)

	switch name {
	case config.ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, errors.New("groq API key required")
		}
		// Groq serves an OpenAI-compatible API.
		model, err = openai.New(
			openai.WithToken(cfg.GroqAPIKey),
			openai.WithModel(cfg.GroqModel),
			openai.WithBaseURL(cfg.GroqBaseURL),
		)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("openai API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.OpenAIModel),
		)

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.AnthropicModel),
		)

	case config.ProviderHuggingFace:
		if cfg.HuggingFaceToken == "" {
			return nil, errors.New("huggingface token required")
		}
		model, err = huggingface.New(
			huggingface.WithToken(cfg.HuggingFaceToken),
			huggingface.WithModel(cfg.HuggingFaceModel),
		)

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.OllamaModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.BedrockModel),
		)

	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("gemini API key required")
		}
		client, gErr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if gErr != nil {
			return nil, fmt.Errorf("create gemini client: %w", gErr)
		}
		return &geminiProvider{client: client, model: cfg.GeminiModel}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", name)
	}

	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", name, err)
	}
	return &langchainProvider{name: name, model: model}, nil
}
