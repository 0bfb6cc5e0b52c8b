package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/havana-support/internal/config"
	"github.com/wolfman30/havana-support/internal/conversation"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// BuildLLMClient wires provider -> optional fallback -> retries.
// awsCfg is only consulted for the bedrock provider.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, observer conversation.LLMObserver, logger *logging.Logger) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	var client conversation.LLMClient = primary
	if name := cfg.LLMFallbackProvider; name != "" && name != cfg.LLMProvider {
		fallback, err := buildProvider(ctx, name, cfg, awsCfg)
		if err != nil {
			logger.Warn("llm fallback provider unavailable; continuing without it", "provider", name, "error", err)
		} else {
			client = conversation.NewFallbackLLMClient(primary, fallback, logger)
			logger.Info("llm fallback enabled", "provider", name)
		}
	}

	logger.Info("llm client configured", "provider", cfg.LLMProvider, "timeout", cfg.LLMTimeout.String(), "max_retries", cfg.LLMMaxRetries)
	opts := []conversation.RetryOption{
		conversation.WithAttemptTimeout(cfg.LLMTimeout),
		conversation.WithMaxRetries(cfg.LLMMaxRetries),
		conversation.WithRetryBackoff(cfg.LLMRetryBackoff),
	}
	if observer != nil {
		opts = append(opts, conversation.WithLLMObserver(observer))
	}
	return conversation.NewRetryingLLMClient(client, logger, opts...), nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg aws.Config) (conversation.LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openai":
		client, err := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIClassifierModel, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bootstrap: bedrock: BEDROCK_MODEL_ID is required")
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	}
	return nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
}
