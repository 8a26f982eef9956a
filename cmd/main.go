package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"listing-wizard/handler"
	"listing-wizard/internal/config"
	"listing-wizard/internal/integrations/paramstore"
	"listing-wizard/internal/providers"
	"listing-wizard/internal/repository"
	"listing-wizard/internal/usecase"
	"listing-wizard/internal/wizard"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	providerCfg := config.Default().Provider
	providerCfg.Primary = envString("PRIMARY_PROVIDER", providerCfg.Primary)
	providerCfg.HistoryLimit = envInt("HISTORY_LIMIT", providerCfg.HistoryLimit)
	providerCfg.TimeoutSeconds = envInt("PROVIDER_TIMEOUT_SECONDS", providerCfg.TimeoutSeconds)
	providerCfg.OpenAIModel = envString("OPENAI_MODEL", providerCfg.OpenAIModel)
	providerCfg.OpenAIBaseURL = envString("OPENAI_BASE_URL", providerCfg.OpenAIBaseURL)
	providerCfg.GeminiModel = envString("GEMINI_MODEL", providerCfg.GeminiModel)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 0)
	if errs := providerCfg.Validate(); len(errs) > 0 {
		slog.Error("invalid provider configuration", "err", errs)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	creds, err := paramstore.LoadCredentials(ctx, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to load provider credentials", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	gw, err := providers.NewGateway(ctx, providerCfg, creds)
	if err != nil {
		slog.Error("failed to create provider gateway", "err", err)
		os.Exit(1)
	}
	machine, err := wizard.NewMachine(gw)
	if err != nil {
		slog.Error("failed to create state machine", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := usecase.NewWizardService(stateClient, machine, usecase.WithMaxMessageLen(maxMessageLen))
	if err != nil {
		slog.Error("failed to create wizard service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
