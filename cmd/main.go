package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awspinpoint "github.com/aws/aws-sdk-go-v2/service/pinpointsmsvoicev2"
	awsqbusiness "github.com/aws/aws-sdk-go-v2/service/qbusiness"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	awssts "github.com/aws/aws-sdk-go-v2/service/sts"

	"sms-chat-agent/handler"
	"sms-chat-agent/internal/integrations/identity"
	"sms-chat-agent/internal/integrations/paramstore"
	"sms-chat-agent/internal/integrations/qchat"
	"sms-chat-agent/internal/integrations/smschannel"
	"sms-chat-agent/internal/repository"
	"sms-chat-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	contextTable := mustEnv("CONTEXT_TABLE")
	issuerURL := mustEnv("ISSUER_URL")
	roleARN := mustEnv("ASSUME_ROLE_ARN")
	applicationID := mustEnv("QBUSINESS_APPLICATION_ID")
	originationNumber := mustEnv("ORIGINATION_NUMBER")
	paramPrefix := mustEnv("PARAM_PREFIX")
	contextTTLDays := envInt("CONTEXT_TTL_DAYS", 7)
	issuerOrigin := os.Getenv("ISSUER_ORIGIN")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create paramstore client", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), contextTable,
		time.Duration(contextTTLDays)*24*time.Hour)
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		os.Exit(1)
	}
	tokenClient, err := identity.NewTokenClient(issuerURL, ssmClient, paramPrefix,
		identity.WithOrigin(issuerOrigin))
	if err != nil {
		slog.Error("failed to create token client", "err", err)
		os.Exit(1)
	}
	federator, err := identity.NewFederator(tokenClient, awssts.NewFromConfig(cfg), roleARN)
	if err != nil {
		slog.Error("failed to create credential federator", "err", err)
		os.Exit(1)
	}
	chatClient, err := qchat.New(awsqbusiness.NewFromConfig(cfg), applicationID)
	if err != nil {
		slog.Error("failed to create chat client", "err", err)
		os.Exit(1)
	}
	smsClient, err := smschannel.New(awspinpoint.NewFromConfig(cfg), originationNumber)
	if err != nil {
		slog.Error("failed to create sms client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	turnService, err := usecase.NewTurnService(store, federator, chatClient, smsClient)
	if err != nil {
		slog.Error("failed to create turn service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(turnService)
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
