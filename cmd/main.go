package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"realestate-bot/internal/config"
	"realestate-bot/internal/integrations/paramstore"
	"realestate-bot/internal/integrations/sheets"
	"realestate-bot/internal/listing"
	"realestate-bot/internal/repository"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	Execute()
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// awsLoader loads the shared AWS SDK config at most once, and only for
// commands that need SSM or DynamoDB.
type awsLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
	})
	return l.cfg, l.err
}

func loadConfig(ctx context.Context, al *awsLoader) (config.Config, error) {
	var secrets paramstore.Getter
	if prefix := os.Getenv("PARAM_PREFIX"); prefix != "" {
		awsCfg, err := al.load(ctx)
		if err != nil {
			return config.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg), prefix)
		if err != nil {
			return config.Config{}, fmt.Errorf("create SSM client: %w", err)
		}
		secrets = ps
	}
	return config.Load(ctx, os.LookupEnv, secrets)
}

func newListingCache(ctx context.Context, cfg config.Config) (*listing.Cache, error) {
	src, err := sheets.NewSource(ctx, cfg.SheetsID, cfg.SheetsRange, sheets.ServiceAccount(cfg.ServiceAccountJSON)...)
	if err != nil {
		return nil, err
	}
	return listing.NewCache(src, listing.WithTTL(cfg.ListingTTL))
}

func newTurnArchive(ctx context.Context, al *awsLoader, table string) (*repository.Client, error) {
	awsCfg, err := al.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return repository.New(awsdynamodb.NewFromConfig(awsCfg), table)
}
