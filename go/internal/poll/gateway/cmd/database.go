package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/dbconfig"
	"github.com/mcdev12/livepoll/go/internal/poll/archive"
)

func setupArchive(ctx context.Context, driver string) (archive.Archive, error) {
	if driver == "" || driver == "memory" {
		log.Info().Msg("using in-memory poll archive")
		return archive.NewMemoryStore(), nil
	}

	if driver == "dynamodb" {
		return setupDynamo(ctx, dbconfig.NewConfigFromEnv())
	}

	dialect, err := archive.DialectByName(driver)
	if err != nil {
		return nil, err
	}

	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()
	if dialect.Name == archive.SQLite.Name {
		dsn = cfg.SQLiteDSN()
	}

	store, err := archive.OpenSQL(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s archive: %w", driver, err)
	}

	if dialect.Name == archive.SQLite.Name {
		log.Info().Str("path", cfg.SQLitePath).Msg("connected to sqlite archive")
	} else {
		log.Info().
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Str("database", cfg.Database).
			Msg("connected to database")
	}
	return store, nil
}

func setupDynamo(ctx context.Context, cfg dbconfig.Config) (archive.Archive, error) {
	awsConfig := aws.NewConfig().WithRegion(cfg.AWSRegion)
	if cfg.DynamoEndpoint != "" {
		awsConfig = awsConfig.WithEndpoint(cfg.DynamoEndpoint)
	}
	s, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	tableName := archive.DynamoTableName(cfg.DynamoEnv)
	store := archive.NewDynamoStore(dynamodb.New(s), tableName)
	if err := store.CreateTableIfNotExists(ctx); err != nil {
		return nil, err
	}

	log.Info().
		Str("table", tableName).
		Str("region", cfg.AWSRegion).
		Msg("connected to dynamodb archive")
	return store, nil
}
