package bootstrap

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrockruntime"
	"github.com/aws/aws-sdk-go/service/s3"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docuchat/internal/ai"
	"docuchat/internal/config"
	"docuchat/internal/model"
	mysqlClient "docuchat/internal/platform/mysql"
	"docuchat/internal/platform/pinecone"
	rabbitmqClient "docuchat/internal/platform/rabbitmq"
	redisClient "docuchat/internal/platform/redis"
	"docuchat/internal/platform/s3store"
	"docuchat/internal/repository"
	"docuchat/internal/worker"
)

// App holds the shared infrastructure handles. Repositories and services
// are wired per-router from these.
type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Bedrock     *ai.Client
	BlobStore   *s3store.Store
	VectorIndex *pinecone.Client
	EventWorker *worker.EventPersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.Document{},
		&model.ActivityEvent{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	awsSess, err := awssession.NewSession(&awssdk.Config{
		Region: awssdk.String(cfg.AWS.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session failed: %w", err)
	}

	bedrock := ai.NewClient(bedrockruntime.New(awsSess), ai.ModelIDs{
		Claude:    cfg.AWS.ClaudeModelID,
		Titan:     cfg.AWS.TitanModelID,
		Embedding: cfg.AWS.EmbeddingModelID,
	})
	blobStore := s3store.New(s3.New(awsSess), cfg.AWS.S3Bucket)
	vectorIndex := pinecone.New(cfg.Pinecone.IndexHost, cfg.Pinecone.APIKey)

	eventRepo := repository.NewActivityEventRepository(mysqlDB)
	eventWorker := worker.NewEventPersistWorker(mqConn, eventRepo, cfg.RabbitMQ.EventQueue)
	if err := eventWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start event worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		Bedrock:     bedrock,
		BlobStore:   blobStore,
		VectorIndex: vectorIndex,
		EventWorker: eventWorker,
		StartedAt:   time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
