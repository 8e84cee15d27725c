package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/club-lending/lending/config"
	"github.com/Astemirdum/club-lending/lending/internal/handler"
	"github.com/Astemirdum/club-lending/lending/internal/repository"
	"github.com/Astemirdum/club-lending/lending/internal/server"
	"github.com/Astemirdum/club-lending/lending/internal/service"
	"github.com/Astemirdum/club-lending/lending/migrations"
	"github.com/Astemirdum/club-lending/pkg/kafka"
	"github.com/Astemirdum/club-lending/pkg/logger"
	"github.com/Astemirdum/club-lending/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "lending")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := newRepository(ctx, cfg, log)
	defer closeRepo()

	var enqueuer service.Enqueuer = service.NopEnqueuer{}
	if cfg.Kafka.Enable {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		defer producer.Close() //nolint:errcheck
		enqueuer = service.NewEnqueuer(producer)
	}
	svc := service.NewService(repo, enqueuer, log.Named("service"))

	h := handler.New(svc, log, handler.WithJWTSecret(cfg.Auth.JWTSecret))
	srv := server.NewServer(cfg.Server, h.NewRouter())

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr",
				net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		return srv.Run()
	})
	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			return svc.RunSweeper(gCtx, cfg.SweepInterval)
		})
	}
	if cfg.Kafka.Enable {
		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.AuditConsumerGroup)
		if err != nil {
			log.Fatal("kafka.NewConsumer", zap.Error(err))
		}
		g.Go(func() error {
			return kafka.Consume(gCtx, consumer, handler.NewConsumer(svc.RecordEvent, log), log, kafka.TransactionTopic)
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Graceful shutdown")

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("lending stopped", zap.Error(err))
		return
	}
	log.Info("Graceful shutdown finished")
}

func newRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Repository, func()) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("in-memory storage: state is lost on restart")
		return repository.NewMemory(), func() {}
	}
	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}
	return repo, db.Close
}
