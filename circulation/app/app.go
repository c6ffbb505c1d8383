package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/config"
	"github.com/odl-go/circulation-service/circulation/internal/handler"
	"github.com/odl-go/circulation-service/circulation/internal/odl"
	"github.com/odl-go/circulation-service/circulation/internal/repository"
	"github.com/odl-go/circulation-service/circulation/internal/server"
	"github.com/odl-go/circulation-service/circulation/internal/service"
	"github.com/odl-go/circulation-service/circulation/migrations"
	"github.com/odl-go/circulation-service/pkg/clock"
	"github.com/odl-go/circulation-service/pkg/kafka"
	"github.com/odl-go/circulation-service/pkg/logger"
	"github.com/odl-go/circulation-service/pkg/postgres"
)

func Run(cfg config.Config) {
	log := logger.NewLogger(cfg.Log, "circulation")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	collection, err := repo.GetCollection(ctx, cfg.CollectionID)
	if err != nil {
		log.Fatal("collection lookup", zap.Error(err), zap.Int64("collection_id", cfg.CollectionID))
	}
	client, err := odl.NewRegistry().Resolve(collection.Protocol, odl.Config{
		Username: cfg.ODL.Username,
		Password: cfg.ODL.Password,
		Timeout:  cfg.ODL.Timeout,
	}, log)
	if err != nil {
		log.Fatal("status client", zap.Error(err), zap.String("protocol", string(collection.Protocol)))
	}

	svc := service.NewService(repo, client, clock.NewSystem(), collection.ID, cfg.ODL.NotificationURL, log)

	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.CirculationConsumerGroup)
	if err != nil {
		log.Fatal("kafka.NewConsumer", zap.Error(err))
	}
	go func() {
		if err := kafka.Consume(ctx, consumer, handler.NewConsumer(svc.UpdateLoan, log), kafka.NotificationTopic); err != nil {
			log.Error("kafka consume", zap.Error(err))
		}
	}()

	go runReaper(ctx, svc, cfg.Reaper.Interval, log)

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer closeCancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if err = consumer.Close(); err != nil {
		log.Error("consumer.Close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}

// runReaper sweeps expired reservations on a timer so abandoned holds do
// not pin copies forever.
func runReaper(ctx context.Context, svc *service.Service, interval time.Duration, log *zap.Logger) {
	log = log.Named("reaper")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			report, err := svc.ReapExpiredHolds(ctx)
			if err != nil {
				log.Error("reap expired holds", zap.Error(err))
				continue
			}
			if report.HoldsDeleted > 0 {
				log.Info("reaped expired reservations",
					zap.Int("holds_deleted", report.HoldsDeleted),
					zap.Int("pools_updated", report.PoolsUpdated))
			}
		case <-ctx.Done():
			return
		}
	}
}
