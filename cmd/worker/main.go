// Package main (in worker-subfolder) launches the pre-generation worker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/cache"
	"github.com/lazylama/memeswap/internal/faceswap"
	"github.com/lazylama/memeswap/internal/filter"
	"github.com/lazylama/memeswap/internal/kafka"
	"github.com/lazylama/memeswap/internal/modelmgr"
	"github.com/lazylama/memeswap/internal/repository"
	"github.com/lazylama/memeswap/internal/service"
	"github.com/lazylama/memeswap/internal/source"
	"github.com/lazylama/memeswap/internal/storage"
	"github.com/lazylama/memeswap/internal/vision"
	"github.com/lazylama/memeswap/internal/worker"
)

func main() {
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel("info"); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	dbConn := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	strg := storage.NewImgStorage(appConfig, 10*time.Second)

	memeCache := cache.NewMemeCache(dbConn, 24*time.Hour)

	models := modelmgr.NewManager(modelConfig(appConfig))
	pipe := faceswap.New(faceswap.Config{AggressiveFree: true}, strg, models)

	var svc worker.WarmService = service.NewMemeService(service.Options{
		Pipeline:  pipe,
		Models:    models,
		Storage:   strg,
		Fetcher:   source.NewFetcher(15 * time.Second),
		MemeCache: memeCache,
		// trends listing is not served here, the in-memory fallback is enough
		TrendsCache: cache.NewTrendsCache("", "", 2*time.Hour),
		Filter:      filter.New(nil),
		MaxWorkers:  1,
	})

	broker := appConfig.GetString("KAFKA_BROKER")
	kafka.WaitKafkaReady(broker)

	queue := make(chan kafkago.Message)
	retryStrategy := retry.Strategy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Backoff:  1.5,
	}
	topic := appConfig.GetString("KAFKA_TOPIC")
	groupID := appConfig.GetString("KAFKA_GROUPID")
	cons := wbfkafka.NewConsumer([]string{broker}, topic, groupID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cons.StartConsuming(ctx, queue, retryStrategy)

	go worker.NewWorkerInstance(svc, memeCache, queue, cons).StartWorker(ctx)

	<-ctx.Done()

	shutdown(cons, dbConn, models)
	zlog.Logger.Info().Msg("Exiting worker...")
}

func shutdown(cons *wbfkafka.Consumer, dbConn *dbpg.DB, models *modelmgr.Manager) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	if err := cons.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to close Kafka-reader")
	}

	if err := models.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to release models")
	}
	if err := vision.Shutdown(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to shut down inference runtime")
	}

	if err := dbConn.Master.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to close DB-conn correctly")
		return
	}
	zlog.Logger.Info().Msg("DBconn closed")
}
