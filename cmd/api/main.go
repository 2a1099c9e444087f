// Package main (in api-subfolder) provides launch of the whole application except worker
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/cache"
	"github.com/lazylama/memeswap/internal/faceswap"
	"github.com/lazylama/memeswap/internal/filter"
	"github.com/lazylama/memeswap/internal/kafka"
	"github.com/lazylama/memeswap/internal/modelmgr"
	"github.com/lazylama/memeswap/internal/mwlogger"
	"github.com/lazylama/memeswap/internal/repository"
	"github.com/lazylama/memeswap/internal/roast"
	"github.com/lazylama/memeswap/internal/service"
	"github.com/lazylama/memeswap/internal/source"
	"github.com/lazylama/memeswap/internal/storage"
	"github.com/lazylama/memeswap/internal/transport"
	"github.com/lazylama/memeswap/internal/vision"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// postgres backs the durable meme cache
	dbConn := repository.ConnectWithRetries(appConfig, 5, 10*time.Second)
	repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second)

	strg := storage.NewImgStorage(appConfig, 10*time.Second)

	memeCache := cache.NewMemeCache(dbConn, 24*time.Hour)
	trendsCache := cache.NewTrendsCache(
		appConfig.GetString("REDIS_ADDR"),
		appConfig.GetString("REDIS_PASS"),
		2*time.Hour,
	)

	broker := appConfig.GetString("KAFKA_BROKER")
	kafka.WaitKafkaReady(broker)
	topic := appConfig.GetString("KAFKA_TOPIC")
	kafka.InitKafkaTopics(ctx, broker, 10*time.Second, topic)
	pub := wbfkafka.NewProducer([]string{broker}, topic)

	models := modelmgr.NewManager(modelConfig(appConfig))
	pipe := faceswap.New(faceswap.Config{}, strg, models)

	var svc MemeAPIService = service.NewMemeService(service.Options{
		Pipeline:    pipe,
		Models:      models,
		Storage:     strg,
		Publisher:   pub,
		Fetcher:     source.NewFetcher(15 * time.Second),
		Trends:      source.NewRedditSource(10*time.Second, appConfig.GetString("HTTP_USER_AGENT")),
		Search:      source.NewWikiSource(10*time.Second, appConfig.GetString("HTTP_USER_AGENT")),
		Roaster:     roast.New(appConfig.GetString("XAI_API_KEY"), appConfig.GetString("XAI_BASE_URL"), appConfig.GetString("XAI_MODEL")),
		MemeCache:   memeCache,
		TrendsCache: trendsCache,
		Filter:      filter.New(nil),
		MaxWorkers:  2,
		Subreddits:  source.SafeSubreddits,
	})

	handlers := transport.NewMemeHandler(svc)

	mode := appConfig.GetString("GIN_MODE")
	engine := ginext.New(mode)

	engine.GET("/ping", handlers.SimplePinger)
	engine.GET("/api/trends", handlers.Trends)          // trending candidates, filtered
	engine.GET("/api/swap", handlers.SwapByURL)         // swap by source URL
	engine.POST("/api/upload", handlers.SwapUpload)     // swap an uploaded image
	engine.GET("/api/search", handlers.Search)          // celebrity photo search
	engine.GET("/api/roast", handlers.Roast)            // caption for a stored swap
	engine.POST("/api/cache/refresh", handlers.RefreshCache)
	engine.GET("/images/*key", handlers.LoadImage) // download original or swapped image

	srv := &http.Server{
		Addr:    ":" + appConfig.GetString("APP_PORT"),
		Handler: mwlogger.NewMWLogger(engine),
	}

	go func() {
		zlog.Logger.Info().Str("addr", srv.Addr).Msg("Server running")
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				zlog.Logger.Info().Msg("Server gracefully stopping...")
			default:
				zlog.Logger.Error().Err(err).Msg("Server stopped")
				stop()
			}
		}
	}()

	<-ctx.Done()

	shutdown(pub, dbConn, models)
	zlog.Logger.Info().Msg("Exiting app...")
}

// modelConfig builds the artifact resolution config: local candidates
// first, remote download as a fallback.
func modelConfig(appConfig *config.Config) modelmgr.Config {
	modelDir := appConfig.GetString("MODEL_DIR")
	if modelDir == "" {
		modelDir = "./models"
	}

	refPath := appConfig.GetString("REFERENCE_FACE")
	if refPath == "" {
		refPath = filepath.Join(modelDir, "reference.jpg")
	}

	return modelmgr.Config{
		DetectorPaths:  candidatePaths(modelDir, "det_10g.onnx"),
		DetectorURL:    appConfig.GetString("DETECTOR_URL"),
		RecognizerPath: filepath.Join(modelDir, "w600k_r50.onnx"),
		SwapperPaths:   candidatePaths(modelDir, "inswapper_128.onnx"),
		SwapperURL:     appConfig.GetString("SWAPPER_URL"),
		ReferencePath:  refPath,
	}
}

func candidatePaths(modelDir, name string) []string {
	paths := []string{filepath.Join(modelDir, name), filepath.Join("/models", name)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".memeswap", "models", name))
	}
	return paths
}

func shutdown(pub *wbfkafka.Producer, dbConn *dbpg.DB, models *modelmgr.Manager) {
	zlog.Logger.Info().Msg("Interrupt received!!! Starting shutdown sequence...")

	if err := pub.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to close Kafka-producer")
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
