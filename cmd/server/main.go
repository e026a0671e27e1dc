package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/api/handlers"
	job "github.com/maheshrc27/autopost/internal/jobs"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/queue"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	zl, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		zl.Fatal("database is unreachable", zap.Error(err))
	}

	secrets, err := utils.NewSecretBox(cfg.SecretKey)
	if err != nil {
		zl.Fatal("invalid secret key", zap.Error(err))
	}

	ctx := context.Background()

	scheduleRepo := repository.NewScheduleRepository(db)
	postRepo := repository.NewPostRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	insightRepo := repository.NewInsightRepository(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	// media upload providers, tried in order
	var uploaders []service.Uploader
	if cfg.R2.BucketName != "" {
		s3Client, err := service.NewR2Client(ctx, cfg.R2)
		if err != nil {
			zl.Fatal("failed to configure r2", zap.Error(err))
		}
		uploaders = append(uploaders, service.NewR2Service(s3Client, cfg.R2))
	}
	if cfg.Fallback.ClientID != "" {
		uploaders = append(uploaders, service.NewFallbackUploader(cfg.Fallback, nil))
	}
	if len(uploaders) == 0 {
		zl.Warn("no media upload provider configured")
	}

	sources := service.SourceRouter{
		models.SourceKindLocal: service.NewLocalStore(cfg.LocalMediaRoot),
	}
	if cfg.GoogleCredentialsFile != "" {
		driveSrv, err := service.NewDriveService(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			zl.Fatal("failed to configure google drive", zap.Error(err))
		}
		sources[models.SourceKindDrive] = service.NewDriveStore(driveSrv)
	}

	media := service.NewMediaPipeline(service.MediaPipelineDeps{
		Uploaders:  uploaders,
		Index:      service.NewRedisHashIndex(rdb, 30*24*time.Hour),
		Transcoder: service.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.TempDir, zl),
		Probe:      &http.Client{},
	}, service.DefaultMediaConfig(), zl)

	instagram := service.NewInstagramService(cfg.Instagram, nil)
	publisher := service.NewPublisher(instagram, service.DefaultPublisherConfig(), service.ContextSleep, zl)
	guard := service.NewTokenGuard(secrets, service.ShapeValidator{
		MinLength:  cfg.Token.MinLength,
		MockPrefix: cfg.Token.MockPrefix,
	}, socialAccountRepo, zl)

	// queue
	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)
	defer inspector.Close()
	jobQueue := queue.NewAsynqQueue(client, inspector)

	worker := queue.NewWorker(queue.WorkerDeps{
		Posts:     postRepo,
		Schedules: scheduleRepo,
		Assets:    mediaAssetRepo,
		Accounts:  socialAccountRepo,
		Insights:  insightRepo,
		Guard:     guard,
		Sources:   sources,
		Media:     media,
		Publisher: publisher,
		Instagram: instagram,
		Limiter:   rate.NewLimiter(rate.Every(cfg.Dispatcher.InsightsPacing), 1),
	}, zl)

	servers := []*asynq.Server{
		queue.NewServer(redisConn, queue.KindPublish, cfg.Workers.PublishConcurrency, zl),
		queue.NewServer(redisConn, queue.KindInsights, cfg.Workers.InsightsConcurrency, zl),
	}
	for _, srv := range servers {
		if err := srv.Start(queue.NewServeMux(worker)); err != nil {
			zl.Fatal("could not start asynq server", zap.Error(err))
		}
	}

	dispatcher, err := job.NewDispatcher(scheduleRepo, postRepo, jobQueue, cfg.Dispatcher, job.RealClock(), zl)
	if err != nil {
		zl.Fatal("failed to create dispatcher", zap.Error(err))
	}
	dispatcher.Start(ctx)

	// cron jobs
	tokenSweepJob := job.NewTokenSweepJob(socialAccountRepo, guard, zl)

	c := cron.New()
	if err := c.AddFunc(cfg.Dispatcher.TokenSweepSpec, tokenSweepJob.Run); err != nil {
		zl.Fatal("invalid token sweep spec", zap.String("spec", cfg.Dispatcher.TokenSweepSpec), zap.Error(err))
	}
	c.Start()

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			zl.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	api := app.Group("/api")

	schedules := handlers.NewScheduleHandler(dispatcher, scheduleRepo, postRepo, zl)
	api.Post("/schedules/:id/execute", schedules.ExecuteNow)
	api.Post("/schedules/:id/toggle", schedules.Toggle)
	api.Get("/schedules/:id/status", schedules.ExecutionStatus)

	posts := handlers.NewPostHandler(dispatcher, zl)
	api.Post("/posts/:id/retry", posts.RetryPost)

	jobs := handlers.NewJobHandler(jobQueue, zl)
	api.Get("/jobs/:kind/:id", jobs.Status)
	api.Delete("/jobs/:kind/:id", jobs.Remove)

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()
	zl.Info("server is running", zap.String("addr", cfg.HTTPAddr))

	gracefulShutdown(zl, app, dispatcher, c, servers)
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

// gracefulShutdown stops intake first: no new schedules are dispatched and
// no new HTTP requests are accepted, then running jobs are given the asynq
// shutdown timeout to finish.
func gracefulShutdown(zl *zap.Logger, app *fiber.App, dispatcher *job.Dispatcher, c *cron.Cron, servers []*asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	zl.Info("shutting down server")

	dispatcher.Stop()
	c.Stop()

	if err := app.Shutdown(); err != nil {
		zl.Error("failed to shut down http server", zap.Error(err))
	}

	for _, srv := range servers {
		srv.Shutdown()
	}

	zl.Info("server shutdown complete")
}
