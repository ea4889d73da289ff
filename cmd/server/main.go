// cmd/server/main.go
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/masswhatsapp/campaign-engine/internal/controller"
	"github.com/masswhatsapp/campaign-engine/internal/db"
	"github.com/masswhatsapp/campaign-engine/internal/engine"
	"github.com/masswhatsapp/campaign-engine/internal/handler"
	"github.com/masswhatsapp/campaign-engine/internal/provider"
	"github.com/masswhatsapp/campaign-engine/internal/quota"
	"github.com/masswhatsapp/campaign-engine/internal/queue"
	"github.com/masswhatsapp/campaign-engine/internal/ratelimit"
	"github.com/masswhatsapp/campaign-engine/internal/repository"
	"github.com/masswhatsapp/campaign-engine/internal/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()

	accountRepo := &repository.AccountRepository{DB: db.DB}
	campaignRepo := &repository.CampaignRepository{DB: db.DB}

	ledger := quota.NewLedger(accountRepo)
	limiters := ratelimit.NewRegistry(envFloat("SEND_RATE_PER_SEC", ratelimit.DefaultRatePerSec), 0)
	client := provider.NewBizChatClient(envOr("PROVIDER_BASE_URL", "https://bizchatapi.in/api"))

	eng := engine.NewEngine(engine.Config{
		Workers:      envInt("DISPATCH_WORKERS", 4),
		PollInterval: time.Second,
	}, campaignRepo, accountRepo, client, limiters, log.Logger)

	// Standalone mode runs the engine in-process; set AMQP_URL to hand
	// dispatch jobs to a separate worker instead.
	var q queue.Queue
	if url := os.Getenv("AMQP_URL"); url != "" {
		amqpQueue, err := queue.NewAMQPQueue(url)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		q = amqpQueue
	} else {
		q = queue.NewInMemoryQueue()
		if err := queue.StartDispatchSubscriber(q, eng, log.Logger); err != nil {
			log.Fatal().Err(err).Msg("failed to start dispatch subscriber")
		}
		if err := eng.Recover(); err != nil {
			log.Error().Err(err).Msg("recovery scan failed")
		}
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		AccountRepo:  accountRepo,
		Ledger:       ledger,
		Queue:        q,
		Engine:       eng,
		Log:          log.Logger,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}
	campaignHandler := handler.NewCampaignHandler(campaignService)

	sched := engine.NewScheduler(eng, campaignRepo, log.Logger, 5*time.Second)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/api/messages/send", campaignController.CreateCampaign)
	r.Get("/api/campaigns", campaignController.ListCampaigns)
	r.Get("/api/campaigns/{id}", campaignHandler.GetCampaignHandler)
	r.Get("/api/campaigns/{id}/stats", campaignHandler.GetCampaignStatsHandler)
	r.Post("/api/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/api/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/api/campaigns/{id}/cancel", campaignController.CancelCampaign)

	port := envOr("PORT", "8080")
	log.Info().Str("port", port).Msg("🚀 server running")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
