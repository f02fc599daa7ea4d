package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/printstore/internal/obs"
	"github.com/noah-isme/printstore/internal/push"
	"github.com/noah-isme/printstore/internal/queue"
)

func main() {
	_ = godotenv.Load()

	kind := flag.String("kind", "test", "message to send: test, payment-received, payment-reminder")
	files := flag.Int("files", 1, "number of files in the job")
	total := flag.Float64("total", 0, "job total in rupees")
	jobID := flag.String("job", "", "job id")
	flag.Parse()

	logger := obs.NewLogger(obs.LogOptions{Format: "console", Level: envOrDefault("OBS_LOG_LEVEL", "info"), Component: "sendpush"})

	var payload push.Payload
	switch *kind {
	case "test":
		payload = push.TestMessage()
	case "payment-received":
		payload = push.PaymentReceived(*files, *total, *jobID)
	case "payment-reminder":
		payload = push.PaymentReminder(*files, *total, *jobID)
	default:
		logger.Fatal().Str("kind", *kind).Msg("unknown message kind")
	}

	redisURL := envOrDefault("REDIS_URL", "")
	if redisURL == "" {
		logger.Fatal().Msg("REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub := push.Publisher{Queue: queue.Enqueuer{R: client, Prefix: envOrDefault("PUSH_QUEUE_PREFIX", "push")}}
	id, err := pub.Send(ctx, payload)
	if err != nil {
		logger.Fatal().Err(err).Msg("send notification")
	}
	logger.Info().Str("kind", *kind).Str("key", id).Msg("notification queued")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
