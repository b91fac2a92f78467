package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission/internal/config"
	"admission/internal/qrcache"
	"admission/internal/queue"
	"admission/internal/scan"
	"admission/internal/store"
	"admission/internal/token"
)

// Warmer pre-renders QR images so scan stations never wait on first render:
// every stored stall credential, plus a current-window token per registered
// subject. Bounded batches with pacing keep it from becoming a render storm.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "admission:warm")
	}

	issuer := token.NewIssuer(token.Config{
		Secret:           cfg.SigningSecret,
		RotationInterval: cfg.RotationInterval,
		GraceWindows:     cfg.GraceWindows,
		TagLen:           cfg.TagLen,
		LegacyIDTagLen:   cfg.LegacyIDTagLen,
		CompactTagLen:    cfg.CompactTagLen,
	}, nil)

	cache := qrcache.New(qrcache.NewRedisStore(redisClient.Client), qrcache.Config{
		RotationInterval: cfg.RotationInterval,
		StaticTTL:        cfg.StaticCacheTTL,
		Size:             cfg.QRSize,
		OpTimeout:        cfg.CacheTimeout,
	}, nil)

	repo := scan.NewRepository(db)
	wc := qrcache.WarmConfig{BatchSize: cfg.WarmBatchSize, Pacing: cfg.WarmPacing}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	fullPass(ctx, repo, cache, issuer, wc)

	ticker := time.NewTicker(cfg.WarmInterval)
	defer ticker.Stop()

	log.Println("warmer started, waiting for messages...")
	for {
		select {
		case <-ctx.Done():
			log.Println("warmer stopped")
			return
		case <-ticker.C:
			fullPass(ctx, repo, cache, issuer, wc)
		case msg, ok := <-messages:
			if !ok {
				log.Println("warmer stopped")
				return
			}
			handle(ctx, msg, repo, cache, issuer, wc)
		}
	}
}

func handle(ctx context.Context, msg queue.Message, repo *scan.Repository, cache *qrcache.Cache, issuer *token.Issuer, wc qrcache.WarmConfig) {
	switch msg.Type {
	case queue.TypeWarmStall:
		n := cache.WarmStatic(ctx, []string{string(msg.Body)}, wc)
		log.Printf("warmed stall credential (%d rendered)", n)
	case queue.TypeWarmSubject:
		n := cache.WarmRotating(ctx, []string{string(msg.Body)}, issuer.IssueRotating, wc)
		log.Printf("warmed subject %s (%d rendered)", msg.Body, n)
	case queue.TypeWarmAll:
		fullPass(ctx, repo, cache, issuer, wc)
	default:
		log.Printf("ignoring message type %q", msg.Type)
	}
}

func fullPass(ctx context.Context, repo *scan.Repository, cache *qrcache.Cache, issuer *token.Issuer, wc qrcache.WarmConfig) {
	stalls, err := repo.StallCredentials(ctx)
	if err != nil {
		log.Printf("load stall credentials failed: %v", err)
	} else {
		n := cache.WarmStatic(ctx, stalls, wc)
		log.Printf("warm pass: %d/%d stall credentials rendered", n, len(stalls))
	}

	subjects, err := repo.RegisteredSubjects(ctx)
	if err != nil {
		log.Printf("load subjects failed: %v", err)
		return
	}
	n := cache.WarmRotating(ctx, subjects, issuer.IssueRotating, wc)
	log.Printf("warm pass: %d/%d rotating tokens rendered", n, len(subjects))
}
