package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"paperdraft/internal/api"
	"paperdraft/internal/config"
	"paperdraft/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	var store storage.StateStore
	if cfg.PostgresURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		repo := storage.NewStateRepo(db)
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		store = repo
	} else {
		log.Printf("no postgres url configured, state will not survive restarts")
		store = storage.NewMemoryStateStore()
	}

	h := api.NewServer(cfg, store)
	log.Printf("paperdraft api listening on %s gemini_model=%q openrouter_model=%q", cfg.APIAddr, cfg.DefaultGeminiModel, cfg.DefaultOpenRouterModel)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
