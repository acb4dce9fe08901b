package main

import (
    "context"
    "log"

    "github.com/joho/godotenv"

    "github.com/krushi/krushi-api/internal/config"
    "github.com/krushi/krushi-api/internal/server"
)

func main() {
    // .env is optional; real deployments set the environment directly
    _ = godotenv.Load()

    ctx := context.Background()
    cfg := config.Load()

    app, err := server.NewApp(ctx, cfg)
    if err != nil {
        log.Fatalf("startup: %v", err)
    }
    if err := app.Run(ctx); err != nil {
        log.Fatalf("server: %v", err)
    }
}
