package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"fluxboom/internal/secrets"
)

func main() {
	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (fallbacks to environment)")
	flag.StringVar(&providerFlag, "provider", "replicate", "Provider to configure (replicate or imgbb)")
	flag.Parse()

	var secretName, envVar string
	switch strings.TrimSpace(strings.ToLower(providerFlag)) {
	case "replicate", "":
		secretName, envVar = secrets.KeyReplicate, "REPLICATE_API_TOKEN"
	case "imgbb":
		secretName, envVar = secrets.KeyImgbb, "IMGBB_API_KEY"
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	_ = godotenv.Load()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envVar))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "API key is required via -key or %s\n", envVar)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := secrets.NewStore(pool)

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.Set(ctxExec, secretName, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", providerFlag, err)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", secretName)
}
