package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyhub/internal/api"
	"studyhub/internal/api/handlers"
	"studyhub/internal/config"
	"studyhub/internal/db"
	"studyhub/internal/gemini"
	"studyhub/internal/notify"
	"studyhub/internal/quiz"
	"studyhub/internal/r2"
	"studyhub/internal/store"
	"studyhub/internal/youtube"

	sessions "github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	gsessions "github.com/gin-contrib/sessions/postgres"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const storeName = "studyhub_session"

func init() {
	// Load environment variables FIRST
	log.Println("Attempting to load .env file...")
	err := godotenv.Load()
	if err != nil {
		// Only treat "file not found" as a warning, other errors are fatal
		if !os.IsNotExist(err) {
			log.Fatalf("FATAL: Error loading .env file: %v", err)
		} else {
			log.Println("Warning: .env file not found. Relying on system environment variables.")
		}
	} else {
		log.Println(".env file loaded successfully.")
	}
}

func main() {
	cfg := config.FromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open test store: %v", err)
	}
	defer testStore.Close()

	geminiClient, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini client: %v", err)
	}
	defer geminiClient.Close()

	svc := quiz.NewService(testStore, geminiClient, quiz.Options{
		Timeout:              cfg.GenerationTimeout,
		QuestionMaxTokens:    cfg.QuestionMaxTokens,
		RemediationMaxTokens: cfg.RemediationMaxTokens,
		DefaultRequested:     cfg.DefaultRequested,
		MaxRequested:         cfg.MaxRequested,
		IndexPolicy:          quiz.ParseIndexPolicy(cfg.IndexPolicy),
	}).WithTranscripts(youtube.New())

	notifier := notify.NewDiscord(cfg.DiscordWebhookURL)
	if !notifier.Enabled() {
		log.Println("WARN: DISCORD_WEBHOOK_URL not set, notifications disabled")
	}

	router := gin.Default()

	// --- Session Configuration ---
	sessionStore, err := newSessionStore(cfg, testStore)
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		Secure:   false,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(storeName, sessionStore))

	handler := handlers.NewHandler(svc, notifier)
	api.SetupRoutes(router, handler, cfg.FrontendURL)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on port %s (store: %s)", cfg.Port, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give server 5 seconds to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown: %v", err)
	}
	notifier.Wait()

	log.Println("Server exited properly")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreFile:
		return store.NewFileStore(cfg.DataDir)
	case config.StoreSQLite, config.StorePostgres:
		driver := db.Driver(cfg.StoreDriver)
		conn, err := db.Open(ctx, driver, cfg.DatabaseURL, cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(conn, driver), nil
	case config.StoreR2:
		return r2.Open(ctx, r2.Options{
			AccountID:       cfg.R2AccountID,
			Bucket:          cfg.R2Bucket,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Prefix:          cfg.R2Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// newSessionStore keeps sessions in Postgres when the tests live there,
// otherwise in signed cookies.
func newSessionStore(cfg config.Config, testStore store.Store) (sessions.Store, error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		log.Println("WARNING: SESSION_SECRET environment variable is not set or empty! Falling back to a development secret.")
		secret = []byte("studyhub-dev-secret")
	}

	if sqlStore, ok := testStore.(*store.SQLStore); ok && cfg.StoreDriver == config.StorePostgres {
		log.Printf("DEBUG: Initializing postgres session store with key length: %d", len(secret))
		return gsessions.NewStore(sqlStore.DB(), secret)
	}
	return cookie.NewStore(secret), nil
}
