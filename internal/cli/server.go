package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"learnspace-service/internal/app"
	"learnspace-service/internal/config"
	"learnspace-service/internal/infra/gemini"
	"learnspace-service/internal/infra/memory"
	infraredis "learnspace-service/internal/infra/redis"
	transport "learnspace-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the learnspace server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	chats, spaces := buildStores(cfg, log)

	if cfg.Gemini.APIKey == "" {
		return errors.New("gemini API key is required (set GEMINI_API_KEY or gemini.api_key)")
	}
	llm, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, log)
	if err != nil {
		return err
	}

	notifier := app.NewNotifier()
	svc := app.NewService(chats, spaces, llm, notifier, log)

	handler := transport.NewHandler(svc, chats, spaces, cfg.Chat.UserID, log)
	events := transport.NewEventsHandler(notifier, log)
	router := handler.Router(events)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // inference calls can be slow
	}

	go func() {
		log.Info("starting learnspace service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStores picks Redis-backed stores when an address is configured and
// falls back to in-memory stores otherwise.
func buildStores(cfg config.Config, log *zap.Logger) (app.ChatStore, app.SpaceStore) {
	if cfg.Redis.Addr == "" {
		log.Warn("redis not configured; using in-memory stores (state is lost on restart)")
		return memory.NewChatStore(), memory.NewSpaceStore()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return infraredis.NewChatStore(client, log), infraredis.NewSpaceStore(client, log)
}
