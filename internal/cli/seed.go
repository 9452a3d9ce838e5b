package cli

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"learnspace-service/internal/config"
	"learnspace-service/internal/domain"
	infraredis "learnspace-service/internal/infra/redis"
)

// NewSeedCmd prepares the backing store: it writes an initial guest space
// with a welcome chat so a fresh deployment starts non-empty.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the store with the initial guest space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("seed requires a configured redis address")
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	spaces := infraredis.NewSpaceStore(client, log)
	chats := infraredis.NewChatStore(client, log)

	existing, err := spaces.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("store already seeded", zap.Int("spaces", len(existing)))
		return nil
	}

	now := time.Now()
	welcome := domain.Message{
		ID:      uuid.NewString(),
		Role:    domain.RoleAssistant,
		Content: "Welcome to your first space! Ask me anything about the topic you want to study.",
	}
	chat := domain.ChatSession{
		ID:        uuid.NewString(),
		Title:     "Getting Started",
		Messages:  []domain.Message{welcome},
		UpdatedAt: now,
	}
	space := domain.Space{
		ID:          uuid.NewString(),
		Name:        "Getting Started",
		Description: "A space to try out chats and quizzes",
		Chats:       []domain.ChatSession{chat},
		Quizzes:     []domain.QuizHistoryEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := spaces.Create(ctx, space); err != nil {
		return err
	}
	if _, err := chats.Save(ctx, cfg.Chat.UserID, chat.ID, chat.Messages, chat.Title); err != nil {
		return err
	}
	log.Info("seeded initial space", zap.String("spaceId", space.ID))
	return nil
}
