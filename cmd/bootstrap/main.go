package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"z-genstudio-api/internal/config"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/wire"
	"z-genstudio-api/pkg/utils"
)

// bootstrap 建表、创建开发钱包并签发本地访问令牌
func main() {
	_ = godotenv.Load()

	walletID := flag.String("wallet", "dev-wallet", "wallet id to seed")
	userID := flag.String("user", "dev-user", "user id bound to the wallet")
	balance := flag.Int("balance", 100, "initial credit balance for a new wallet")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the issued access token")
	flag.Parse()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	dataLayer, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	if err := dataLayer.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	err = dataLayer.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := dataLayer.WalletRepo.GetByID(ctx, *walletID)
		if err != nil {
			return fmt.Errorf("check wallet existence: %w", err)
		}
		if existing != nil {
			fmt.Printf("Wallet %s already exists with %d credits.\n", existing.ID, existing.Balance)
			return nil
		}
		fmt.Printf("Creating wallet %s with %d credits...\n", *walletID, *balance)
		return dataLayer.WalletRepo.Create(ctx, &entity.Wallet{ID: *walletID, UserID: *userID, Balance: *balance})
	})
	if err != nil {
		log.Fatalf("failed to seed wallet: %v", err)
	}

	if cfg.Security.JWT.Secret == "" {
		fmt.Println("JWT secret not configured, skipping token.")
	} else {
		token, err := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer).
			GenerateToken(*userID, *walletID, utils.TokenTypeAccess, *tokenTTL)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Printf("Access token (%s):\n%s\n", *tokenTTL, token)
	}

	fmt.Println("Bootstrap completed successfully.")
}
