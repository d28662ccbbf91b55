package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"mailtrace/backend/internal/auth"
	"mailtrace/backend/internal/config"
	"mailtrace/backend/internal/domain"
	sqlstore "mailtrace/backend/internal/storage/sql"
)

// main 在配置的数据库中创建管理员账户。
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: create-admin <email> <password> [username]")
		os.Exit(1)
	}

	email := os.Args[1]
	password := os.Args[2]
	username := "admin"
	if len(os.Args) >= 4 {
		username = os.Args[3]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("A database must be configured (MAILTRACE_DATABASE_TYPE / MAILTRACE_DATABASE_DSN)")
		os.Exit(1)
	}

	validator := domain.NewEmailValidator()
	if err := validator.ValidateAddress(email); err != nil {
		fmt.Printf("Invalid email: %v\n", err)
		os.Exit(1)
	}
	if err := domain.ValidatePassword(password); err != nil {
		fmt.Printf("Invalid password: %v\n", err)
		os.Exit(1)
	}

	store, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close() //nolint:errcheck

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Printf("Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := store.CreateUser(user); err != nil {
		fmt.Printf("Failed to create admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Admin user created: %s (%s)\n", email, user.ID)
}
