package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/vkropotko/fulfillment/internal/config"
	"github.com/vkropotko/fulfillment/internal/db"
	"github.com/vkropotko/fulfillment/internal/models"
)

// Seed the database with demo users, accounts and products
func main() {
	ctx := context.Background()
	cfg := config.Load()

	store, err := db.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	// First check if we already have products
	var productCount int
	if err := store.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&productCount); err != nil {
		log.Fatalf("Failed to check products: %v", err)
	}
	if productCount > 0 {
		fmt.Printf("Database already has %d products. No need to seed.\n", productCount)
		os.Exit(0)
	}

	buyer := seedUser(ctx, store, "buyer1", "password1")
	seller := seedUser(ctx, store, "seller1", "password1")

	if _, err := store.CreateAccount(ctx, buyer.ID, 500); err != nil {
		log.Fatalf("Failed to create buyer account: %v", err)
	}
	if _, err := store.CreateAccount(ctx, seller.ID, 50); err != nil {
		log.Fatalf("Failed to create seller account: %v", err)
	}

	products := []models.Product{
		{Name: "Mechanical keyboard", Stock: 10, Price: 80},
		{Name: "USB microscope", Stock: 4, Price: 120},
		{Name: "Soldering station", Stock: 25, Price: 45},
	}
	for _, p := range products {
		created, err := store.CreateProduct(ctx, &p)
		if err != nil {
			log.Fatalf("Failed to create product %q: %v", p.Name, err)
		}
		fmt.Printf("Created product %d: %s (stock %d, price %.2f)\n",
			created.ID, created.Name, created.Stock, created.Price)
	}

	fmt.Println("Successfully seeded the database!")
}

func seedUser(ctx context.Context, store *db.Store, username, password string) *models.User {
	if user, err := store.GetUserByUsername(ctx, username); err == nil {
		return user
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user, err := store.CreateUser(ctx, username, string(hash))
	if err != nil {
		log.Fatalf("Failed to create user %q: %v", username, err)
	}
	fmt.Printf("Created user %d: %s\n", user.ID, user.Username)
	return user
}
