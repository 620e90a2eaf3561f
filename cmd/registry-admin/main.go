package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ensemble-signal-engine/config"
	"ensemble-signal-engine/internal/database"
	"ensemble-signal-engine/internal/ensemble"
)

func main() {
	fmt.Println("========================================")
	fmt.Println(" Model Registry Administration Tool")
	fmt.Println("========================================")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Name,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	store := database.NewStore(db)
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. List registry entries")
		fmt.Println("  2. Register a model version")
		fmt.Println("  3. Activate a model version")
		fmt.Println("  4. Set agent weight")
		fmt.Println("  5. Seed default agents")
		fmt.Println("  6. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			listEntries(ctx, store)
		case "2":
			registerVersion(ctx, store, reader)
		case "3":
			activateVersion(ctx, store, reader)
		case "4":
			setWeight(ctx, store, reader)
		case "5":
			seedDefaults(ctx, store)
		case "6":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func listEntries(ctx context.Context, store *database.Store) {
	entries, err := store.AllEntries(ctx)
	if err != nil {
		fmt.Printf("Failed to list entries: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("Registry is empty")
		return
	}

	fmt.Printf("\n%-24s %-18s %-10s %-8s %-8s %s\n",
		"AGENT", "CATEGORY", "VERSION", "WEIGHT", "STATUS", "PATH")
	for _, e := range entries {
		fmt.Printf("%-24s %-18s %-10s %-8.2f %-8s %s\n",
			e.AgentName, e.Category, e.Version, e.Weight, e.Status, e.ModelPath)
	}
}

func registerVersion(ctx context.Context, store *database.Store, reader *bufio.Reader) {
	fmt.Print("Agent name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("Version: ")
	version, _ := reader.ReadString('\n')
	version = strings.TrimSpace(version)

	fmt.Print("Model path: ")
	path, _ := reader.ReadString('\n')
	path = strings.TrimSpace(path)

	fmt.Print("Weight (0-1, default 0.5): ")
	weightStr, _ := reader.ReadString('\n')
	weight := 0.5
	if w, err := strconv.ParseFloat(strings.TrimSpace(weightStr), 64); err == nil {
		weight = w
	}

	entry := database.RegistryEntry{
		AgentName: name,
		Category:  string(ensemble.CategoryFromName(name)),
		ModelPath: path,
		Version:   version,
		Weight:    weight,
		Status:    "inactive",
	}
	if err := store.UpsertEntry(ctx, entry); err != nil {
		fmt.Printf("Failed to register: %v\n", err)
		return
	}
	fmt.Printf("Registered %s %s (inactive, use option 3 to activate)\n", name, version)
}

func activateVersion(ctx context.Context, store *database.Store, reader *bufio.Reader) {
	fmt.Print("Agent name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("Version to activate: ")
	version, _ := reader.ReadString('\n')
	version = strings.TrimSpace(version)

	if err := store.SwapActive(ctx, name, version); err != nil {
		fmt.Printf("Failed to activate: %v\n", err)
		return
	}
	fmt.Printf("Activated %s %s\n", name, version)
}

func setWeight(ctx context.Context, store *database.Store, reader *bufio.Reader) {
	fmt.Print("Agent name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("New weight (0-1): ")
	weightStr, _ := reader.ReadString('\n')
	weight, err := strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
	if err != nil || weight < 0 || weight > 1 {
		fmt.Println("Weight must be a number in [0, 1]")
		return
	}

	if err := store.UpdateWeight(ctx, name, weight); err != nil {
		fmt.Printf("Failed to update weight: %v\n", err)
		return
	}
	fmt.Printf("Updated %s weight to %.2f\n", name, weight)
}

func seedDefaults(ctx context.Context, store *database.Store) {
	defaults := []database.RegistryEntry{
		{AgentName: "technical_m1", Category: "technical", ModelPath: "technical_m1.json", Version: "v1", Weight: 0.5, Status: "active"},
		{AgentName: "technical_m5", Category: "technical", ModelPath: "technical_m5.json", Version: "v1", Weight: 0.5, Status: "active"},
		{AgentName: "sentiment_news", Category: "sentiment", ModelPath: "sentiment_news.json", Version: "v1", Weight: 0.5, Status: "active"},
		{AgentName: "price_prediction_lstm", Category: "price_prediction", ModelPath: "price_prediction_lstm.json", Version: "v1", Weight: 0.5, Status: "active"},
		{AgentName: "risk_assessment_core", Category: "risk_assessment", ModelPath: "risk_assessment_core.rules", Version: "v1", Weight: 0.5, Status: "active"},
	}

	for _, e := range defaults {
		if err := store.UpsertEntry(ctx, e); err != nil {
			fmt.Printf("Failed to seed %s: %v\n", e.AgentName, err)
			continue
		}
		fmt.Printf("Seeded %s (%s)\n", e.AgentName, e.Category)
	}
}
