package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fjod/shop_client/internal/auth"
	"github.com/fjod/shop_client/internal/cache"
	"github.com/fjod/shop_client/internal/domain"
	"github.com/fjod/shop_client/internal/remote"
	"github.com/fjod/shop_client/internal/service"
	"github.com/fjod/shop_client/internal/view"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	BaseURL         string
	DBPath          string
	MigrationsPath  string
	CredentialsPath string
	RedisAddr       string
	RequestTimeout  time.Duration
}

func loadConfig() *Config {
	return &Config{
		BaseURL:         getEnv("SHOP_API_URL", "http://localhost:8080"),
		DBPath:          getEnv("SHOP_DB_PATH", "shop_client.db"),
		MigrationsPath:  getEnv("SHOP_MIGRATIONS_PATH", "internal/cache/migrations"),
		CredentialsPath: getEnv("SHOP_CREDENTIALS_PATH", ".shop_credentials.json"),
		RedisAddr:       getEnv("SHOP_REDIS_ADDR", ""),
		RequestTimeout:  30 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	ctx := context.Background()

	creds := auth.NewFileCredentialStore(cfg.CredentialsPath)

	base := otelhttp.NewTransport(http.DefaultTransport)
	httpClient := &http.Client{
		Transport: auth.NewTransport(base, creds, cfg.BaseURL+"/auth/refresh"),
		Timeout:   cfg.RequestTimeout,
	}
	remoteCart := remote.NewClient(cfg.BaseURL, httpClient)

	cartCache, err := cache.NewSQLiteCache(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open local cart cache: %v", err)
	}
	defer cartCache.Close()
	if err := cartCache.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var products cache.ProductCache = cache.NewMemoryProductCache(15 * time.Minute)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		products = cache.NewRedisProductCache(redisClient)
	}

	coordinator := service.NewCoordinator(cartCache, products, remoteCart)

	if err := run(ctx, os.Args[1], os.Args[2:], cfg, httpClient, creds, coordinator); err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, command string, args []string, cfg *Config, httpClient *http.Client, creds auth.CredentialStore, coordinator *service.Coordinator) error {
	switch command {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: login <email> <password>")
		}
		return login(ctx, cfg, httpClient, creds, args[0], args[1])

	case "logout":
		userID, err := creds.UserID(ctx)
		if err == nil {
			if err := coordinator.ClearLocal(ctx, userID); err != nil {
				return err
			}
		}
		return creds.Clear(ctx)

	case "get":
		userID, err := requireUser(ctx, creds)
		if err != nil {
			return err
		}
		// One-shot process: reconcile in the foreground, then show
		// whatever the mirror holds even if the refresh failed.
		if err := coordinator.Reconcile(ctx, userID); err != nil {
			log.Printf("cart refresh failed, showing local copy: %v", err)
		}
		entries, err := coordinator.LocalCart(ctx, userID)
		if err != nil {
			return err
		}
		printCart(entries)
		return nil

	case "add":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: add <productID> <quantity> [variantID]")
		}
		userID, err := requireUser(ctx, creds)
		if err != nil {
			return err
		}
		var quantity int
		if _, err := fmt.Sscanf(args[1], "%d", &quantity); err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		var variantID *string
		if len(args) == 3 {
			variantID = &args[2]
		}
		entry, err := coordinator.AddToCart(ctx, userID, args[0], variantID, quantity)
		if err != nil {
			if entry != nil {
				log.Printf("kept locally, will sync later: %v", err)
				printCart([]domain.CartEntry{*entry})
				return nil
			}
			return err
		}
		printCart([]domain.CartEntry{*entry})
		return nil

	case "update":
		if len(args) != 2 {
			return fmt.Errorf("usage: update <lineID> <quantity>")
		}
		userID, err := requireUser(ctx, creds)
		if err != nil {
			return err
		}
		var quantity int
		if _, err := fmt.Sscanf(args[1], "%d", &quantity); err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		return coordinator.UpdateQuantity(ctx, userID, args[0], quantity)

	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <lineID>")
		}
		userID, err := requireUser(ctx, creds)
		if err != nil {
			return err
		}
		return coordinator.RemoveItem(ctx, userID, args[0])

	case "clear":
		userID, err := requireUser(ctx, creds)
		if err != nil {
			return err
		}
		return coordinator.ClearCart(ctx, userID)

	case "sync":
		userID, err := requireUser(ctx, creds)
		if err != nil {
			return err
		}
		entries, err := coordinator.SyncCart(ctx, userID)
		if err != nil {
			return err
		}
		printCart(entries)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

func login(ctx context.Context, cfg *Config, httpClient *http.Client, creds auth.CredentialStore, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	if err := creds.SetTokens(ctx, domain.TokenPair{AccessToken: lr.AccessToken, RefreshToken: lr.RefreshToken}); err != nil {
		return err
	}
	if err := creds.SetUserID(ctx, lr.UserID); err != nil {
		return err
	}

	log.Printf("logged in as %s", lr.UserID)
	return nil
}

func requireUser(ctx context.Context, creds auth.CredentialStore) (string, error) {
	userID, err := creds.UserID(ctx)
	if err != nil {
		return "", fmt.Errorf("not logged in, run login first: %w", err)
	}
	return userID, nil
}

func printCart(entries []domain.CartEntry) {
	v := view.Project(entries)
	for _, group := range v.Groups {
		fmt.Printf("%s\n", group.SellerName)
		for _, item := range group.Items {
			variant := ""
			if item.Line.VariantID != nil {
				variant = " (" + *item.Line.VariantID + ")"
			}
			fmt.Printf("  %s%s  x%d  %d  [%s]\n",
				item.Product.Title, variant, item.Line.Quantity,
				int64(item.Line.Quantity)*item.Product.Price, item.Line.ID)
		}
		fmt.Printf("  subtotal: %d\n", group.Subtotal)
	}
	fmt.Printf("items: %d, total: %d\n", v.ItemCount, v.Total)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: client <command> [args]

commands:
  login <email> <password>
  logout
  get
  add <productID> <quantity> [variantID]
  update <lineID> <quantity>
  remove <lineID>
  clear
  sync`)
}
