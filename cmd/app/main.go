package main

import (
	"database/sql"
	"os"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jwtware "github.com/gofiber/jwt/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wichananm65/storefront-backend/internal/config"
	"github.com/wichananm65/storefront-backend/internal/events"
	"github.com/wichananm65/storefront-backend/internal/gateway"
	"github.com/wichananm65/storefront-backend/internal/metrics"
	"github.com/wichananm65/storefront-backend/internal/order"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"github.com/wichananm65/storefront-backend/internal/pendingorder"
	"github.com/wichananm65/storefront-backend/internal/product"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "app").Logger()

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db := mustOpenDB(cfg.DatabaseURL)
	defer db.Close()
	if err := ensureSchema(db); err != nil {
		logger.Fatal().Err(err).Msg("schema bootstrap failed")
	}

	app := fiber.New()
	setupCORS(app)
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)

	pendingRepo := pendingorder.NewPostgresRepository(db)
	orderRepo := order.NewPostgresRepository(db)
	productRepo := product.NewPostgresRepository(db)

	// broker is optional: without it order events are simply not emitted
	var publisher order.EventPublisher
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL)
		if err != nil {
			logger.Warn().Err(err).Msg("broker unavailable, order events disabled")
		} else {
			defer p.Close()
			publisher = p
		}
	}

	materializer := order.NewMaterializer(orderRepo, pendingRepo, productRepo, publisher)
	reconciler := payment.NewReconciler(pendingRepo, orderRepo, materializer, gw, cfg.GatewayKeySecret, cfg.WebhookSecret)
	initiation := payment.NewInitiationService(pendingRepo, gw, cfg.GatewayKeyID, cfg.Currency, cfg.CallbackURL)

	paymentHandler := payment.NewHandler(initiation, reconciler, cfg.SuccessURL, cfg.FailureURL)
	orderHandler := order.NewHandler(order.NewService(orderRepo, publisher))

	// webhook and redirect callback carry no user session, register them
	// before the JWT middleware
	paymentHandler.RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
	}))

	paymentHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)

	logger.Info().Str("addr", cfg.Addr).Msg("listening")
	if err := app.Listen(cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func setupCORS(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Razorpay-Signature",
	}))
}

func mustOpenDB(dbURL string) *sql.DB {
	if dbURL == "" {
		panic("DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		panic(err)
	}

	if err := db.Ping(); err != nil {
		panic(err)
	}

	return db
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			product_id SERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			price NUMERIC NOT NULL DEFAULT 0,
			shop_owner_id INT NOT NULL DEFAULT 0,
			stock_quantity INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS pending_orders (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			order_number TEXT NOT NULL,
			total_amount NUMERIC NOT NULL,
			delivery_address JSONB,
			items JSONB NOT NULL DEFAULT '[]',
			razorpay_order_id TEXT NOT NULL,
			price_breakdown JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_orders_reference ON pending_orders (razorpay_order_id)`,
		// the UNIQUE constraint on razorpay_payment_id makes concurrent
		// confirmations of the same payment collapse into one order
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			order_number TEXT NOT NULL UNIQUE,
			total_amount NUMERIC NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			razorpay_order_id TEXT NOT NULL,
			razorpay_payment_id TEXT NOT NULL UNIQUE,
			delivery_address JSONB,
			items JSONB NOT NULL DEFAULT '[]',
			price_breakdown JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id INT NOT NULL REFERENCES orders (id),
			product_id INT NOT NULL,
			shop_owner_id INT NOT NULL,
			quantity INT NOT NULL,
			price NUMERIC NOT NULL,
			status TEXT NOT NULL,
			dispatch_requested_at TIMESTAMPTZ,
			dispatched_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_shop_owner ON order_items (shop_owner_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
