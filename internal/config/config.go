package config

import (
	"os"
	"strings"
)

// Config carries everything main needs to wire the app. Values come from the
// environment; secrets may instead point at a file via the *_FILE variants so
// they can be mounted by the orchestrator.
type Config struct {
	Addr        string
	DatabaseURL string
	JWTSecret   string

	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	WebhookSecret    string
	Currency         string

	CallbackURL string
	SuccessURL  string
	FailureURL  string

	AMQPURL string
}

func Load() Config {
	return Config{
		Addr:        getEnv("ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", ""),

		GatewayBaseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		GatewayKeyID:     getEnv("RAZORPAY_KEY_ID", ""),
		GatewayKeySecret: getEnvFromFile("RAZORPAY_KEY_SECRET_FILE", "RAZORPAY_KEY_SECRET", ""),
		WebhookSecret:    getEnvFromFile("RAZORPAY_WEBHOOK_SECRET_FILE", "RAZORPAY_WEBHOOK_SECRET", ""),
		Currency:         getEnv("PAYMENT_CURRENCY", "INR"),

		CallbackURL: getEnv("PAYMENT_CALLBACK_URL", "http://localhost:8080/payment/callback"),
		SuccessURL:  getEnv("ORDER_SUCCESS_URL", "http://localhost:3000/order-success"),
		FailureURL:  getEnv("ORDER_FAILURE_URL", "http://localhost:3000/order-failed"),

		AMQPURL: getEnv("RABBITMQ_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(envKey, defaultValue)
}
