package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadENV loads the environment variables from .env if GO_ENV is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string
	// Client application
	APP_URL string
	// VNPay gateway
	VNPAY_TMN_CODE    string
	VNPAY_HASH_SECRET string
	VNPAY_PAYMENT_URL string
	VNPAY_RETURN_URL  string
	// MoMo gateway
	MOMO_PARTNER_CODE string
	MOMO_ACCESS_KEY   string
	MOMO_SECRET_KEY   string
	MOMO_ENDPOINT     string
	MOMO_REDIRECT_URL string
	MOMO_IPN_URL      string
}

func Get() (*EnvironmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:3000"
	}

	// Both gateways default to their public sandboxes.
	vnpayURL := os.Getenv("VNPAY_PAYMENT_URL")
	if vnpayURL == "" {
		vnpayURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	}

	momoEndpoint := os.Getenv("MOMO_ENDPOINT")
	if momoEndpoint == "" {
		momoEndpoint = "https://test-payment.momo.vn"
	}

	envVariables := &EnvironmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       os.Getenv("REDIS_DB"),
		// Client
		APP_URL: appURL,
		// VNPay
		VNPAY_TMN_CODE:    os.Getenv("VNPAY_TMN_CODE"),
		VNPAY_HASH_SECRET: os.Getenv("VNPAY_HASH_SECRET"),
		VNPAY_PAYMENT_URL: vnpayURL,
		VNPAY_RETURN_URL:  os.Getenv("VNPAY_RETURN_URL"),
		// MoMo
		MOMO_PARTNER_CODE: os.Getenv("MOMO_PARTNER_CODE"),
		MOMO_ACCESS_KEY:   os.Getenv("MOMO_ACCESS_KEY"),
		MOMO_SECRET_KEY:   os.Getenv("MOMO_SECRET_KEY"),
		MOMO_ENDPOINT:     momoEndpoint,
		MOMO_REDIRECT_URL: os.Getenv("MOMO_REDIRECT_URL"),
		MOMO_IPN_URL:      os.Getenv("MOMO_IPN_URL"),
	}

	return envVariables, nil
}
