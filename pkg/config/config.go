package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Build information. Populated at build-time.
var (
	Name      string = "go-image-studio"
	Version   string
	Branch    string
	Commit    string
	BuildUser string
	GoVersion = runtime.Version()
)

const (
	// EnvPrefix is a prefix to all ENV variables used in this app
	EnvPrefix = "GO_IMAGE_STUDIO"
	// APIPrefix URL prefix of the public API
	APIPrefix = "/api"
	// InternalPrefix URL prefix of service-to-service routes
	InternalPrefix = "/internal"

	// ##### GENERAL VARIABLES
	// Debug is a flag used to display debug messages
	Debug = false
	// DebugCORS is a flag used to display CORS debug messages
	DebugCORS = false
	// HumanReadableLogs set to true disables JSON formatting of logging
	HumanReadableLogs = false
	// DefaultHost default host for the services
	DefaultHost = "localhost"
	// DefaultPort default port the service is served on
	DefaultPort = "8080"
	// DefaultCorsHosts default cors horst for local development
	DefaultCorsHosts = "http://localhost:3000"
	// DefaultAppEnv is the environment name; "production" enables backend fallback
	DefaultAppEnv = "development"
	// ProductionEnv is the value of APP_ENV in production deployments
	ProductionEnv = "production"

	// ##### DATABASE VARIABLES

	// DefaultDBHost default host for the database connection
	DefaultDBHost = "localhost"
	// DefaultDBPort default port for the database connnection
	DefaultDBPort = "5440"
	// DefaultDBName default name of the database
	DefaultDBName = "go-image-studio"
	// DefaultDBUser default database user
	DefaultDBUser = "postgres"
	// DefaultDBPassword default database password
	DefaultDBPassword = "postgres"
	// DefaultDBSSLMode default ssl mode for the database connnection
	DefaultDBSSLMode = "disable"
	// DefaultTestWithDB defines whether the DB-backed tests run at all
	DefaultTestWithDB = false

	// ##### AUTHENTICATION VARIABLES

	// DefaultAuthHeaderName defines the name of the auth header
	DefaultAuthHeaderName = "Authorization"
	// DefaultServiceSecret is a secret used to authenticate requests from other services
	DefaultServiceSecret = ""
)

func bindEnvVariable(name string, fallback interface{}) {
	if fallback != "" {
		viper.SetDefault(name, fallback)
	}
	err := viper.BindEnv(name)
	if err != nil {
		// the logger is not configured yet when env variables are bound
		fmt.Printf("Error binding Env Variable: %v", err)
	}
}

// SetupEnv configures app to read ENV variables
func SetupEnv() {
	// A missing .env file is fine, the process environment wins anyway.
	_ = godotenv.Load()

	viper.SetEnvPrefix(EnvPrefix)
	// General
	bindEnvVariable("DEBUG", Debug)
	bindEnvVariable("HUMAN_READABLE_LOGS", HumanReadableLogs)
	bindEnvVariable("DEBUG_CORS", DebugCORS)
	bindEnvVariable("HOST", DefaultHost)
	bindEnvVariable("PORT", DefaultPort)
	bindEnvVariable("CORS_HOSTS", DefaultCorsHosts)
	bindEnvVariable("HTTP_MAX_PARALLEL_REQUESTS", 8)
	bindEnvVariable("HTTP_REQUEST_TIMEOUT", "60s")
	bindEnvVariable("APP_ENV", DefaultAppEnv)
	// Database
	bindEnvVariable("DB_HOST", DefaultDBHost)
	bindEnvVariable("DB_PORT", DefaultDBPort)
	bindEnvVariable("DB_NAME", DefaultDBName)
	bindEnvVariable("DB_SCHEMA", "public")
	bindEnvVariable("DB_USER", DefaultDBUser)
	bindEnvVariable("DB_PASS", DefaultDBPassword)
	bindEnvVariable("DB_SSL_MODE", DefaultDBSSLMode)
	bindEnvVariable("DB_SSL_ROOT_CERT_PATH", "")
	bindEnvVariable("TEST_WITH_DB", DefaultTestWithDB)
	// Authentication
	bindEnvVariable("AUTH_HEADER_NAME", DefaultAuthHeaderName)
	bindEnvVariable("AUTH_JWT_SECRET", "")
	bindEnvVariable("AUTH_JWKS_URL", "")
	bindEnvVariable("SERVICE_SECRET", DefaultServiceSecret)

	SetupGenerationEnv()
	SetupStorageEnv()
}

// SetupLogger configures the go-svc logger for this service
func SetupLogger() {
	logging.LoggerConfig(
		logging.ServiceName(Name),
		logging.ServiceVersion(Version),
		logging.Debug(viper.GetBool("DEBUG")),
		logging.HumanReadable(viper.GetBool("HUMAN_READABLE_LOGS")),
	)
}

// IsProduction reports whether the service runs in the production environment
func IsProduction() bool {
	return strings.EqualFold(viper.GetString("APP_ENV"), ProductionEnv)
}

// CorsConfig stores default configuration for CORS middleware
func CorsConfig(corsHosts []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   corsHosts,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Language"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true, // header "Access-Control-Allow-Credentials" is not present if this is set to false
		MaxAge:           300,  // Maximum value not ignored by any of major browsers,
		Debug:            viper.GetBool("DEBUG_CORS"),
	}
}
