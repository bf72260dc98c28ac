package config

import (
	"time"

	"github.com/spf13/viper"
)

// GenerationConfig holds the settings of both image generation backends
type GenerationConfig struct {
	APIKey         string        `yaml:"apiKey"         json:"-"`
	GeminiModel    string        `yaml:"geminiModel"    json:"geminiModel"`
	ImagenModel    string        `yaml:"imagenModel"    json:"imagenModel"`
	ImagenBaseURL  string        `yaml:"imagenBaseUrl"  json:"imagenBaseUrl"`
	Timeout        time.Duration `yaml:"timeout"        json:"timeout"`
	ImagenRetries  int           `yaml:"imagenRetries"  json:"imagenRetries"`
	ImagenBackoff  time.Duration `yaml:"imagenBackoff"  json:"imagenBackoff"`
	MaxImageWidth  int           `yaml:"maxImageWidth"  json:"maxImageWidth"`
	ImageQuality   int           `yaml:"imageQuality"   json:"imageQuality"`
	ImageCacheTTL  time.Duration `yaml:"imageCacheTtl"  json:"imageCacheTtl"`
	FallbackOnFail bool          `yaml:"fallbackOnFail" json:"fallbackOnFail"`
}

// RateLimitConfig limits generation requests per user
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// StorageConfig describes the S3-compatible bucket holding image blobs
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

// SetupGenerationEnv configures generation-related environment variables
func SetupGenerationEnv() {
	bindEnvVariable("GEMINI_API_KEY", "")
	bindEnvVariable("GEMINI_MODEL", "gemini-2.0-flash-exp-image-generation")
	bindEnvVariable("IMAGEN_MODEL", "imagen-3.0-generate-002")
	bindEnvVariable("IMAGEN_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	bindEnvVariable("GENERATION_TIMEOUT", "25s")
	bindEnvVariable("IMAGEN_RETRIES", 2)
	bindEnvVariable("IMAGEN_RETRY_DELAY", "1s")
	bindEnvVariable("MAX_IMAGE_WIDTH", 1024)
	bindEnvVariable("IMAGE_QUALITY", 80)
	bindEnvVariable("IMAGE_CACHE_TTL", "10m")
	bindEnvVariable("RATE_LIMIT_PER_MINUTE", 10)
	bindEnvVariable("RATE_LIMIT_BURST", 3)
}

// SetupStorageEnv configures object storage environment variables
func SetupStorageEnv() {
	bindEnvVariable("STORAGE_ENDPOINT", "localhost:9000")
	bindEnvVariable("STORAGE_ACCESS_KEY", "")
	bindEnvVariable("STORAGE_SECRET_KEY", "")
	bindEnvVariable("STORAGE_BUCKET", "images")
	bindEnvVariable("STORAGE_REGION", "")
	bindEnvVariable("STORAGE_USE_SSL", false)
	bindEnvVariable("STORAGE_PUBLIC_URL", "http://localhost:9000")
}

// GetGenerationConfig returns generation configuration from viper
func GetGenerationConfig() GenerationConfig {
	return GenerationConfig{
		APIKey:         viper.GetString("GEMINI_API_KEY"),
		GeminiModel:    viper.GetString("GEMINI_MODEL"),
		ImagenModel:    viper.GetString("IMAGEN_MODEL"),
		ImagenBaseURL:  viper.GetString("IMAGEN_BASE_URL"),
		Timeout:        viper.GetDuration("GENERATION_TIMEOUT"),
		ImagenRetries:  viper.GetInt("IMAGEN_RETRIES"),
		ImagenBackoff:  viper.GetDuration("IMAGEN_RETRY_DELAY"),
		MaxImageWidth:  viper.GetInt("MAX_IMAGE_WIDTH"),
		ImageQuality:   viper.GetInt("IMAGE_QUALITY"),
		ImageCacheTTL:  viper.GetDuration("IMAGE_CACHE_TTL"),
		FallbackOnFail: IsProduction(),
	}
}

// GetRateLimitConfig returns rate limit configuration from viper
func GetRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: viper.GetInt("RATE_LIMIT_PER_MINUTE"),
		Burst:     viper.GetInt("RATE_LIMIT_BURST"),
	}
}

// GetStorageConfig returns object storage configuration from viper
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
		AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
		SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
		Bucket:    viper.GetString("STORAGE_BUCKET"),
		Region:    viper.GetString("STORAGE_REGION"),
		UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
		PublicURL: viper.GetString("STORAGE_PUBLIC_URL"),
	}
}
