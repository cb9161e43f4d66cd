// Package config loads the capture configuration surface: a YAML file,
// TRACECAP_* environment variables, and an optional .env file, merged by
// viper and validated before use.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tracecap/pkg/models"
)

// Capture is the read-only configuration the recording core consumes.
type Capture struct {
	Headless  bool `mapstructure:"headless"`
	BypassCSP bool `mapstructure:"bypass_csp"`
	Debug     bool `mapstructure:"debug"`

	FPS     int    `mapstructure:"fps" validate:"gt=0,lte=240"`
	Codec   string `mapstructure:"codec" validate:"oneof=h264 hevc"`
	Bitrate string `mapstructure:"bitrate" validate:"required"`
	Preset  string `mapstructure:"preset" validate:"required"`
	PixFmt  string `mapstructure:"pix_fmt" validate:"required"`

	ActionTypes []string `mapstructure:"action_types" validate:"min=1"`

	LogsDir   string `mapstructure:"logs_dir" validate:"required"`
	VideosDir string `mapstructure:"videos_dir" validate:"required"`
	ImagesDir string `mapstructure:"images_dir" validate:"required"`

	IntakeAddr  string `mapstructure:"intake_addr" validate:"required,hostname_port"`
	CatalogPath string `mapstructure:"catalog_path" validate:"required"`
	WebhookURL  string `mapstructure:"webhook_url" validate:"omitempty,url"`
}

// InitConfig reads in the config file and TRACECAP_* environment variables.
func InitConfig(cfgFile string) {
	// .env first so viper's env layer sees it.
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".tracecap" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tracecap")
	}

	viper.SetEnvPrefix("TRACECAP")
	viper.AutomaticEnv() // read in environment variables that match

	setDefaults()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

func setDefaults() {
	viper.SetDefault("headless", false)
	viper.SetDefault("bypass_csp", true)
	viper.SetDefault("debug", false)
	viper.SetDefault("fps", 30)
	viper.SetDefault("codec", "h264")
	viper.SetDefault("bitrate", "8M")
	viper.SetDefault("preset", "fast")
	viper.SetDefault("pix_fmt", "yuv420p")
	viper.SetDefault("action_types", models.DefaultEventTypes())
	viper.SetDefault("logs_dir", "logs")
	viper.SetDefault("videos_dir", "videos")
	viper.SetDefault("images_dir", "images")
	viper.SetDefault("intake_addr", "127.0.0.1:8123")
	viper.SetDefault("catalog_path", "tracecap.db")
	viper.SetDefault("webhook_url", "")
}

// LoadCapture unmarshals and validates the capture configuration.
func LoadCapture() (Capture, error) {
	var c Capture
	if err := viper.Unmarshal(&c); err != nil {
		return Capture{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return Capture{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
