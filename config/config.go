package config

import (
	"os"
	"strconv"
)

// Config collects the operator-tunable settings. Everything comes from the
// environment (godotenv loads a .env file in main); defaults keep local
// development working without one.
type Config struct {
	Port string

	// Error alerting
	AlertEmail     string
	ErrorThreshold int

	// Feedback proxy upstream (the intake endpoint the relay forwards to)
	FeedbackUpstreamURL string

	// GA4 report job
	GA4PropertyID         string
	GoogleCredentialsFile string

	// SMTP for alert mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
}

func Load() *Config {
	return &Config{
		Port:                  getenv("PORT", "8080"),
		AlertEmail:            os.Getenv("ALERT_EMAIL"),
		ErrorThreshold:        getint("ERROR_THRESHOLD", 10),
		FeedbackUpstreamURL:   getenv("FEEDBACK_UPSTREAM_URL", "http://localhost:8080/api/events"),
		GA4PropertyID:         os.Getenv("GA4_PROPERTY_ID"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		SMTPHost:              getenv("SMTP_HOST", "localhost"),
		SMTPPort:              getint("SMTP_PORT", 587),
		SMTPUsername:          os.Getenv("SMTP_USERNAME"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		MailFrom:              getenv("MAIL_FROM", "alerts@localhost"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
