package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/cmd"

	"github.com/getsentry/sentry-go"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		SampleRate:       envRate("SENTRY_SAMPLE_RATE", 0.1),
		EnableTracing:    true,
		TracesSampleRate: envRate("SENTRY_TRACES_SAMPLE_RATE", 0.1),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	// Set the timeout to the maximum duration the program can afford to wait.
	defer sentry.Flush(2 * time.Second)

	flag.Parse()

	cmd.Execute()
}

func envRate(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	rate, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return rate
}
