// Package main provides a minimal health probe for container images that
// ship without wget or curl.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const requestTimeout = 5 * time.Second

func buildHealthURL(host, port string) string {
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	if port == "" {
		port = "3001"
	}
	return fmt.Sprintf("http://%s/health", net.JoinHostPort(host, port))
}

func main() {
	healthURL := buildHealthURL(os.Getenv("HOST"), os.Getenv("PORT"))

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Get(healthURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check returned status %d\n", resp.StatusCode)
		os.Exit(1)
	}
}
