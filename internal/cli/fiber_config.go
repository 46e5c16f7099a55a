package cli

import (
	"github.com/gofiber/fiber/v3"

	"github.com/loupe-analytics/loupe/internal/config"
)

// createFiberConfig returns the Fiber configuration for the server. The
// proxy header must match proxy_mode so c.IP() reflects the real client
// when a reverse proxy or Cloudflare fronts the server.
func createFiberConfig(appName, proxyMode string) fiber.Config {
	cfg := fiber.Config{
		AppName: appName,
	}

	switch proxyMode {
	case config.ProxyModeXForwarded:
		cfg.ProxyHeader = fiber.HeaderXForwardedFor
	case config.ProxyModeCloudflare:
		cfg.ProxyHeader = "CF-Connecting-IP"
	}

	return cfg
}
