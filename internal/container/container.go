// Package container wires application dependencies with dig.
package container

import (
	"net/http"

	"gemini-shim/internal/app"
	"gemini-shim/internal/config"
	"gemini-shim/internal/db"
	"gemini-shim/internal/encryption"
	"gemini-shim/internal/handler"
	"gemini-shim/internal/httpclient"
	"gemini-shim/internal/proxy"
	"gemini-shim/internal/router"
	"gemini-shim/internal/services"
	"gemini-shim/internal/shim"
	"gemini-shim/internal/signature"
	"gemini-shim/internal/store"
	"gemini-shim/internal/types"

	"go.uber.org/dig"
)

// BuildContainer creates and configures the dependency injection container.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		config.NewManager,
		store.NewStore,
		db.NewDB,
		newEncryptionService,
		newSignatureStore,
		services.NewRequestLogService,
		newUpstreamClient,
		proxy.NewProxyServer,
		handler.NewServer,
		router.NewRouter,
		app.NewApp,
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

func newEncryptionService(configManager types.ConfigManager) (encryption.Service, error) {
	return encryption.NewService(configManager.GetEncryptionKey())
}

func newSignatureStore(backing store.Store, enc encryption.Service, configManager types.ConfigManager) *signature.Store {
	return signature.NewStore(backing, enc, configManager.GetShimSettings().SignatureTTL)
}

// newUpstreamClient stacks the shim transport on top of the pooled upstream
// transport. Everything the relay sends goes through this client.
func newUpstreamClient(configManager types.ConfigManager, signatures *signature.Store) *http.Client {
	upstream := configManager.GetUpstreamConfig()
	base := httpclient.NewTransport(upstream)
	decorated := shim.NewTransport(base, configManager.GetShimSettings(), signatures)
	return httpclient.NewClient(decorated, upstream)
}
