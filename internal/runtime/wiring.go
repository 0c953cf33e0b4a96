package runtime

import (
	"context"
	"fmt"

	"github.com/hiveswarm/hive/internal/clientconfig"
	"github.com/hiveswarm/hive/internal/gatewaylist"
	"github.com/hiveswarm/hive/internal/plugins"
	"github.com/hiveswarm/hive/internal/stats"
	"github.com/hiveswarm/hive/internal/transport/grpctransport"
	"github.com/hiveswarm/hive/pkg/auth"
)

// InitDefault builds Deps from cfg using the production adapters (a real
// gRPC transport, a static gateway list, and a file-backed or plugin-provided
// statistics publisher) and calls Init. A "redis" gateway list provider is
// rejected with an error here. Tests that need an in-process
// transport should call Init directly with memtransport.Transport instead.
func InitDefault(cfg clientconfig.ClientConfig) (*Client, error) {
	provider, err := gatewayProviderFor(cfg)
	if err != nil {
		return nil, err
	}

	addrs, err := provider.Gateways(context.Background())
	if err != nil {
		return nil, fmt.Errorf("runtime: resolve gateways: %w", err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("runtime: no gateways resolved")
	}

	token, err := authTokenFor(cfg)
	if err != nil {
		return nil, err
	}
	tr := grpctransport.New(grpctransport.Config{Addr: addrs[0], Insecure: true, AuthToken: token})

	publisher, err := statsPublisherFor(cfg)
	if err != nil {
		return nil, err
	}

	return Init(cfg, Deps{
		Transport:      tr,
		StatsPublisher: publisher,
		Serializer:     nil,
	})
}

// statsPublisherFor resolves ClientConfig.StatisticsProviderName against the
// plugins registry (internal/plugins, kind "statsprovider"); an empty name,
// or a name with no matching registered plugin, falls back to a file-backed
// publisher (spec.md §6's "statistics provider is an external collaborator
// selected post-Init").
func statsPublisherFor(cfg clientconfig.ClientConfig) (stats.Publisher, error) {
	if cfg.StatisticsProviderName != "" {
		for _, p := range plugins.ByKind("statsprovider") {
			if p.Name() != cfg.StatisticsProviderName {
				continue
			}
			handle, err := p.Init()
			if err != nil {
				return nil, fmt.Errorf("runtime: init statsprovider plugin %q: %w", p.Name(), err)
			}
			pub, ok := handle.(stats.Publisher)
			if !ok {
				return nil, fmt.Errorf("runtime: statsprovider plugin %q did not return a stats.Publisher", p.Name())
			}
			return pub, nil
		}
	}
	return stats.NewFileDownPublisher(stats.FileConfig{Dir: "."})
}

// authTokenFor signs a short-lived bearer token for the gateway stream's
// "authorization" metadata (grpctransport.Config.AuthToken), using
// cfg.AuthSecret as the shared HMAC secret (pkg/auth, the same signer the
// bundled cmd/hive-mockgateway verifies with --auth-secret). An empty
// AuthSecret means the deployment runs without gateway authentication.
func authTokenFor(cfg clientconfig.ClientConfig) (string, error) {
	if cfg.AuthSecret == "" {
		return "", nil
	}
	signer := auth.NewSigner([]byte(cfg.AuthSecret), cfg.AuthIssuer, cfg.AuthTokenTTL)
	claims := signer.Claims(cfg.DeploymentID, nil)
	token, err := signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("runtime: sign auth token: %w", err)
	}
	return token, nil
}

func gatewayProviderFor(cfg clientconfig.ClientConfig) (gatewaylist.Provider, error) {
	switch cfg.GatewayListProvider {
	case "redis":
		return nil, fmt.Errorf("runtime: redis gateway list provider requires a pre-built redis.Client; construct gatewaylist.NewRedis and call Init directly")
	case "static", "":
		return gatewaylist.NewStatic(cfg.Gateways), nil
	default:
		return nil, fmt.Errorf("runtime: unknown gateway_list_provider %q", cfg.GatewayListProvider)
	}
}
