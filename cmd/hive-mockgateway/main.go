// cmd/hive-mockgateway is a reference gateway peer: a local-development and
// integration-test stand-in for the production gateway, which per spec.md
// §1 is out of scope of this module and addressed only through the
// transport.Transport interface. It exists so cmd/hive-client can exercise
// the real grpctransport.Transport
// end-to-end without a production silo cluster. Adapted from
// cmd/flarego-gateway/main.go's flag-parsing-and-serve shape.
package main

import (
	"context"
	"flag"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/mockgateway"
	"github.com/hiveswarm/hive/pkg/auth"
)

func main() {
	var (
		listenAddr  = flag.String("listen", ":7700", "gRPC listen address for the client Stream method")
		httpAddr    = flag.String("http-listen", ":7701", "HTTP listen address for the /ws debug tap and /metrics")
		enableHTTP  = flag.Bool("http", true, "serve the debug tap HTTP listener")
		metrics     = flag.Bool("metrics", true, "expose /metrics on the HTTP listener")
		typeCodes   = flag.String("type-codes", "", "comma-separated name=code pairs answered to type_code_map_request, e.g. Foo=1,Bar=2")
		authSecret  = flag.String("auth-secret", "", "if set, require a Bearer token signed with this HMAC secret (pkg/auth), matching --auth-secret on hive-client")
		authIssuer  = flag.String("auth-issuer", "hive-client", "expected JWT issuer claim when --auth-secret is set")
		logJSON     = flag.Bool("log-json", false, "emit JSON logs instead of console")
	)
	flag.Parse()

	initLogger(*logJSON)
	defer func() { _ = logging.Logger().Sync() }()

	cfg := mockgateway.Config{ListenAddr: *listenAddr, TypeCodes: parseTypeCodes(*typeCodes)}
	if *authSecret != "" {
		cfg.Verifier = auth.NewVerifier([]byte(*authSecret), *authIssuer)
	}

	gw := mockgateway.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *enableHTTP {
		srv := gw.StartHTTP(mockgateway.HTTPConfig{ListenAddr: *httpAddr, EnableMetrics: *metrics})
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	logging.Sugar().Infow("hive-mockgateway starting", "listen", *listenAddr)
	if err := gw.Start(ctx); err != nil {
		logging.Logger().Fatal("hive-mockgateway: serve failed", zap.Error(err))
	}
}

func initLogger(jsonOutput bool) {
	cfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	logging.Set(logger)
}

// parseTypeCodes turns "Foo=1,Bar=2" into {"Foo":1,"Bar":2}, skipping
// malformed entries with a warning rather than failing startup.
func parseTypeCodes(spec string) map[string]int32 {
	out := map[string]int32{}
	if spec == "" {
		return out
	}
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			logging.Sugar().Warnw("hive-mockgateway: malformed --type-codes entry, skipping", "entry", pair)
			continue
		}
		code, err := strconv.ParseInt(strings.TrimSpace(kv[1]), 10, 32)
		if err != nil {
			logging.Sugar().Warnw("hive-mockgateway: malformed --type-codes code, skipping", "entry", pair, "error", err)
			continue
		}
		out[strings.TrimSpace(kv[0])] = int32(code)
	}
	return out
}
