// cmd/hive-client/listen.go
// Implements `hive-client listen`: starts a runtime, registers a local
// callback object that echoes every inbound request back to its caller, and
// blocks until interrupted. Demonstrates C3/C6 (local object registry and
// per-object pump) end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hiveswarm/hive/internal/clientconfig"
	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/objects"
	"github.com/hiveswarm/hive/internal/runtime"
	"github.com/hiveswarm/hive/pkg/grain"
)

type echoInvoker struct{}

func (echoInvoker) Invoke(ctx context.Context, target any, msg *grain.Message) ([]byte, error) {
	return msg.Body, nil
}

var _ objects.Invoker = echoInvoker{}

func newListenCmd() *cobra.Command {
	var (
		gateway    string
		authSecret string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Register a local echo object and wait for inbound requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := clientconfig.DefaultConfig()
			cfg.Gateways = []string{gateway}
			cfg.AuthSecret = authSecret

			c, err := runtime.InitDefault(cfg)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer c.Reset(context.Background())

			id, err := c.CreateObjectReference(ctx, struct{}{}, echoInvoker{})
			if err != nil {
				return fmt.Errorf("create object reference: %w", err)
			}
			logging.Sugar().Infow("listening", "grain_id", id.String())

			<-ctx.Done()
			logging.Sugar().Infow("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&gateway, "gateway", "127.0.0.1:7700", "Gateway address to dial")
	cmd.Flags().StringVar(&authSecret, "auth-secret", "", "HMAC secret to sign a bearer token for the gateway stream (must match its --auth-secret)")
	return cmd
}
