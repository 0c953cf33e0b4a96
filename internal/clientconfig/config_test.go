package clientconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/hiveswarm/hive/internal/hiveerr"
)

func TestValidateRejectsMissingGateways(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GatewayListProvider = "static"
	cfg.Gateways = nil

	if err := Validate(cfg); !errors.Is(err, hiveerr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsRedisWithoutAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GatewayListProvider = "redis"
	cfg.RedisAddr = ""

	if err := Validate(cfg); !errors.Is(err, hiveerr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsNonPositiveResponseTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateways = []string{"gw:1"}
	cfg.ResponseTimeout = 0

	if err := Validate(cfg); !errors.Is(err, hiveerr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsNonPositiveBulkCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateways = []string{"gw:1"}
	cfg.StatsBulkCap = 0

	if err := Validate(cfg); !errors.Is(err, hiveerr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateAcceptsDefaultsPlusGateway(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateways = []string{"gw:1"}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestEffectiveResponseTimeoutHonorsDebugger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = 10 * time.Second
	cfg.DebuggerResponseTimeout = 45 * time.Minute

	if got := cfg.EffectiveResponseTimeout(); got != 10*time.Second {
		t.Fatalf("expected response timeout when debugger not attached, got %v", got)
	}

	cfg.DebuggerAttached = true
	if got := cfg.EffectiveResponseTimeout(); got != 45*time.Minute {
		t.Fatalf("expected debugger response timeout when attached, got %v", got)
	}
}

func TestLoadEnvOnlyMergesOverDefaults(t *testing.T) {
	t.Setenv("HIVETEST_GATEWAYS", "gw1,gw2")
	t.Setenv("HIVETEST_DEPLOYMENT_ID", "prod")

	cfg, err := Load("", "HIVETEST")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeploymentID != "prod" {
		t.Fatalf("expected env override to win, got %q", cfg.DeploymentID)
	}
	if cfg.StatsBulkCap != DefaultConfig().StatsBulkCap {
		t.Fatalf("expected untouched fields to keep their default, got %d", cfg.StatsBulkCap)
	}
}
