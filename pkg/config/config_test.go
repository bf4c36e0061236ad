package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_UsesDefaults_WhenNoFile(t *testing.T) {
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.System.Modem.Protocol.Type != "null" {
		t.Errorf("expected default modem protocol \"null\", got %q", cfg.System.Modem.Protocol.Type)
	}
	if !cfg.Protocols.DMR.Enabled {
		t.Errorf("expected protocols.dmr.enabled default true")
	}
	if cfg.Protocols.DMR.ColorCode != 1 {
		t.Errorf("expected protocols.dmr.color_code default 1, got %d", cfg.Protocols.DMR.ColorCode)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log.level default \"info\", got %q", cfg.Log.Level)
	}
	if cfg.Network.RetryTimeMS != 10000 {
		t.Errorf("expected network.retry_time_ms default 10000, got %d", cfg.Network.RetryTimeMS)
	}
	if cfg.Network.IdleTimeMS != 60000 {
		t.Errorf("expected network.idle_time_ms default 60000, got %d", cfg.Network.IdleTimeMS)
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Protocols: ProtocolsConfig{DMR: DMRProtocolConfig{Enabled: true, ColorCode: 1}},
		}
		cfg.System.Modem.Protocol.Type = "null"
		return cfg
	}

	t.Run("unknown modem protocol type", func(t *testing.T) {
		cfg := base()
		cfg.System.Modem.Protocol.Type = "carrier-pigeon"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for unknown protocol.type")
		}
	})

	t.Run("uart protocol missing port", func(t *testing.T) {
		cfg := base()
		cfg.System.Modem.Protocol.Type = "uart"
		cfg.System.Modem.Protocol.UART.Speed = 115200
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for missing uart.port")
		}
	})

	t.Run("hotspot and repeater both enabled", func(t *testing.T) {
		cfg := base()
		cfg.System.Modem.Hotspot.Enabled = true
		cfg.System.Modem.Repeater.Enabled = true
		if err := validate(cfg); err == nil {
			t.Fatal("expected error when hotspot and repeater are both enabled")
		}
	})

	t.Run("no protocol enabled", func(t *testing.T) {
		cfg := &Config{}
		cfg.System.Modem.Protocol.Type = "null"
		if err := validate(cfg); err == nil {
			t.Fatal("expected error when no protocol is enabled")
		}
	})

	t.Run("p25 lla enabled without key", func(t *testing.T) {
		cfg := base()
		cfg.Protocols.P25 = P25ProtocolConfig{Enabled: true, NAC: 0x293, LLAEnabled: true}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for lla_enabled without lla_key")
		}
	})

	t.Run("network enabled without passphrase", func(t *testing.T) {
		cfg := base()
		cfg.Network = NetworkConfig{Enabled: true, Address: "127.0.0.1", Port: 62031, PeerID: 1}
		if err := validate(cfg); err == nil {
			t.Fatal("expected error for network enabled without passphrase")
		}
	})

	t.Run("valid minimal config", func(t *testing.T) {
		cfg := base()
		if err := validate(cfg); err != nil {
			t.Fatalf("expected valid config, got error: %v", err)
		}
	})
}
