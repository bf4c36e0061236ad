package config

import "fmt"

// validate checks cross-field invariants that mapstructure tags alone can't
// express: port ranges, protocol-specific requirements, and the modem
// transport selection.
func validate(cfg *Config) error {
	switch cfg.System.Modem.Protocol.Type {
	case "uart":
		if cfg.System.Modem.Protocol.UART.Port == "" {
			return fmt.Errorf("system.modem.protocol.uart.port is required when protocol.type is \"uart\"")
		}
		if cfg.System.Modem.Protocol.UART.Speed <= 0 {
			return fmt.Errorf("system.modem.protocol.uart.speed must be positive")
		}
	case "null":
		// no further fields required
	default:
		return fmt.Errorf("system.modem.protocol.type must be \"uart\" or \"null\", got %q", cfg.System.Modem.Protocol.Type)
	}

	if cfg.System.Modem.Hotspot.Enabled && cfg.System.Modem.Repeater.Enabled {
		return fmt.Errorf("system.modem.hotspot and system.modem.repeater cannot both be enabled")
	}

	if !cfg.Protocols.DMR.Enabled && !cfg.Protocols.P25.Enabled && !cfg.Protocols.NXDN.Enabled {
		return fmt.Errorf("at least one of protocols.dmr, protocols.p25, protocols.nxdn must be enabled")
	}

	if cfg.Protocols.DMR.Enabled {
		if cfg.Protocols.DMR.ColorCode < 0 || cfg.Protocols.DMR.ColorCode > 15 {
			return fmt.Errorf("protocols.dmr.color_code must be between 0 and 15")
		}
	}

	if cfg.Protocols.P25.Enabled {
		if cfg.Protocols.P25.NAC < 0 || cfg.Protocols.P25.NAC > 0xFFF {
			return fmt.Errorf("protocols.p25.nac must be a 12-bit value (0-4095)")
		}
		if cfg.Protocols.P25.LLAEnabled && cfg.Protocols.P25.LLAKey == "" {
			return fmt.Errorf("protocols.p25.lla_key is required when protocols.p25.lla_enabled is true")
		}
	}

	if cfg.Protocols.NXDN.Enabled {
		if cfg.Protocols.NXDN.RAN < 0 || cfg.Protocols.NXDN.RAN > 63 {
			return fmt.Errorf("protocols.nxdn.ran must be between 0 and 63")
		}
	}

	if cfg.Network.Enabled {
		if cfg.Network.Address == "" {
			return fmt.Errorf("network.address is required when network.enabled is true")
		}
		if cfg.Network.Port <= 0 || cfg.Network.Port > 65535 {
			return fmt.Errorf("network.port must be between 1 and 65535")
		}
		if cfg.Network.PeerID <= 0 {
			return fmt.Errorf("network.peer_id must be positive")
		}
		if cfg.Network.Passphrase == "" {
			return fmt.Errorf("network.passphrase is required when network.enabled is true")
		}
	}

	if cfg.RPC.Enabled {
		if cfg.RPC.Port <= 0 || cfg.RPC.Port > 65535 {
			return fmt.Errorf("rpc.port must be between 1 and 65535")
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535")
		}
	}

	return nil
}
