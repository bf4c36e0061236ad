// Package config loads the host's YAML configuration through viper in
// two phases: register defaults, read the file (missing file is not an
// error — defaults still
// apply), unmarshal into typed structs, then validate. The hierarchy covers
// system.modem (with protocol.uart / hotspot / repeater / softpot
// sub-trees), system.iden_table, system.cwId, system.config, log, and
// protocols.{dmr,p25,nxdn}.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the root of the host's configuration tree.
type Config struct {
	System    SystemConfig         `mapstructure:"system"`
	Log       LogConfig            `mapstructure:"log"`
	Protocols ProtocolsConfig      `mapstructure:"protocols"`
	Network   NetworkConfig        `mapstructure:"network"`
	RPC       RPCConfig            `mapstructure:"rpc"`
	Persist   PersistConfig        `mapstructure:"persist"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`
}

// SystemConfig groups everything that describes the local site: the modem
// attached to it, its identifier table, CW ID settings, and the on-modem
// configuration block the host pushes at open().
type SystemConfig struct {
	Modem     ModemConfig     `mapstructure:"modem"`
	IdenTable IdenTableConfig `mapstructure:"iden_table"`
	CWID      CWIDConfig      `mapstructure:"cwId"`
	ModemCfg  ModemRFConfig   `mapstructure:"config"`
}

// ModemConfig describes how to reach and operate the baseband modem.
type ModemConfig struct {
	Protocol ModemProtocolConfig `mapstructure:"protocol"`
	Hotspot  HotspotConfig       `mapstructure:"hotspot"`
	Repeater RepeaterConfig      `mapstructure:"repeater"`
	Softpot  SoftpotConfig       `mapstructure:"softpot"`

	RXInvert    bool `mapstructure:"rx_invert"`
	TXInvert    bool `mapstructure:"tx_invert"`
	PTTInvert   bool `mapstructure:"ptt_invert"`
	Debug       bool `mapstructure:"debug"`
	Duplex      bool `mapstructure:"duplex"`
	DCBlocker   bool `mapstructure:"dc_blocker"`
	COSLockout  bool `mapstructure:"cos_lockout"`
	Trace       bool `mapstructure:"trace"`
	DisableNull bool `mapstructure:"disable_null"` // refuse to start against a null modem port
}

// ModemProtocolConfig selects the transport used to reach the modem.
type ModemProtocolConfig struct {
	Type string     `mapstructure:"type"` // "uart" or "null"
	UART UARTConfig `mapstructure:"uart"`
}

// UARTConfig holds serial-port parameters for go.bug.st/serial.
type UARTConfig struct {
	Port        string `mapstructure:"port"`
	Speed       int    `mapstructure:"speed"`
	RTSToggle   bool   `mapstructure:"rts_toggle"`
}

// HotspotConfig configures a single-antenna hotspot modem's DMR/P25/NXDN
// frequencies and adjacent-channel parameters.
type HotspotConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	RXFrequency int  `mapstructure:"rx_frequency"`
	TXFrequency int  `mapstructure:"tx_frequency"`
}

// RepeaterConfig configures a full-duplex repeater-style modem.
type RepeaterConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	RXFrequency int  `mapstructure:"rx_frequency"`
	TXFrequency int  `mapstructure:"tx_frequency"`
	RXOffset    int  `mapstructure:"rx_offset"`
	TXOffset    int  `mapstructure:"tx_offset"`
}

// SoftpotConfig holds the coarse/fine digital-pot calibration values added
// in protocol version 3 for rx level, tx level, and RSSI.
type SoftpotConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	RXCoarse     int  `mapstructure:"rx_coarse"`
	RXFine       int  `mapstructure:"rx_fine"`
	TXCoarse     int  `mapstructure:"tx_coarse"`
	TXFine       int  `mapstructure:"tx_fine"`
	RSSICoarse   int  `mapstructure:"rssi_coarse"`
	RSSIFine     int  `mapstructure:"rssi_fine"`
}

// IdenTableConfig points at the channel-identity table file used to map
// logical channel numbers to center frequencies and bandwidths.
type IdenTableConfig struct {
	File string `mapstructure:"file"`
}

// CWIDConfig holds the CW identification settings. Callsign is used as the
// site and FNE identity; Enabled and Time are loaded but not acted on, and
// the host does not schedule periodic CMD_SEND_CWID identifications.
type CWIDConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Callsign string `mapstructure:"callsign"`
	Time     int    `mapstructure:"time"` // minutes between IDs
}

// ModemRFConfig is the SET_CONFIG payload the host pushes to the modem at
// open() and whenever the flash-reconcile logic decides to re-push it.
type ModemRFConfig struct {
	RXLevel      int `mapstructure:"rx_level"`
	TXLevel      int `mapstructure:"tx_level"`
	CWIDLevel    int `mapstructure:"cwid_level"`
	DMRColorCode int `mapstructure:"dmr_color_code"`
	DMRRXDelay   int `mapstructure:"dmr_rx_delay"`
	P25NAC       int `mapstructure:"p25_nac"`
	P25CorrCount int `mapstructure:"p25_corr_count"`
	FDMAPreamble int `mapstructure:"fdma_preamble"`
	RXDCOffset   int `mapstructure:"rx_dc_offset"`
	TXDCOffset   int `mapstructure:"tx_dc_offset"`
}

// LogConfig configures the leveled logger (pkg/logger).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ProtocolsConfig gates which of DMR/P25/NXDN controllers are started.
type ProtocolsConfig struct {
	DMR  DMRProtocolConfig  `mapstructure:"dmr"`
	P25  P25ProtocolConfig  `mapstructure:"p25"`
	NXDN NXDNProtocolConfig `mapstructure:"nxdn"`
}

// DMRProtocolConfig configures the two-slot DMR controller.
type DMRProtocolConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	ColorCode     int  `mapstructure:"color_code"`
	SelfOnly      bool `mapstructure:"self_only"`
	EmbeddedLCOnly bool `mapstructure:"embedded_lc_only"`
	DumpCSBKData  bool `mapstructure:"dump_csbk_data"`
}

// P25ProtocolConfig configures the P25 controller, including trunking and
// LLA authentication key material.
type P25ProtocolConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	NAC          int    `mapstructure:"nac"`
	ControlOnly  bool   `mapstructure:"control_only"`
	TDULCEnabled bool   `mapstructure:"tdulc_enabled"`
	TrunkingEnabled bool `mapstructure:"trunking_enabled"`
	LLAEnabled   bool   `mapstructure:"lla_enabled"`
	LLAKey       string `mapstructure:"lla_key"` // hex-encoded 128-bit LLA key K
}

// NXDNProtocolConfig configures the NXDN controller.
type NXDNProtocolConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	RAN      int  `mapstructure:"ran"`
	SelfOnly bool `mapstructure:"self_only"`
	Trunking bool `mapstructure:"trunking"`
}

// NetworkConfig configures the FNE peer session.
type NetworkConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Address     string `mapstructure:"address"`
	Port        int    `mapstructure:"port"`
	PeerID      int    `mapstructure:"peer_id"`
	Passphrase  string `mapstructure:"passphrase"`
	RetryTimeMS int    `mapstructure:"retry_time_ms"`
	IdleTimeMS  int    `mapstructure:"idle_time_ms"`
}

// RPCConfig configures the in-call-control JSON-RPC-over-REST facade and
// its websocket activity-log fan-out.
type RPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// PersistConfig configures the CDR/flash-mirror SQLite store.
type PersistConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// MetricsConfig configures the Prometheus text-exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from configFile (or the default search path if
// empty), applying defaults first and validating the result last.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/dvmhost")
	}

	viper.SetEnvPrefix("DVM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no config file is fine; defaults apply
		} else if os.IsNotExist(err) {
			// explicitly named file missing is also fine
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("system.modem.protocol.type", "null")
	viper.SetDefault("system.modem.protocol.uart.speed", 115200)
	viper.SetDefault("system.modem.duplex", true)
	viper.SetDefault("system.modem.hotspot.enabled", false)
	viper.SetDefault("system.modem.repeater.enabled", false)
	viper.SetDefault("system.modem.softpot.enabled", false)

	viper.SetDefault("system.iden_table.file", "iden_table.dat")

	viper.SetDefault("system.cwId.enabled", false)
	viper.SetDefault("system.cwId.time", 10)

	viper.SetDefault("system.config.rx_level", 50)
	viper.SetDefault("system.config.tx_level", 50)
	viper.SetDefault("system.config.cwid_level", 50)
	viper.SetDefault("system.config.dmr_color_code", 1)
	viper.SetDefault("system.config.dmr_rx_delay", 7)
	viper.SetDefault("system.config.p25_nac", 0x293)
	viper.SetDefault("system.config.p25_corr_count", 5)
	viper.SetDefault("system.config.fdma_preamble", 8)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("protocols.dmr.enabled", true)
	viper.SetDefault("protocols.dmr.color_code", 1)
	viper.SetDefault("protocols.p25.enabled", false)
	viper.SetDefault("protocols.p25.nac", 0x293)
	viper.SetDefault("protocols.nxdn.enabled", false)
	viper.SetDefault("protocols.nxdn.ran", 1)

	viper.SetDefault("network.enabled", false)
	viper.SetDefault("network.retry_time_ms", 10000)
	viper.SetDefault("network.idle_time_ms", 60000)

	viper.SetDefault("rpc.enabled", false)
	viper.SetDefault("rpc.host", "127.0.0.1")
	viper.SetDefault("rpc.port", 9990)

	viper.SetDefault("persist.enabled", false)
	viper.SetDefault("persist.dsn", "dvmhost.sqlite")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.port", 9100)
	viper.SetDefault("metrics.path", "/metrics")
}
