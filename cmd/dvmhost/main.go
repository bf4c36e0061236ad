// Command dvmhost mediates between a baseband DMR/P25/NXDN modem and a
// federated network: flag parsing, versioned startup logging, config
// load, context-cancellation, and a WaitGroup of background components,
// all driven by a single cooperative clock loop rather than one
// goroutine per connection.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/config"
	"github.com/dvmproject-go/dvmhost/pkg/dfsi"
	"github.com/dvmproject-go/dvmhost/pkg/dmr"
	"github.com/dvmproject-go/dvmhost/pkg/fne"
	"github.com/dvmproject-go/dvmhost/pkg/logger"
	"github.com/dvmproject-go/dvmhost/pkg/lookup"
	"github.com/dvmproject-go/dvmhost/pkg/metrics"
	"github.com/dvmproject-go/dvmhost/pkg/modem"
	"github.com/dvmproject-go/dvmhost/pkg/modemproto"
	"github.com/dvmproject-go/dvmhost/pkg/nxdn"
	"github.com/dvmproject-go/dvmhost/pkg/p25"
	"github.com/dvmproject-go/dvmhost/pkg/persist"
	"github.com/dvmproject-go/dvmhost/pkg/rpc"
	"github.com/dvmproject-go/dvmhost/pkg/sitedata"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

// tickIntervalMS is the cooperative scheduler's tick period: every
// component's Clock(ms) is advanced by this amount once per loop
// iteration, matching the single-threaded clock model the modem/FNE
// sessions and protocol controllers are built around.
const tickIntervalMS = 20

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dvmhost %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})
	log.Info("starting dvmhost",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("build_time", buildTime))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if *validateOnly {
		log.Info("configuration is valid")
		os.Exit(0)
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if cfg.Log.File != "" {
		logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Error("failed to open log file", logger.Error(err))
			os.Exit(1)
		}
		defer logFile.Close()
		logCfg.Output = logFile
	}
	log = logger.New(logCfg)
	log.Debug("debug logging enabled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	metricsCollector := metrics.NewCollector()

	var store *persist.DB
	var callRepo *persist.CallRecordRepository
	var flashRepo *persist.FlashSnapshotRepository
	if cfg.Persist.Enabled {
		store, err = persist.Open(persist.Config{Path: cfg.Persist.DSN}, log.WithComponent("persist"))
		if err != nil {
			log.Error("failed to open persist store", logger.Error(err))
			os.Exit(1)
		}
		defer store.Close()
		callRepo = persist.NewCallRecordRepository(store)
		flashRepo = persist.NewFlashSnapshotRepository(store)
		log.Info("persist store initialized")
	}

	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{Enabled: true, Port: cfg.Metrics.Port, Path: cfg.Metrics.Path},
				metricsCollector,
				log.WithComponent("metrics"),
			)
			if err := srv.Start(ctx); err != nil && err != context.Canceled {
				log.Error("metrics server error", logger.Error(err))
			}
		}()
		log.Info("metrics server started", logger.Int("port", cfg.Metrics.Port))
	}

	idens := lookup.NewIdenTable()
	radioIDs := permitAllACL()
	talkgroups := lookup.NewSlotACL(map[int]*lookup.ACL{
		0: permitAllACL(),
		1: permitAllACL(),
		2: permitAllACL(),
	})
	site := sitedata.New(
		1, 1, 1,
		0, 0,
		cfg.System.CWID.Callsign, false,
		radioIDs, talkgroups, idens,
	)

	var port modem.Port
	if cfg.System.Modem.Protocol.Type == "uart" {
		port, err = modem.OpenUART(modem.UARTConfig{
			Name: cfg.System.Modem.Protocol.UART.Port,
			Baud: cfg.System.Modem.Protocol.UART.Speed,
		})
		if err != nil {
			log.Error("failed to open modem UART", logger.Error(err))
			os.Exit(1)
		}
	} else {
		if cfg.System.Modem.DisableNull {
			log.Error("no modem hardware configured and disable_null is set, refusing to start")
			os.Exit(1)
		}
		log.Warn("no modem hardware configured, running against a null modem port")
		port = modem.NewNullPort()
	}

	m := modem.New(port, modem.Config{
		Logger:           log,
		StatusIntervalMS: 1000,
		InactivityPolls:  5,
		RXInvert:         cfg.System.Modem.RXInvert,
		TXInvert:         cfg.System.Modem.TXInvert,
		PTTInvert:        cfg.System.Modem.PTTInvert,
		Duplex:           cfg.System.Modem.Duplex,
		DCBlocker:        cfg.System.Modem.DCBlocker,
		COSLockout:       cfg.System.Modem.COSLockout,
		DMREnabled:       cfg.Protocols.DMR.Enabled,
		P25Enabled:       cfg.Protocols.P25.Enabled,
		NXDNEnabled:      cfg.Protocols.NXDN.Enabled,
		FDMAPreamble:     cfg.System.ModemCfg.FDMAPreamble,
		RXLevel:          cfg.System.ModemCfg.RXLevel,
		TXLevel:          cfg.System.ModemCfg.TXLevel,
		CWIDLevel:        cfg.System.ModemCfg.CWIDLevel,
		DMRColorCode:     cfg.System.ModemCfg.DMRColorCode,
		DMRRXDelay:       cfg.System.ModemCfg.DMRRXDelay,
		P25NAC:           cfg.System.ModemCfg.P25NAC,
		P25CorrCount:     cfg.System.ModemCfg.P25CorrCount,
	})
	if err := m.Open(); err != nil {
		log.Error("failed to open modem session", logger.Error(err))
		os.Exit(1)
	}
	defer m.Close()

	if flashRepo != nil {
		if prev, ok, err := flashRepo.Load(persist.DefaultFlashSnapshotName); err != nil {
			log.Warn("failed to load flash snapshot", logger.Error(err))
		} else if ok {
			log.Debug("loaded previous flash snapshot", logger.Int("length", len(prev)))
		}
		if err := flashRepo.Save(persist.DefaultFlashSnapshotName, m.FlashSnapshot()); err != nil {
			log.Warn("failed to save flash snapshot", logger.Error(err))
		}
	}

	var peer *fne.Peer
	if cfg.Network.Enabled {
		peer = fne.New(fne.Config{
			Logger:      log,
			LocalPeerID: uint32(cfg.Network.PeerID),
			Passphrase:  cfg.Network.Passphrase,
			RemoteAddr:  fmt.Sprintf("%s:%d", cfg.Network.Address, cfg.Network.Port),
			RetryTimeMS: uint32(cfg.Network.RetryTimeMS),
			IdleTimeMS:  uint32(cfg.Network.IdleTimeMS),
			DMREnabled:    cfg.Protocols.DMR.Enabled,
			P25Enabled:    cfg.Protocols.P25.Enabled,
			NXDNEnabled:   cfg.Protocols.NXDN.Enabled,
			Authoritative: true,
			Site:          &site,
			Identity: fne.Identity{
				Identity:   cfg.System.CWID.Callsign,
				SoftwareID: "dvmhost-" + version,
			},
		})
		if err := peer.Start(); err != nil {
			log.Error("failed to start FNE peer session", logger.Error(err))
			os.Exit(1)
		}
		defer peer.Close()
	}

	hub := rpc.NewActivityHub(log.WithComponent("rpc"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	var dmrControl *dmr.Control
	if cfg.Protocols.DMR.Enabled {
		dmrControl = dmr.New(dmr.Config{
			Logger:         log,
			Site:           &site,
			ColorCode:      cfg.Protocols.DMR.ColorCode,
			SelfOnly:       cfg.Protocols.DMR.SelfOnly,
			EmbeddedLCOnly: cfg.Protocols.DMR.EmbeddedLCOnly,
			DumpCSBKData:   cfg.Protocols.DMR.DumpCSBKData,
			Authoritative:  true,
			Hooks: dmr.GrantHooks{
				NotifyGrant: func(slot int, dstID, srcID uint32) {
					metricsCollector.CallStarted("dmr", dstID, slot)
					hub.Publish("dmr.grant", map[string]interface{}{"slot": slot, "dst_id": dstID, "src_id": srcID})
				},
				NotifyRelease: func(slot int, dstID uint32) {
					metricsCollector.CallEnded("dmr", dstID, slot)
					hub.Publish("dmr.release", map[string]interface{}{"slot": slot, "dst_id": dstID})
					recordCallEnd(callRepo, log, "dmr", slot, 0, dstID)
				},
			},
		})
	}

	var p25Control *p25.Control
	var p25Conv *dfsi.Converter
	if cfg.Protocols.P25.Enabled {
		var llaKey [16]byte
		if cfg.Protocols.P25.LLAEnabled {
			raw, err := hex.DecodeString(cfg.Protocols.P25.LLAKey)
			if err != nil || len(raw) != 16 {
				log.Error("invalid protocols.p25.lla_key, must be 32 hex characters", logger.Error(err))
				os.Exit(1)
			}
			copy(llaKey[:], raw)
		}
		p25Control = p25.New(p25.Config{
			Logger:          log,
			Site:            &site,
			NAC:             cfg.Protocols.P25.NAC,
			ControlOnly:     cfg.Protocols.P25.ControlOnly,
			TDULCEnabled:    cfg.Protocols.P25.TDULCEnabled,
			TrunkingEnabled: cfg.Protocols.P25.TrunkingEnabled,
			LLAEnabled:      cfg.Protocols.P25.LLAEnabled,
			LLAKey:          llaKey,
			Hooks: p25.GrantHooks{
				NotifyGrant: func(dstID, srcID uint32) {
					metricsCollector.CallStarted("p25", dstID, 0)
					hub.Publish("p25.grant", map[string]interface{}{"dst_id": dstID, "src_id": srcID})
				},
				NotifyRelease: func(dstID uint32) {
					metricsCollector.CallEnded("p25", dstID, 0)
					hub.Publish("p25.release", map[string]interface{}{"dst_id": dstID})
					recordCallEnd(callRepo, log, "p25", 0, 0, dstID)
				},
			},
		})
		p25Conv = dfsi.New(dfsi.Config{Logger: log, TIAFormat: true})
	}

	var nxdnControl *nxdn.Control
	if cfg.Protocols.NXDN.Enabled {
		nxdnControl = nxdn.New(nxdn.Config{
			Logger:          log,
			Site:            &site,
			RAN:             cfg.Protocols.NXDN.RAN,
			SelfOnly:        cfg.Protocols.NXDN.SelfOnly,
			TrunkingEnabled: cfg.Protocols.NXDN.Trunking,
		})
	}

	if cfg.RPC.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/activity", hub.Handler())
		if dmrControl != nil {
			rpc.NewAPI(log, dmrControl, hub).Routes(mux, "/rpc/dmr")
		}
		if p25Control != nil {
			rpc.NewAPI(log, p25Control, hub).Routes(mux, "/rpc/p25")
		}
		if nxdnControl != nil {
			rpc.NewAPI(log, nxdnControl, hub).Routes(mux, "/rpc/nxdn")
		}

		addr := fmt.Sprintf("%s:%d", cfg.RPC.Host, cfg.RPC.Port)
		rpcServer := &http.Server{Addr: addr, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("rpc server error", logger.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = rpcServer.Shutdown(shutdownCtx)
		}()
		log.Info("rpc server started", logger.String("addr", addr))
	}

	if peer != nil {
		var dmrGrant, p25Grant, nxdnGrant fne.GrantController
		if dmrControl != nil {
			dmrGrant = dmrControl
		}
		if p25Control != nil {
			p25Grant = p25Control
		}
		if nxdnControl != nil {
			nxdnGrant = nxdnControl
		}
		peer.SetGrantControllers(dmrGrant, p25Grant, nxdnGrant)
	}

	log.Info("dvmhost initialized")

	wg.Add(1)
	go func() {
		defer wg.Done()
		runClockLoop(ctx, log, m, peer, dmrControl, p25Control, p25Conv, nxdnControl, metricsCollector, callRepo)
	}()

	sig := <-sigChan
	log.Info("received shutdown signal", logger.String("signal", sig.String()))
	cancel()
	wg.Wait()
	log.Info("dvmhost stopped")
}

// permitAllACL builds an ACL that permits every ID, the default posture
// when no acl.yaml rule is configured for a site.
func permitAllACL() *lookup.ACL {
	acl, err := lookup.ParseACL("PERMIT:ALL")
	if err != nil {
		panic("permitAllACL: " + err.Error())
	}
	return acl
}

// recordCallEnd writes one call-detail-record on grant release, a no-op
// when persistence is disabled. The grant hooks only carry the state
// available at teardown, so start and end time collapse to the release
// instant rather than the true call duration.
func recordCallEnd(repo *persist.CallRecordRepository, log *logger.Logger, protocol string, slot int, srcID, dstID uint32) {
	if repo == nil {
		return
	}
	now := time.Now()
	rec := &persist.CallRecord{
		Protocol:  protocol,
		Slot:      slot,
		SrcID:     srcID,
		DstID:     dstID,
		StartTime: now,
		EndTime:   now,
	}
	if err := repo.Create(rec); err != nil {
		log.Warn("failed to write call record", logger.Error(err))
	}
}

// runClockLoop is the single cooperative scheduler thread: every
// tickIntervalMS it advances the modem session, the FNE peer, and
// whichever protocol controllers are enabled, then pumps frames between
// them. No component here ever blocks — Clock and the frame read/write
// calls are all non-blocking by construction.
func runClockLoop(
	ctx context.Context,
	log *logger.Logger,
	m *modem.Modem,
	peer *fne.Peer,
	dmrControl *dmr.Control,
	p25Control *p25.Control,
	p25Conv *dfsi.Converter,
	nxdnControl *nxdn.Control,
	coll *metrics.Collector,
	callRepo *persist.CallRecordRepository,
) {
	ticker := time.NewTicker(tickIntervalMS * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Clock(tickIntervalMS); err != nil {
				log.Error("modem clock error", logger.Error(err))
			}
			if peer != nil {
				if err := peer.Clock(tickIntervalMS); err != nil {
					log.Warn("fne clock error", logger.Error(err))
				}
			}
			if dmrControl != nil {
				dmrControl.Clock(tickIntervalMS)
			}
			if p25Control != nil {
				p25Control.Clock(tickIntervalMS)
			}
			if p25Conv != nil {
				p25Conv.Clock(tickIntervalMS)
			}
			if nxdnControl != nil {
				nxdnControl.Clock(tickIntervalMS)
			}

			pumpDMR(m, dmrControl, coll)
			pumpP25(m, peer, p25Control, p25Conv, coll)
			pumpNXDN(m, nxdnControl, coll)
		}
	}
}

// dmrFrameHeader decodes the leading control byte this host prefixes to
// every DMR channel payload handed up from the modem session: the top
// bit distinguishes a voice superframe (no embedded slot type) from a
// data-sync burst, and the low nibble carries dmr.DataType for the
// latter.
func dmrFrameHeader(b byte) (sync dmr.SyncPattern, dt dmr.DataType) {
	if b&0x80 != 0 {
		return dmr.SyncVoice, 0
	}
	return dmr.SyncData, dmr.DataType(b & 0x0F)
}

func pumpDMR(m *modem.Modem, c *dmr.Control, coll *metrics.Collector) {
	if c == nil {
		return
	}
	for _, ch := range []modemproto.Channel{modemproto.ChannelDMR1, modemproto.ChannelDMR2} {
		slot := c.Slot1
		cmd := modemproto.CmdDMRData1
		if ch == modemproto.ChannelDMR2 {
			slot = c.Slot2
			cmd = modemproto.CmdDMRData2
		}

		for {
			tag, data, ok := m.ReadFrame(ch)
			if !ok {
				break
			}
			coll.FrameReceived("dmr")
			switch tag {
			case modemproto.TagLost:
				slot.ProcessFrame(dmr.SyncNone, 0, nil)
			default:
				if len(data) < 1 {
					continue
				}
				sync, dt := dmrFrameHeader(data[0])
				slot.ProcessFrame(sync, dt, data[1:])
			}
		}
		for {
			data, ok := slot.NextTxFrame()
			if !ok {
				break
			}
			if m.WriteFrame(ch, cmd, data) {
				coll.FrameSent("dmr")
			}
		}
	}
}

func pumpP25(m *modem.Modem, peer *fne.Peer, c *p25.Control, conv *dfsi.Converter, coll *metrics.Collector) {
	if c == nil {
		return
	}
	for {
		tag, data, ok := m.ReadFrame(modemproto.ChannelP25)
		if !ok {
			break
		}
		coll.FrameReceived("p25")
		if tag == modemproto.TagLost {
			c.FrameLost()
			continue
		}
		c.ProcessFrame(data)
	}

	for {
		data, ok := c.NextCCFrame()
		if !ok {
			break
		}
		if m.WriteFrame(modemproto.ChannelP25, modemproto.CmdP25Data, data) {
			coll.FrameSent("p25")
		}
	}

	if conv != nil {
		for {
			data, ok := conv.NextTxFrame()
			if !ok {
				break
			}
			if m.WriteFrame(modemproto.ChannelP25, modemproto.CmdP25Data, data) {
				coll.FrameSent("p25")
			}
		}
	}

	if peer != nil {
		for {
			data, ok := c.NextNetworkFrame()
			if !ok {
				break
			}
			if err := peer.SendProtocolFrame(modemproto.ChannelP25, 0, data); err == nil {
				coll.FrameSent("p25")
			}
		}
	}
}

func pumpNXDN(m *modem.Modem, c *nxdn.Control, coll *metrics.Collector) {
	if c == nil {
		return
	}
	for {
		tag, data, ok := m.ReadFrame(modemproto.ChannelNXDN)
		if !ok {
			break
		}
		coll.FrameReceived("nxdn")
		if tag == modemproto.TagLost {
			c.FrameLost()
			continue
		}
		if len(data) < 2 {
			continue
		}
		c.ProcessFrame(data[0], int(data[1]), data[2:])
	}
}
