// Command gateway runs the object-storage gateway: the HTTP API, the libp2p
// multiplexer that dispatches store/retrieve/audit/delete to storage nodes,
// the periodic proof-of-possession audit loop, and the repair sweeper.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/config"
	"github.com/driftmesh/driftmesh/internal/geofence"
	"github.com/driftmesh/driftmesh/internal/httpapi"
	"github.com/driftmesh/driftmesh/internal/metrics"
	"github.com/driftmesh/driftmesh/internal/multiplexer"
	"github.com/driftmesh/driftmesh/internal/orchestrator"
	"github.com/driftmesh/driftmesh/internal/proof"
	"github.com/driftmesh/driftmesh/internal/repair"
)

func main() {
	log := logrus.New()
	v := viper.New()

	root := &cobra.Command{
		Use:   "gateway",
		Short: "run the driftmesh object-storage gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, log)
		},
	}
	config.BindFlags(root, v)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("gateway exited with error")
	}
}

func run(ctx context.Context, v *viper.Viper, log *logrus.Logger) error {
	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dsn := v.GetString("catalog.dsn"); dsn != "" {
		cfg.Catalog.DSN = dsn
	}
	if addr := v.GetString("http.listen_addr"); addr != "" {
		cfg.HTTP.ListenAddr = addr
	}
	if addr := v.GetString("network.listen_addr"); addr != "" {
		cfg.Network.ListenAddr = addr
	}
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(lvl)
	}
	entry := logrus.NewEntry(log)

	store, err := catalog.Open(ctx, cfg.Catalog.DSN)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	priv, err := loadOrCreateIdentity(cfg.Network.IdentityPath)
	if err != nil {
		return fmt.Errorf("load gateway identity: %w", err)
	}
	h, err := libp2p.New(libp2p.Identity(priv), libp2p.ListenAddrStrings(cfg.Network.ListenAddr))
	if err != nil {
		return fmt.Errorf("start libp2p host: %w", err)
	}
	defer h.Close()

	resolver := geofence.New(ctx, store, entry)
	resolver.Start()
	defer resolver.Stop()

	metricsReg := metrics.New()

	mux := multiplexer.New(h, resolver, store, entry, cfg.Network.MaxShardsPerAS, metricsReg)
	go mux.Run(ctx)

	gatewayKey, err := decodeAESKey(cfg.Gateway.GatewayKeyHex)
	if err != nil {
		return fmt.Errorf("decode gateway_key_hex: %w", err)
	}
	voucherKey, err := decodeAESKey(cfg.Gateway.VoucherKeyHex)
	if err != nil {
		return fmt.Errorf("decode voucher_key_hex: %w", err)
	}

	orch := orchestrator.New(mux, store, orchestrator.Config{
		BodyCapBytes:  cfg.Gateway.BodyCapBytes,
		DataShards:    cfg.Gateway.DataShards,
		ParityShards:  cfg.Gateway.ParityShards,
		QuorumDelta:   cfg.Gateway.QuorumDelta,
		GatewayKey:    gatewayKey,
		VoucherKey:    voucherKey,
		VoucherTTL:    cfg.Gateway.VoucherTTL,
		CacheSize:     cfg.Gateway.CacheSize,
		DecodeWorkers: cfg.Gateway.DecodeWorkers,
	}, entry)

	heat := repair.NewHeatTracker(100)
	orch.SetRetrieveHook(heat.Hook())

	reps := repair.NewEngine(0.3, repair.DefaultSLOs(), 0.02)
	sweeper := repair.NewSweeper(store, orch, reps, heat, entry)
	sweeper.Start()
	defer sweeper.Stop()

	audit := proof.New(store, mux, entry)
	audit.Start()
	defer audit.Stop()

	csrfKey, err := decodeKeyHex(cfg.HTTP.CSRFKeyHex)
	if err != nil {
		return fmt.Errorf("decode csrf_key_hex: %w", err)
	}
	srv := httpapi.New(orch, store, httpapi.Config{
		BearerToken: cfg.HTTP.BearerToken,
		CSRFKey:     csrfKey,
	}, entry, metricsReg)

	httpSrv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() {
		entry.WithField("addr", cfg.HTTP.ListenAddr).Info("gateway HTTP API listening")
		if serr := httpSrv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

const shutdownGrace = 10 * time.Second

func loadOrCreateIdentity(path string) (libp2pcrypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil {
		return libp2pcrypto.UnmarshalPrivateKey(b)
	}
	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	b, err := libp2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}

// decodeAESKey decodes a required 32-byte (AES-256) hex key, failing fast
// at startup rather than at the first PUT/GET the orchestrator handles.
func decodeAESKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("must be set to a 32-byte hex-encoded key")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(b))
	}
	return b, nil
}

// decodeKeyHex decodes an optional hex-encoded key, returning nil for an
// empty string rather than erroring — used for the CSRF signing key, whose
// length is not fixed the way an AES key's is.
func decodeKeyHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
