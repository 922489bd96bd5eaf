// Command storagenode runs a single storage node: an encrypted-at-rest
// block store answering signed store/retrieve/audit/delete commands from
// gateways over libp2p.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftmesh/driftmesh/internal/blockstore"
	"github.com/driftmesh/driftmesh/internal/config"
	"github.com/driftmesh/driftmesh/internal/identity"
	"github.com/driftmesh/driftmesh/internal/nodeserver"
)

func main() {
	log := logrus.New()
	v := viper.New()

	root := &cobra.Command{
		Use:   "storagenode",
		Short: "run a driftmesh storage node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, log)
		},
	}
	config.BindFlags(root, v)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("storagenode exited with error")
	}
}

func run(ctx context.Context, v *viper.Viper, log *logrus.Logger) error {
	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr := v.GetString("network.listen_addr"); addr != "" {
		cfg.Network.ListenAddr = addr
	}
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(lvl)
	}
	entry := logrus.NewEntry(log)

	blockKey, err := resolveBlockKey(cfg.StorageNode.BlockKeyHex, cfg.StorageNode.DataDir+".key")
	if err != nil {
		return fmt.Errorf("resolve block store encryption key: %w", err)
	}
	store, err := blockstore.Open(cfg.StorageNode.DataDir, cfg.StorageNode.CapacityBytes, blockKey)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()

	id, err := loadOrCreateNodeIdentity(store)
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}

	h, err := libp2p.New(libp2p.Identity(id.Libp2pPrivateKey()), libp2p.ListenAddrStrings(cfg.Network.ListenAddr))
	if err != nil {
		return fmt.Errorf("start libp2p host: %w", err)
	}
	defer h.Close()

	allowlist, err := parseAllowlist(cfg.StorageNode.Allowlist)
	if err != nil {
		return fmt.Errorf("parse allowlist: %w", err)
	}

	handler := nodeserver.New(id, store, entry, allowlist)
	nodeserver.Serve(handler, h)

	entry.WithFields(logrus.Fields{
		"peer_id": id.PeerID().String(),
		"addrs":   h.Addrs(),
	}).Info("storage node listening")

	<-ctx.Done()
	return nil
}

// loadOrCreateNodeIdentity reads the node's persisted identity key from the
// block store's meta bucket, generating and persisting a fresh one on first
// run, mirroring the gateway's file-backed equivalent but keyed off the
// same encrypted store every other piece of node state already lives in.
func loadOrCreateNodeIdentity(store *blockstore.Store) (*identity.Identity, error) {
	if b, ok, err := store.IdentityKey(); err != nil {
		return nil, err
	} else if ok {
		return identity.FromPrivateKeyBytes(b)
	}
	id, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	b, err := id.MarshalPrivateKey()
	if err != nil {
		return nil, err
	}
	if err := store.PutIdentityKey(b); err != nil {
		return nil, err
	}
	return id, nil
}

// resolveBlockKey returns the block store's AES-256 encryption key: the
// configured block_key_hex if set, otherwise a key persisted at keyPath
// (generated once on first run). block_key_hex must stay stable across
// restarts of the same node — the block store decrypts every value under
// whatever key it is opened with, so losing this key is equivalent to
// losing every block on disk.
func resolveBlockKey(hexKey, keyPath string) ([32]byte, error) {
	var key [32]byte
	if hexKey != "" {
		b, err := hex.DecodeString(hexKey)
		if err != nil {
			return key, err
		}
		if len(b) != 32 {
			return key, fmt.Errorf("block_key_hex must decode to 32 bytes, got %d", len(b))
		}
		copy(key[:], b)
		return key, nil
	}

	if b, err := os.ReadFile(keyPath); err == nil {
		if len(b) != 32 {
			return key, fmt.Errorf("%s does not contain a 32-byte key", keyPath)
		}
		copy(key[:], b)
		return key, nil
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	if err := os.WriteFile(keyPath, key[:], 0o600); err != nil {
		return key, err
	}
	return key, nil
}

func parseAllowlist(raw []string) ([]peer.ID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]peer.ID, 0, len(raw))
	for _, s := range raw {
		id, err := peer.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist peer id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}
