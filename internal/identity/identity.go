// Package identity manages the long-lived public-key identity every peer
// (gateway-facing storage node, or the gateway's own dialing identity) uses
// to sign and verify the protocol's request/response payloads.
package identity

import (
	"crypto/rand"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Identity wraps a long-lived Ed25519 keypair and the peer ID derived from
// its public half. The private key never leaves the process that owns it;
// only the public key and signatures cross the wire.
type Identity struct {
	priv libp2pcrypto.PrivKey
	pub  libp2pcrypto.PubKey
	id   peer.ID
}

// Generate creates a fresh Ed25519 identity.
func Generate() (*Identity, error) {
	priv, pub, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	return fromKeys(priv, pub)
}

// FromPrivateKeyBytes reconstructs an Identity from a protobuf-encoded
// private key, the same encoding the block store persists under its meta
// bucket.
func FromPrivateKeyBytes(b []byte) (*Identity, error) {
	priv, err := libp2pcrypto.UnmarshalPrivateKey(b)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	return fromKeys(priv, priv.GetPublic())
}

func fromKeys(priv libp2pcrypto.PrivKey, pub libp2pcrypto.PubKey) (*Identity, error) {
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// MarshalPrivateKey returns the protobuf encoding suitable for persistence.
func (i *Identity) MarshalPrivateKey() ([]byte, error) {
	b, err := libp2pcrypto.MarshalPrivateKey(i.priv)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	return b, nil
}

// PublicKeyBytes returns the protobuf encoding of the public key, as carried
// in every signed response.
func (i *Identity) PublicKeyBytes() []byte {
	b, _ := libp2pcrypto.MarshalPublicKey(i.pub)
	return b
}

// PeerID returns the long-lived peer identity derived from the public key.
func (i *Identity) PeerID() peer.ID { return i.id }

// Libp2pPrivateKey exposes the underlying keypair for libp2p.New(libp2p.Identity(...)).
func (i *Identity) Libp2pPrivateKey() libp2pcrypto.PrivKey { return i.priv }

// Sign produces a signature over payload using the private key.
func (i *Identity) Sign(payload []byte) ([]byte, error) {
	sig, err := i.priv.Sign(payload)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	return sig, nil
}

// Verify checks that signature is valid for payload under publicKeyBytes,
// and that the public key derives exactly expected. It never panics on
// malformed input; it returns false.
func Verify(expected peer.ID, publicKeyBytes, signature, payload []byte) bool {
	pub, err := libp2pcrypto.UnmarshalPublicKey(publicKeyBytes)
	if err != nil {
		return false
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil || id != expected {
		return false
	}
	ok, err := pub.Verify(payload, signature)
	return err == nil && ok
}
