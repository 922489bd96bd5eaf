package orchestrator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
)

// Voucher is a time-bound capability for one object. The gateway's own
// GET route accepts it in place of bearer/cookie auth; storage nodes do
// not check vouchers.
type Voucher struct {
	ObjectCID string
	ExpiresAt time.Time
	Token     string
}

// PresignedManifest returns placement info plus a bandwidth voucher for
// object bucket/key, valid for the orchestrator's configured TTL.
func (o *Orchestrator) PresignedManifest(ctx context.Context, bucket, key string) (Voucher, []catalog.ShardPlacement, error) {
	encKey, err := sealDeterministic(o.cfg.GatewayKey, key)
	if err != nil {
		return Voucher{}, nil, err
	}
	obj, found, err := o.catalog.GetObject(ctx, bucket, encKey)
	if err != nil {
		return Voucher{}, nil, err
	}
	if !found {
		return Voucher{}, nil, apierr.NotFound.New("object %s/%s", bucket, key)
	}
	placements, err := o.catalog.ShardsForObject(ctx, obj.CID)
	if err != nil {
		return Voucher{}, nil, err
	}

	expiry := time.Now().Add(o.cfg.VoucherTTL)
	return Voucher{
		ObjectCID: obj.CID,
		ExpiresAt: expiry,
		Token:     signVoucher(o.cfg.VoucherKey, obj.CID, expiry),
	}, placements, nil
}

// signVoucher computes an HMAC-SHA256 bandwidth voucher over
// object_cid||expiry, base64url-encoded alongside the expiry so a storage
// node can verify it without a gateway round trip.
func signVoucher(key []byte, objectCID string, expiry time.Time) string {
	expiryUnix := expiry.Unix()
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(objectCID))
	mac.Write([]byte(strconv.FormatInt(expiryUnix, 10)))
	sig := mac.Sum(nil)
	return fmt.Sprintf("%d.%s", expiryUnix, base64.RawURLEncoding.EncodeToString(sig))
}

// VerifyVoucher checks a presented token against objectCID using only the
// voucher key, with no catalog lookup. Its caller is internal/httpapi's
// hasValidProofToken; no storage-node code calls it.
func VerifyVoucher(key []byte, objectCID, token string) bool {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false
	}
	expiryUnix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return false
	}
	if time.Now().Unix() > expiryUnix {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(objectCID))
	mac.Write([]byte(strconv.FormatInt(expiryUnix, 10)))
	expected := mac.Sum(nil)
	return subtle.ConstantTimeCompare(sig, expected) == 1
}
