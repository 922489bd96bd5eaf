package orchestrator

import "context"

// DecryptKey reverses the deterministic sealing applied to every object's
// logical key before it is stored in the catalog, so the HTTP listing
// surface can show real keys instead of ciphertext.
func (o *Orchestrator) DecryptKey(encKey string) (string, error) {
	return openDeterministic(o.cfg.GatewayKey, encKey)
}

// ResolveCID looks up bucket/key's object CID without fetching or decrypting
// its body, the one piece of information VerifyVoucher needs to check a
// presented bandwidth voucher against a GET that never carried a bearer
// credential.
func (o *Orchestrator) ResolveCID(ctx context.Context, bucket, key string) (string, bool, error) {
	encKey, err := sealDeterministic(o.cfg.GatewayKey, key)
	if err != nil {
		return "", false, err
	}
	obj, found, err := o.catalog.GetObject(ctx, bucket, encKey)
	if err != nil || !found {
		return "", found, err
	}
	return obj.CID, true, nil
}

// VoucherKey exposes the orchestrator's voucher-signing key so the HTTP
// layer can verify a presented x-neuro-proof-token capability without
// duplicating key management.
func (o *Orchestrator) VoucherKey() []byte {
	return o.cfg.VoucherKey
}
