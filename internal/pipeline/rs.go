package pipeline

import "github.com/vivint/infectious"

// rsCodec wraps vivint/infectious's Reed-Solomon implementation over GF(256)
// (the same Galois-field construction storj.io/storj uses in
// pkg/eestream, and the one original_source's erasure.rs names via
// reed_solomon_erasure::galois_8).
type rsCodec struct {
	fec *infectious.FEC
	k   int
	n   int
}

func newRSCodec(k, n int) (*rsCodec, error) {
	fec, err := infectious.NewFEC(k, n)
	if err != nil {
		return nil, ErrRSInit
	}
	return &rsCodec{fec: fec, k: k, n: n}, nil
}

// encode splits a payload whose length is a multiple of k into k data
// shares, then produces n total shares (k data + n-k parity), each
// len(payload)/k bytes long.
func (c *rsCodec) encode(payload []byte) ([][]byte, error) {
	shares := make([][]byte, c.n)
	err := c.fec.Encode(payload, func(s infectious.Share) {
		shares[s.Number] = append([]byte(nil), s.Data...)
	})
	if err != nil {
		return nil, ErrRSInit
	}
	return shares, nil
}

// decode reconstructs the original padded payload from a partial set of
// shares indexed by shard index (a nil entry means "missing"). At least k
// entries must be non-nil.
func (c *rsCodec) decode(shares [][]byte) ([]byte, error) {
	present := make([]infectious.Share, 0, c.k)
	for i, s := range shares {
		if s == nil {
			continue
		}
		present = append(present, infectious.Share{Number: i, Data: s})
	}
	if len(present) < c.k {
		return nil, ErrInsufficientShards
	}

	rebuilt := make([][]byte, c.n)
	for _, s := range present {
		rebuilt[s.Number] = s.Data
	}
	err := c.fec.Rebuild(present, func(s infectious.Share) {
		rebuilt[s.Number] = append([]byte(nil), s.Data...)
	})
	if err != nil {
		return nil, ErrRSDecode
	}

	shardLen := len(rebuilt[0])
	out := make([]byte, 0, c.k*shardLen)
	for i := 0; i < c.k; i++ {
		out = append(out, rebuilt[i]...)
	}
	return out, nil
}
