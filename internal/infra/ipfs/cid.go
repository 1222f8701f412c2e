// Package ipfs computes and stores content identifiers for snapshots.
package ipfs

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var rawPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// LocalCID returns the CIDv1 (raw codec, sha2-256, base32) of data.
func LocalCID(data []byte) (string, error) {
	c, err := rawPrefix.Sum(data)
	if err != nil {
		return "", fmt.Errorf("failed to hash snapshot: %w", err)
	}
	return c.String(), nil
}

// Store turns serialized snapshot bytes into a content identifier.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// LocalStore derives the CID without storing anything.
type LocalStore struct{}

func (LocalStore) Put(_ context.Context, data []byte) (string, error) {
	return LocalCID(data)
}
