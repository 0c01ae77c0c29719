// Copyright 2025 Certen Protocol
//
// Content addressing for snapshot artifacts. Every outbound artifact (per
// spec.md §10's artifact table) gets a self-describing content address: a
// CIDv1 over a raw-codec SHA-256 multihash, base32-encoded. This is the same
// addressing scheme IPFS pinning providers expect, which is what lets the
// replication service (pkg/replication) hand providers a CID they can
// independently verify.

package cid

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Compute returns the CIDv1 content address of data.
func Compute(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("cid: compute multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// ComputeString is Compute with the result rendered as its default
// (base32) string form.
func ComputeString(data []byte) (string, error) {
	c, err := Compute(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// Verify reports whether data hashes to the given CID string.
func Verify(data []byte, cidStr string) (bool, error) {
	want, err := cid.Decode(cidStr)
	if err != nil {
		return false, fmt.Errorf("cid: decode %q: %w", cidStr, err)
	}
	got, err := Compute(data)
	if err != nil {
		return false, err
	}
	return want.Equals(got), nil
}
