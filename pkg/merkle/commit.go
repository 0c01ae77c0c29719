// Copyright 2025 Certen Protocol
//
// Two-level commitment: a per-country Merkle tree over that country's
// district leaves, and a global Merkle tree over the sorted country roots.
// This is the commitment scheme spec.md §9 selects as canonical: it lets a
// verifier check a single district against its country root cheaply, and
// lets the country root be checked against the global root without
// re-hashing every district on earth.

package merkle

import (
	"encoding/hex"
	"fmt"
	"sort"
)

// CountryCommit is the Merkle commitment for a single country's districts.
type CountryCommit struct {
	CountryCode string   `json:"country_code"`
	Root        []byte   `json:"-"`
	RootHex     string   `json:"country_root"`
	LeafOrder   []string `json:"leaf_order"` // district_id in leaf order, for proof lookups
	tree        *Tree
}

// BuildCountryCommit builds a per-country Merkle tree from a map of
// district_id -> leaf hash. Districts are sorted by district_id before
// building so the root is deterministic regardless of input order.
func BuildCountryCommit(countryCode string, leavesByDistrict map[string][]byte) (*CountryCommit, error) {
	if len(leavesByDistrict) == 0 {
		return nil, fmt.Errorf("country %s: %w", countryCode, ErrEmptyTree)
	}

	ids := make([]string, 0, len(leavesByDistrict))
	for id := range leavesByDistrict {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	leaves := make([][]byte, len(ids))
	for i, id := range ids {
		leaves[i] = leavesByDistrict[id]
	}

	tree, err := BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("country %s: %w", countryCode, err)
	}

	return &CountryCommit{
		CountryCode: countryCode,
		Root:        tree.Root(),
		RootHex:     tree.RootHex(),
		LeafOrder:   ids,
		tree:        tree,
	}, nil
}

// ProofForDistrict returns the inclusion proof for a district within this
// country's tree.
func (c *CountryCommit) ProofForDistrict(districtID string) (*InclusionProof, error) {
	idx := sort.SearchStrings(c.LeafOrder, districtID)
	if idx >= len(c.LeafOrder) || c.LeafOrder[idx] != districtID {
		return nil, fmt.Errorf("district %s: %w", districtID, ErrLeafNotFound)
	}
	return c.tree.GenerateProof(idx)
}

// SelfVerify regenerates and verifies every leaf's inclusion proof against
// this commit's own root. Per spec.md §4.7 the builder must self-verify all
// proofs before declaring the country tree successfully built; a single
// mismatch here means the tree was built incorrectly and must abort the run,
// never ship undetected.
func (c *CountryCommit) SelfVerify(leavesByDistrict map[string][]byte) error {
	for _, id := range c.LeafOrder {
		leaf, ok := leavesByDistrict[id]
		if !ok {
			return fmt.Errorf("self-verify country %s: district %s: %w", c.CountryCode, id, ErrLeafNotFound)
		}
		proof, err := c.ProofForDistrict(id)
		if err != nil {
			return fmt.Errorf("self-verify country %s: district %s: %w", c.CountryCode, id, err)
		}
		ok, err = VerifyProof(leaf, proof, c.Root)
		if err != nil {
			return fmt.Errorf("self-verify country %s: district %s: %w", c.CountryCode, id, err)
		}
		if !ok {
			return fmt.Errorf("self-verify country %s: district %s: %w", c.CountryCode, id, ErrInvalidProof)
		}
	}
	return nil
}

// GlobalCommit is the Merkle commitment over every country's root.
type GlobalCommit struct {
	Root          []byte   `json:"-"`
	RootHex       string   `json:"global_root"`
	CountryOrder  []string `json:"country_order"` // country_code in leaf order
	tree          *Tree
}

// BuildGlobalCommit builds the global tree from a set of country commitments.
// Countries are sorted by country_code before building, matching the
// per-country determinism rule.
func BuildGlobalCommit(countries []*CountryCommit) (*GlobalCommit, error) {
	if len(countries) == 0 {
		return nil, fmt.Errorf("global commit: %w", ErrEmptyTree)
	}

	sorted := make([]*CountryCommit, len(countries))
	copy(sorted, countries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CountryCode < sorted[j].CountryCode
	})

	leaves := make([][]byte, len(sorted))
	order := make([]string, len(sorted))
	for i, c := range sorted {
		leaves[i] = c.Root
		order[i] = c.CountryCode
	}

	tree, err := BuildTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("global commit: %w", err)
	}

	return &GlobalCommit{
		Root:         tree.Root(),
		RootHex:      tree.RootHex(),
		CountryOrder: order,
		tree:         tree,
	}, nil
}

// ProofForCountry returns the inclusion proof for a country root within the
// global tree.
func (g *GlobalCommit) ProofForCountry(countryCode string) (*InclusionProof, error) {
	idx := sort.SearchStrings(g.CountryOrder, countryCode)
	if idx >= len(g.CountryOrder) || g.CountryOrder[idx] != countryCode {
		return nil, fmt.Errorf("country %s: %w", countryCode, ErrLeafNotFound)
	}
	return g.tree.GenerateProof(idx)
}

// SelfVerify regenerates and verifies every country's inclusion proof
// against this commit's own global root, the second half of spec.md §4.7's
// self-check requirement (the first half is CountryCommit.SelfVerify).
func (g *GlobalCommit) SelfVerify(countries []*CountryCommit) error {
	rootsByCountry := make(map[string][]byte, len(countries))
	for _, c := range countries {
		rootsByCountry[c.CountryCode] = c.Root
	}
	for _, cc := range g.CountryOrder {
		root, ok := rootsByCountry[cc]
		if !ok {
			return fmt.Errorf("self-verify global: country %s: %w", cc, ErrLeafNotFound)
		}
		proof, err := g.ProofForCountry(cc)
		if err != nil {
			return fmt.Errorf("self-verify global: country %s: %w", cc, err)
		}
		ok, err = VerifyProof(root, proof, g.Root)
		if err != nil {
			return fmt.Errorf("self-verify global: country %s: %w", cc, err)
		}
		if !ok {
			return fmt.Errorf("self-verify global: country %s: %w", cc, ErrInvalidProof)
		}
	}
	return nil
}

// DistrictProof is the full two-level proof chain for a single district:
// district leaf -> country root -> global root.
type DistrictProof struct {
	DistrictID    string          `json:"district_id"`
	CountryCode   string          `json:"country_code"`
	LeafToCountry *InclusionProof `json:"leaf_to_country"`
	CountryToGlobal *InclusionProof `json:"country_to_global"`
	GlobalRoot    string          `json:"global_root"`
}

// VerifyDistrictProof independently re-verifies a two-level proof against a
// known global root, without needing either tree in memory.
func VerifyDistrictProof(leafHash []byte, proof *DistrictProof) (bool, error) {
	countryRoot, err := hex.DecodeString(proof.LeafToCountry.MerkleRoot)
	if err != nil {
		return false, fmt.Errorf("invalid country root hex: %w", err)
	}

	ok, err := VerifyProof(leafHash, proof.LeafToCountry, countryRoot)
	if err != nil || !ok {
		return false, err
	}

	globalRoot, err := hex.DecodeString(proof.GlobalRoot)
	if err != nil {
		return false, fmt.Errorf("invalid global root hex: %w", err)
	}
	return VerifyProof(countryRoot, proof.CountryToGlobal, globalRoot)
}
