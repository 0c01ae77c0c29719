// Copyright 2025 Certen Protocol
//
// Merkle Tree Tests

package merkle

import (
	"bytes"
	"testing"
)

func leafHash(s string) []byte {
	return HashData([]byte(s))
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := leafHash("US-CA-001")
	tree, err := BuildTree([][]byte{leaf})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	if !bytes.Equal(tree.Root(), leaf) {
		t.Errorf("single leaf root mismatch: got %x, want %x", tree.Root(), leaf)
	}

	if tree.LeafCount() != 1 {
		t.Errorf("leaf count mismatch: got %d, want 1", tree.LeafCount())
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	leaf1 := leafHash("US-CA-001")
	leaf2 := leafHash("US-CA-002")

	tree, err := BuildTree([][]byte{leaf1, leaf2})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	expectedRoot := hashPair(leaf1, leaf2)

	if !bytes.Equal(tree.Root(), expectedRoot) {
		t.Errorf("two leaf root mismatch: got %x, want %x", tree.Root(), expectedRoot)
	}
}

func TestBuildTree_OddLeafDuplication(t *testing.T) {
	leaf1 := leafHash("a")
	leaf2 := leafHash("b")
	leaf3 := leafHash("c")

	tree, err := BuildTree([][]byte{leaf1, leaf2, leaf3})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	level1a := hashPair(leaf1, leaf2)
	level1b := hashPair(leaf3, leaf3)
	expectedRoot := hashPair(level1a, level1b)

	if !bytes.Equal(tree.Root(), expectedRoot) {
		t.Errorf("odd leaf root mismatch: got %x, want %x", tree.Root(), expectedRoot)
	}
}

func TestBuildTree_EmptyLeaves(t *testing.T) {
	_, err := BuildTree(nil)
	if err != ErrEmptyTree {
		t.Errorf("expected ErrEmptyTree, got %v", err)
	}
}

func TestBuildTree_InvalidLeafSize(t *testing.T) {
	_, err := BuildTree([][]byte{[]byte("too short")})
	if err == nil {
		t.Fatal("expected error for invalid leaf size")
	}
}

func TestGenerateAndVerifyProof(t *testing.T) {
	leaves := [][]byte{
		leafHash("d1"), leafHash("d2"), leafHash("d3"),
		leafHash("d4"), leafHash("d5"),
	}

	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	for i := range leaves {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("failed to generate proof for leaf %d: %v", i, err)
		}

		ok, err := VerifyProof(leaves[i], proof, tree.Root())
		if err != nil {
			t.Fatalf("verify proof for leaf %d: %v", i, err)
		}
		if !ok {
			t.Errorf("proof for leaf %d did not verify", i)
		}
	}
}

func TestVerifyProof_TamperedLeafFails(t *testing.T) {
	leaves := [][]byte{leafHash("d1"), leafHash("d2"), leafHash("d3")}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	tamperedLeaf := leafHash("not-d1")
	ok, err := VerifyProof(tamperedLeaf, proof, tree.Root())
	if err != nil {
		t.Fatalf("verify proof: %v", err)
	}
	if ok {
		t.Error("tampered leaf unexpectedly verified")
	}
}

func TestGenerateProofByHash(t *testing.T) {
	leaves := [][]byte{leafHash("d1"), leafHash("d2"), leafHash("d3"), leafHash("d4")}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	proof, err := tree.GenerateProofByHash(leaves[2])
	if err != nil {
		t.Fatalf("generate proof by hash: %v", err)
	}
	if proof.LeafIndex != 2 {
		t.Errorf("expected leaf index 2, got %d", proof.LeafIndex)
	}

	_, err = tree.GenerateProofByHash(leafHash("not-present"))
	if err != ErrLeafNotFound {
		t.Errorf("expected ErrLeafNotFound, got %v", err)
	}
}

func TestBuildTree_DeterministicRoot(t *testing.T) {
	leaves := [][]byte{leafHash("d1"), leafHash("d2"), leafHash("d3"), leafHash("d4"), leafHash("d5")}

	tree1, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree 1: %v", err)
	}
	tree2, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree 2: %v", err)
	}

	if tree1.RootHex() != tree2.RootHex() {
		t.Errorf("same leaves produced different roots: %s != %s", tree1.RootHex(), tree2.RootHex())
	}
}

func TestProofJSONRoundTrip(t *testing.T) {
	leaves := [][]byte{leafHash("d1"), leafHash("d2"), leafHash("d3")}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	proof, err := tree.GenerateProof(1)
	if err != nil {
		t.Fatalf("generate proof: %v", err)
	}

	data, err := proof.ToJSON()
	if err != nil {
		t.Fatalf("marshal proof: %v", err)
	}

	restored, err := ProofFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal proof: %v", err)
	}

	ok, err := VerifyProof(leaves[1], restored, tree.Root())
	if err != nil {
		t.Fatalf("verify restored proof: %v", err)
	}
	if !ok {
		t.Error("restored proof did not verify")
	}
}
