package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFact    = "hyperlore/fact/v1"
	DomainGoal    = "hyperlore/goal/v1"
	DomainBinding = "hyperlore/binding/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FactID computes the content-addressed identity of a stored term.
// Identical terms learned twice share an ID, which is what makes learning
// idempotent.
func FactID(t Term) (string, error) {
	canonical, err := MarshalCanonical(t)
	if err != nil {
		return "", fmt.Errorf("FactID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// GoalFingerprint identifies a goal up to variable renaming: variables are
// renamed _0, _1, ... in order of first appearance before hashing, so
// "canFly ?x" and "canFly ?y" collide while "canFly Tweety" does not.
func GoalFingerprint(t Term) (string, error) {
	names := make(map[string]string)
	normalized := Rename(t, func(name string) string {
		if n, ok := names[name]; ok {
			return n
		}
		n := fmt.Sprintf("_%d", len(names))
		names[name] = n
		return n
	})
	canonical, err := MarshalCanonical(normalized)
	if err != nil {
		return "", fmt.Errorf("GoalFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGoal, canonical), nil
}

// BindingHash identifies a set of variable bindings, used to deduplicate
// proof solutions.
func BindingHash(bindings map[string]string) (string, error) {
	obj := make(map[string]any, len(bindings))
	for k, v := range bindings {
		obj[k] = v
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}

// MustFactID is like FactID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFactID(t Term) string {
	id, err := FactID(t)
	if err != nil {
		panic(err)
	}
	return id
}

// MustGoalFingerprint is like GoalFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustGoalFingerprint(t Term) string {
	fp, err := GoalFingerprint(t)
	if err != nil {
		panic(err)
	}
	return fp
}
