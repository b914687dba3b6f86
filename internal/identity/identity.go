// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package identity verifies that inbound invocation requests originate from
// the runtime: each request carries an ed25519 signature over the body,
// issued under a named key. Keys are loaded from a secrets store
// (pkg/secrets: env, memory or vault). Verification is disabled unless keys
// are configured.
package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"durable-sdk/pkg/secrets"
)

// Request headers carrying the signature material.
const (
	HeaderKeyID     = "x-durable-key-id"
	HeaderSignature = "x-durable-signature"
)

// Verifier checks request signatures against a fixed key set.
type Verifier struct {
	keys map[string]ed25519.PublicKey
}

// NewVerifier loads the named public keys from the store. Key material is
// stored base64-encoded.
func NewVerifier(ctx context.Context, store secrets.Store, keyNames []string) (*Verifier, error) {
	keys := make(map[string]ed25519.PublicKey, len(keyNames))
	for _, name := range keyNames {
		raw, err := store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load identity key %q: %w", name, err)
		}
		pub, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("identity key %q is not base64: %w", name, err)
		}
		if len(pub) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("identity key %q has size %d, want %d", name, len(pub), ed25519.PublicKeySize)
		}
		keys[name] = ed25519.PublicKey(pub)
	}
	return &Verifier{keys: keys}, nil
}

// Verify checks the base64 signature over body under the named key.
func (v *Verifier) Verify(keyID, signature string, body []byte) error {
	pub, ok := v.keys[keyID]
	if !ok {
		return fmt.Errorf("unknown identity key %q", keyID)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature is not base64: %w", err)
	}
	if !ed25519.Verify(pub, body, sig) {
		return fmt.Errorf("signature verification failed for key %q", keyID)
	}
	return nil
}

// Sign produces the signature header value for body. The runtime side of
// the handshake; kept here for tests and local tooling.
func Sign(priv ed25519.PrivateKey, body []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, body))
}
