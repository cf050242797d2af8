package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/internal/auth"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/store"
)

// authenticateClient extracts the inbound credential (per spec.md §4.2's
// query_key > goog_api_key > api_key > bearer priority) and resolves it
// against store.ClientKey, the gateway's own tenant-key table.
func (d *Deps) authenticateClient(ctx context.Context, r *http.Request) (auth.Credential, *store.ClientKey, error) {
	cred, ok := auth.ExtractClientCredential(r)
	if !ok {
		return auth.Credential{}, nil, gatewayerr.InvalidRequest("missing credential")
	}

	hash := hashClientKey(cred.Value)
	var key store.ClientKey
	if err := d.DB.WithContext(ctx).Where("key_hash = ? AND enabled", hash).First(&key).Error; err != nil {
		return auth.Credential{}, nil, errors.Wrap(err, "validate client key")
	}

	return cred, &key, nil
}

func hashClientKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
