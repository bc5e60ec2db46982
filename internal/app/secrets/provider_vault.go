package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// VaultKVProvider resolves secrets from a HashiCorp Vault KV v2 mount over
// its HTTP API. Ref.Name is the secret path under the mount; Ref.Field
// selects one key from the KV payload, and an empty Field selects the
// "value" key.
type VaultKVProvider struct {
	baseURL string
	mount   string
	token   string
	client  *http.Client
}

// NewVaultKVProvider builds a provider against a running Vault KV v2 mount.
func NewVaultKVProvider(baseURL, mount, token string) *VaultKVProvider {
	return &VaultKVProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		mount:   strings.Trim(mount, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *VaultKVProvider) Name() string { return "vault-kv" }

type vaultKVResponse struct {
	Data struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

func (p *VaultKVProvider) Resolve(ctx context.Context, ref Ref, _ ResolveOptions) (string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", p.baseURL, p.mount, strings.TrimLeft(ref.Name, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "build vault request", err)
	}
	req.Header.Set("X-Vault-Token", p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", apperrors.TransportRefused(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", apperrors.SecretMissing(p.Name(), ref.Name)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperrors.TransportStatus(resp.StatusCode, string(body))
	}

	var parsed vaultKVResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperrors.SecretParseFailure(p.Name(), ref.Name, err)
	}

	field := ref.Field
	if field == "" {
		field = "value"
	}
	v, ok := parsed.Data.Data[field]
	if !ok {
		return "", apperrors.SecretFieldAbsent(p.Name(), ref.Name, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperrors.SecretFieldAbsent(p.Name(), ref.Name, field)
	}
	return s, nil
}
