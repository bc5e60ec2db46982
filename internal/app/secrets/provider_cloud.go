package secrets

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

// CloudSecretStoreProvider resolves secrets from an Azure Key Vault instance,
// the cloud-secret-store backend named in the spec's provider taxonomy.
// Ref.Name is the vault secret name; Ref.Field selects a key out of the
// secret's JSON payload when the stored value is structured.
type CloudSecretStoreProvider struct {
	client *azsecrets.Client
}

// NewCloudSecretStoreProvider builds a provider backed by the Key Vault at
// vaultURL, authenticating with the ambient Azure credential chain.
func NewCloudSecretStoreProvider(vaultURL string) (*CloudSecretStoreProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "build azure credential", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "build key vault client", err)
	}
	return &CloudSecretStoreProvider{client: client}, nil
}

func (p *CloudSecretStoreProvider) Name() string { return "cloud-secret-store" }

func (p *CloudSecretStoreProvider) Resolve(ctx context.Context, ref Ref, _ ResolveOptions) (string, error) {
	resp, err := p.client.GetSecret(ctx, ref.Name, "", nil)
	if err != nil {
		return "", apperrors.SecretMissing(p.Name(), ref.Name)
	}
	if resp.Value == nil {
		return "", apperrors.SecretMissing(p.Name(), ref.Name)
	}
	if ref.Field == "" {
		return *resp.Value, nil
	}
	return structuredField(p.Name(), ref, *resp.Value)
}
