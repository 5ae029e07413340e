package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig configures the Azure Blob fetcher. Without an account key the
// client is anonymous, which works for public containers and SAS URLs.
type AzureConfig struct {
	AccountKey string
	// ServiceURLFormat builds the service URL from the account name.
	// Defaults to https://%s.blob.core.windows.net.
	ServiceURLFormat string
}

// AzureFetcher downloads az://account/container/blob identifiers.
type AzureFetcher struct {
	cfg AzureConfig
}

// NewAzureFetcher creates an Azure Blob fetcher.
func NewAzureFetcher(cfg AzureConfig) *AzureFetcher {
	if cfg.ServiceURLFormat == "" {
		cfg.ServiceURLFormat = "https://%s.blob.core.windows.net"
	}
	return &AzureFetcher{cfg: cfg}
}

// Fetch streams the blob into dst.
func (f *AzureFetcher) Fetch(ctx context.Context, id string, dst io.Writer) (int64, error) {
	account, container, blob, err := parseAzureID(id)
	if err != nil {
		return 0, err
	}

	client, err := f.client(account)
	if err != nil {
		return 0, err
	}

	resp, err := client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", id, err)
	}
	return n, nil
}

func (f *AzureFetcher) client(account string) (*azblob.Client, error) {
	serviceURL := fmt.Sprintf(f.cfg.ServiceURLFormat, account)
	if f.cfg.AccountKey == "" {
		client, err := azblob.NewClientWithNoCredential(serviceURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create Azure blob client: %w", err)
		}
		return client, nil
	}

	cred, err := azblob.NewSharedKeyCredential(account, f.cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return client, nil
}

func parseAzureID(id string) (account, container, blob string, err error) {
	u, err := url.Parse(id)
	if err != nil {
		return "", "", "", fmt.Errorf("parse %q: %w", id, err)
	}
	if u.Scheme != "az" {
		return "", "", "", fmt.Errorf("expected az:// scheme, got %q in %q", u.Scheme, id)
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if u.Host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("identifier %q must be az://account/container/blob", id)
	}
	return u.Host, parts[0], parts[1], nil
}
