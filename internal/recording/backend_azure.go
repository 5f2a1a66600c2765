package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/dialer/internal/dialererr"
)

// AzureBackend stores recordings in Azure Blob Storage via the Put Blob
// REST operation against a container SAS URL. The retrieval pack carries
// no azure-storage-blob SDK, so this is built on go-resty/resty/v2 (the
// same HTTP client the ARI action client uses) rather than the stdlib
// net/http client — see DESIGN.md.
type AzureBackend struct {
	ContainerSASURL string // e.g. https://acct.blob.core.windows.net/container?sv=...
	http            *resty.Client
}

func NewAzureBackend(containerSASURL string) *AzureBackend {
	return &AzureBackend{ContainerSASURL: containerSASURL, http: resty.New()}
}

func (b *AzureBackend) blobURL(key string) string {
	base, query := splitQuery(b.ContainerSASURL)
	return fmt.Sprintf("%s/%s?%s", base, key, query)
}

func splitQuery(sasURL string) (base, query string) {
	for i := 0; i < len(sasURL); i++ {
		if sasURL[i] == '?' {
			return sasURL[:i], sasURL[i+1:]
		}
	}
	return sasURL, ""
}

func (b *AzureBackend) Store(ctx context.Context, recordingID string, startedAt time.Time, format string, data []byte) (string, error) {
	key := datePartitionedKey(recordingID, startedAt, format)
	resp, err := b.http.R().SetContext(ctx).
		SetHeader("x-ms-blob-type", "BlockBlob").
		SetBody(data).
		Put(b.blobURL(key))
	if err != nil {
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.azure.put", err)
	}
	if resp.IsError() {
		return "", dialererr.New(dialererr.KindTransientNetwork, "recording.azure.put", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return key, nil
}

func (b *AzureBackend) Retrieve(ctx context.Context, path string) ([]byte, error) {
	resp, err := b.http.R().SetContext(ctx).Get(b.blobURL(path))
	if err != nil {
		return nil, dialererr.New(dialererr.KindTransientNetwork, "recording.azure.get", err)
	}
	if resp.StatusCode() == 404 {
		return nil, dialererr.New(dialererr.KindNotFound, "recording.azure.get", fmt.Errorf("blob not found"))
	}
	return resp.Body(), nil
}

func (b *AzureBackend) Delete(ctx context.Context, path string) error {
	resp, err := b.http.R().SetContext(ctx).Delete(b.blobURL(path))
	if err != nil {
		return dialererr.New(dialererr.KindTransientNetwork, "recording.azure.delete", err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return dialererr.New(dialererr.KindTransientNetwork, "recording.azure.delete", fmt.Errorf("status %d", resp.StatusCode()))
	}
	return nil
}

func (b *AzureBackend) URL(path string) string {
	base, _ := splitQuery(b.ContainerSASURL)
	return base + "/" + path
}
