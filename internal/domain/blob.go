package domain

import (
	"context"
	"io"
)

// BlobWriter stores round archives. PutObject is for small documents held
// in memory; Upload streams a body of unknown length.
type BlobWriter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}
