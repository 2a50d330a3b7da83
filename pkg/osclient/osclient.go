// Package osclient builds OpenSearch clients and classifies their errors.
package osclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/Zereker/storekit/pkg/errdefs"
)

// Config holds OpenSearch connection configuration
type Config struct {
	Addresses   []string `toml:"addresses"`
	Username    string   `toml:"username"`
	Password    string   `toml:"password"`
	InsecureSSL bool     `toml:"insecure_ssl"`
}

// Validate checks OpenSearch configuration
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("addresses is required")
	}
	return nil
}

// New creates an API client for cfg.
func New(cfg Config) (*opensearchapi.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}
	return client, nil
}

// Inspector is implemented by every opensearchapi response type.
type Inspector interface {
	Inspect() opensearchapi.Inspect
}

// StatusCode returns the HTTP status of resp, 0 when no response was received.
func StatusCode[T any, P interface {
	*T
	Inspector
}](resp P) int {
	if resp == nil {
		return 0
	}
	if r := resp.Inspect().Response; r != nil {
		return r.StatusCode
	}
	return 0
}

// Classify maps a failed call onto the error taxonomy.
// 400-class responses other than auth failures are treated as malformed requests.
func Classify(err error, status int, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", op, errors.Join(errdefs.ErrQuery, err))
	default:
		return errdefs.Unavailable(err, op)
	}
}

// IsAlreadyExists reports whether err is an index-creation conflict.
func IsAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource_already_exists_exception")
}
