package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mcfe/galaxyflow/pkg/config"
	"github.com/mcfe/galaxyflow/pkg/galaxy"
	"github.com/mcfe/galaxyflow/pkg/models"
)

const probeTimeout = 10 * time.Second

// ClientFactory builds an API client for one server address and key.
type ClientFactory func(address, key string) (galaxy.API, error)

// Connector turns a credential into a validated API client.
type Connector struct {
	logger  *slog.Logger
	factory ClientFactory
}

type ConnectorOption func(*Connector)

func WithClientFactory(factory ClientFactory) ConnectorOption {
	return func(c *Connector) {
		c.factory = factory
	}
}

func NewConnector(logger *slog.Logger, cfg config.Client, opts ...ConnectorOption) *Connector {
	connector := &Connector{
		logger: logger.With("module", "connector"),
		factory: func(address, key string) (galaxy.API, error) {
			return galaxy.NewClient(address, key, galaxy.WithTimeout(cfg.RequestTimeout))
		},
	}

	for _, opt := range opts {
		opt(connector)
	}

	return connector
}

// Connect resolves the server address and proves the key with an
// authenticated workflow listing. Addresses without a scheme are probed over
// https first, then http, with the unauthenticated version endpoint.
func (c *Connector) Connect(ctx context.Context, credential models.Credential) (galaxy.API, error) {
	const op = "connect"

	address := strings.TrimSpace(credential.Address)
	if address == "" {
		return nil, newError(ErrConnectivity, op, "server address is empty", nil)
	}

	if credential.Key == "" {
		return nil, newError(ErrAuth, op, "API key is empty", nil)
	}

	address, err := c.resolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	api, err := c.factory(address, credential.Key)
	if err != nil {
		return nil, newError(ErrConnectivity, op, "", err)
	}

	_, err = api.ListWorkflows(ctx)
	if err != nil {
		var apiErr *galaxy.APIError
		if errors.As(err, &apiErr) {
			return nil, newError(ErrAuth, op, "", err)
		}

		if ctx.Err() != nil {
			return nil, newError(ErrCancelled, op, "", err)
		}

		return nil, newError(ErrConnectivity, op, "", err)
	}

	return api, nil
}

func (c *Connector) resolveAddress(ctx context.Context, address string) (string, error) {
	const op = "connect"

	if strings.Contains(address, "://") {
		_, err := galaxy.ParseAddress(address)
		if err != nil {
			return "", newError(ErrConnectivity, op, "", err)
		}

		return address, nil
	}

	var lastErr error

	for _, scheme := range []string{"https://", "http://"} {
		candidate := scheme + address

		_, err := galaxy.ParseAddress(candidate)
		if err != nil {
			return "", newError(ErrConnectivity, op, "", err)
		}

		err = c.probe(ctx, candidate)
		if err == nil {
			c.logger.Debug("Resolved server address", "address", candidate)

			return candidate, nil
		}

		lastErr = err
	}

	return "", newError(ErrConnectivity, op, "no http(s) endpoint answered", lastErr)
}

func (c *Connector) probe(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	api, err := c.factory(address, "")
	if err != nil {
		return err
	}

	_, err = api.Version(ctx)

	return err
}

// Validate reports whether the credential can be used, logging the reason
// when it cannot.
func (c *Connector) Validate(ctx context.Context, credential models.Credential) bool {
	_, err := c.Connect(ctx, credential)
	if err != nil {
		c.logger.Error("Server or API key is not valid", "server", credential.Address, "error", err)

		return false
	}

	return true
}
