package spclient

import (
	"context"

	"golang.org/x/oauth2"

	"spsync/domain/contracts"
	syncdomain "spsync/domain/sync"
	"spsync/infrastructure/config"
	"spsync/logging"
)

// TokenSourceFunc exchanges an organisation's stored credential for an
// oauth2 token source. The credential blob itself is opaque to the
// connector; decryption and refresh live behind this function.
type TokenSourceFunc func(ctx context.Context, org *syncdomain.Organisation) (oauth2.TokenSource, error)

// StaticTokenSource treats the stored credential as a bearer token
// directly. Deployments with an external token-refresh flow inject their
// own TokenSourceFunc instead.
func StaticTokenSource(_ context.Context, org *syncdomain.Organisation) (oauth2.TokenSource, error) {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: org.Token}), nil
}

// Factory builds per-organisation provider clients.
type Factory struct {
	cfg         *config.ProviderConfig
	tokenSource TokenSourceFunc
	logger      *logging.Logger
}

// NewFactory creates a provider client factory. A nil tokenSource falls
// back to StaticTokenSource.
func NewFactory(cfg *config.ProviderConfig, tokenSource TokenSourceFunc, logger *logging.Logger) *Factory {
	if tokenSource == nil {
		tokenSource = StaticTokenSource
	}
	return &Factory{cfg: cfg, tokenSource: tokenSource, logger: logger}
}

var _ contracts.ProviderClientFactory = (*Factory)(nil)

// ForOrganisation returns a client authenticated as the organisation.
func (f *Factory) ForOrganisation(ctx context.Context, org *syncdomain.Organisation) (contracts.ProviderClient, error) {
	ts, err := f.tokenSource(ctx, org)
	if err != nil {
		return nil, err
	}
	return New(f.cfg, oauth2.NewClient(ctx, ts), f.logger.WithOrg(org.ID)), nil
}
