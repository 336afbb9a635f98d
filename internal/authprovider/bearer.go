package authprovider

import "context"

// BearerProvider attaches a single static bearer token taken from config.
type BearerProvider struct {
	token string
}

func NewBearerProvider(token string) *BearerProvider {
	return &BearerProvider{token: token}
}

func (p *BearerProvider) GetHeaders(context.Context) (map[string]string, error) {
	return map[string]string{"Authorization": "Bearer " + p.token}, nil
}

func (p *BearerProvider) IsValid(context.Context) bool { return p.token != "" }

func (p *BearerProvider) Refresh(context.Context) error { return nil }
