package authprovider

import "context"

// NoneProvider attaches no credentials at all.
type NoneProvider struct{}

func NewNoneProvider() *NoneProvider { return &NoneProvider{} }

func (NoneProvider) GetHeaders(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (NoneProvider) IsValid(context.Context) bool { return true }

func (NoneProvider) Refresh(context.Context) error { return nil }
