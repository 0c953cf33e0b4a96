package gatewaylist

import "context"

// StaticProvider returns a fixed list configured at construction, for the
// common case of a small, rarely changing gateway fleet.
type StaticProvider struct {
	addrs []string
}

// NewStatic returns a Provider over a fixed, caller-supplied address list.
func NewStatic(addrs []string) *StaticProvider {
	cp := append([]string(nil), addrs...)
	return &StaticProvider{addrs: cp}
}

// Gateways returns the fixed address list; ctx is ignored since resolution
// never blocks.
func (s *StaticProvider) Gateways(ctx context.Context) ([]string, error) {
	return s.addrs, nil
}
