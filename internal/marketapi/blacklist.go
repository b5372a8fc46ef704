package marketapi

import "context"

// BlacklistTransport is the single-attempt blacklist surface: not part of
// the core state machine's MarketAPI (§4.1's table has no blacklist
// entry), but exercised by the operator's amnesty escape hatch (§12).
type BlacklistTransport interface {
	BlacklistList(ctx context.Context) ([]string, error)
	BlacklistRemove(ctx context.Context, address string) error
}

// BlacklistAPI is a thin best-effort wrapper over BlacklistTransport,
// mirroring the nil/empty-on-failure convention Client uses for the core
// MarketAPI surface. It shares no state with Client; amnesty runs
// standalone, outside any node's own lifecycle.
type BlacklistAPI struct {
	transport BlacklistTransport
}

// NewBlacklistAPI builds a BlacklistAPI over t.
func NewBlacklistAPI(t BlacklistTransport) *BlacklistAPI {
	return &BlacklistAPI{transport: t}
}

// List returns every currently blacklisted worker address, or nil if the
// call fails.
func (b *BlacklistAPI) List(ctx context.Context) ([]string, bool) {
	addrs, err := b.transport.BlacklistList(ctx)
	if err != nil {
		return nil, false
	}
	return addrs, true
}

// Remove clears one address from the blacklist.
func (b *BlacklistAPI) Remove(ctx context.Context, address string) bool {
	return b.transport.BlacklistRemove(ctx, address) == nil
}
