package bidding

// Kind describes the outcome of a bid placement. For accepted bids it tells
// the caller why the visible price did or did not move; for rejected bids it
// names the specific reason, so the presentation layer can map each value to
// a user-facing message.
type Kind string

const (
	// KindNone: the bid was accepted and the caller leads with a fresh
	// visible bid.
	KindNone Kind = "none"
	// KindBiddingNotAvailable: the advertisement has no auction component.
	KindBiddingNotAvailable Kind = "bidding_not_available"
	// KindBidTooLow: the ceiling does not clear the minimum next bid.
	KindBidTooLow Kind = "bid_too_low"
	// KindAlreadyLeading: the caller raised their own leading ceiling; the
	// visible price is unchanged.
	KindAlreadyLeading Kind = "already_leading"
	// KindCounteredViaMaxBid: the bid was accepted but the leader's stored
	// ceiling immediately counter-bid above it.
	KindCounteredViaMaxBid Kind = "countered_via_max_bid"
	// KindMaxBidPlacedFirst: the bid ties the leader's ceiling exactly and
	// the leader placed theirs first, so they keep the lead.
	KindMaxBidPlacedFirst Kind = "max_bid_placed_first"
	// KindSameAsPrevious: the caller re-submitted their current ceiling.
	KindSameAsPrevious Kind = "same_as_previous"
	// KindNotAuthenticated is set by the transport layer when no bidder
	// identity is present. Never produced here.
	KindNotAuthenticated Kind = "not_authenticated"
	// KindUnknown is set by the transport layer on infrastructure failure.
	// Never produced here.
	KindUnknown Kind = "unknown_error"
)

// Result is the business outcome of a bid placement. Success true means the
// ceiling was stored; the Kind then says which visible bids were emitted.
// Success false means nothing changed.
type Result struct {
	Success bool `json:"success"`
	Kind    Kind `json:"kind"`
}

func accepted(k Kind) Result { return Result{Success: true, Kind: k} }
func rejected(k Kind) Result { return Result{Success: false, Kind: k} }
