package api

import "github.com/jacobwinther/auctionsite/internal/bidding"

// userMessage maps each bid outcome to the Swedish text shown to the bidder.
// The outcome enum stays language-neutral; only this presentation layer knows
// about wording.
var userMessages = map[bidding.Kind]string{
	bidding.KindNone:                "Du leder budgivningen!",
	bidding.KindAlreadyLeading:      "Du har höjt ditt maxbud och leder fortfarande.",
	bidding.KindCounteredViaMaxBid:  "Du blev överbjuden av en annan budgivares maxbud.",
	bidding.KindMaxBidPlacedFirst:   "En annan budgivare lade samma maxbud före dig och behåller ledningen.",
	bidding.KindBidTooLow:           "Ditt bud är för lågt.",
	bidding.KindBiddingNotAvailable: "Den här annonsen går inte att lägga bud på.",
	bidding.KindSameAsPrevious:      "Du har redan lagt det här maxbudet.",
	bidding.KindNotAuthenticated:    "Du måste vara inloggad för att lägga bud.",
	bidding.KindUnknown:             "Något gick fel. Försök igen.",
}

func userMessage(kind bidding.Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[bidding.KindUnknown]
}
