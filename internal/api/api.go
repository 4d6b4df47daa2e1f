// Package api exposes the bidding engine over HTTP. The bidder's identity
// arrives in the X-User-ID header, set by the upstream auth layer; the API
// never resolves identity on its own.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/jacobwinther/auctionsite/internal/bidding"
	"github.com/jacobwinther/auctionsite/internal/live"
	"github.com/jacobwinther/auctionsite/internal/notify"
	"github.com/jacobwinther/auctionsite/internal/store"
)

// userIDHeader carries the authenticated user id from the upstream proxy.
const userIDHeader = "X-User-ID"

// Handler wires the HTTP routes to the bidding, notification and live
// update services.
type Handler struct {
	bids          *bidding.Service
	ads           store.AdvertisementRepository
	notifications *notify.Service
	inbox         notify.Store
	publisher     live.Publisher
	hub           *live.Hub
	logger        *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	bids *bidding.Service,
	ads store.AdvertisementRepository,
	notifications *notify.Service,
	inbox notify.Store,
	publisher live.Publisher,
	hub *live.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		bids:          bids,
		ads:           ads,
		notifications: notifications,
		inbox:         inbox,
		publisher:     publisher,
		hub:           hub,
		logger:        logger,
	}
}

// Register mounts all API routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/ads", h.createAdvertisement).Methods(http.MethodPost)
	r.HandleFunc("/api/ads/{id:[0-9]+}", h.getAdvertisement).Methods(http.MethodGet)
	r.HandleFunc("/api/ads/{id:[0-9]+}/bids", h.placeBid).Methods(http.MethodPost)
	r.HandleFunc("/api/ads/{id:[0-9]+}/bids", h.getHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/ads/{id:[0-9]+}/summary", h.getSummary).Methods(http.MethodGet)
	r.HandleFunc("/api/ads/{id:[0-9]+}/max-bid", h.getOwnMaxBid).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications", h.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)
	r.HandleFunc("/ws/ads/{id:[0-9]+}", h.watchAdvertisement).Methods(http.MethodGet)
}

func advertisementID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

type placeBidRequest struct {
	MaxAmount decimal.Decimal `json:"max_amount"`
}

type placeBidResponse struct {
	bidding.Result
	Message string           `json:"message"`
	Summary *bidding.Summary `json:"summary,omitempty"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, placeBidResponse{
			Result:  bidding.Result{Kind: bidding.KindNotAuthenticated},
			Message: userMessage(bidding.KindNotAuthenticated),
		})
		return
	}

	adID, err := advertisementID(r)
	if err != nil {
		http.Error(w, "invalid advertisement id", http.StatusBadRequest)
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MaxAmount.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusOK, placeBidResponse{
			Result:  bidding.Result{Kind: bidding.KindBidTooLow},
			Message: userMessage(bidding.KindBidTooLow),
		})
		return
	}

	// The leader before this placement decides whether the post-commit
	// notifications fire at all.
	prevLeader, err := h.bids.LeadingBidderID(ctx, adID)
	if err != nil {
		h.logger.ErrorContext(ctx, "loading leading bidder before bid", slog.String("error", err.Error()))
	}

	res, err := h.bids.PlaceMaxBid(ctx, adID, userID, req.MaxAmount)
	if err != nil {
		if errors.Is(err, store.ErrAdvertisementNotFound) {
			http.Error(w, "advertisement not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "placing bid failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, placeBidResponse{
			Result:  res,
			Message: userMessage(bidding.KindUnknown),
		})
		return
	}

	resp := placeBidResponse{Result: res, Message: userMessage(res.Kind)}
	if res.Success {
		if summary := h.afterPlacement(r, adID, userID, prevLeader, res); summary != nil {
			resp.Summary = summary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// afterPlacement runs the post-commit side effects of an accepted bid:
// notifying outbid bidders and the advertiser, and publishing the live
// update. Notifications fire only when the placement changed the leading
// bidder; a ceiling raise by the current leader or a countered challenge
// leaves inboxes alone. Failures here are logged, never surfaced to the
// bidder whose placement already committed.
func (h *Handler) afterPlacement(r *http.Request, adID int64, bidderID, prevLeader string, res bidding.Result) *bidding.Summary {
	ctx := r.Context()

	summary, err := h.bids.Summary(ctx, adID)
	if err != nil {
		h.logger.ErrorContext(ctx, "loading summary after bid", slog.String("error", err.Error()))
		return nil
	}
	ad, err := h.ads.GetByID(ctx, adID)
	if err != nil {
		h.logger.ErrorContext(ctx, "loading advertisement after bid", slog.String("error", err.Error()))
		return &summary
	}

	if summary.LeadingBidderID != "" && summary.LeadingBidderID != prevLeader {
		outbid, err := h.bids.OutbidUserIDs(ctx, adID)
		if err != nil {
			h.logger.ErrorContext(ctx, "loading outbid users", slog.String("error", err.Error()))
		} else if err := h.notifications.NotifyOutbid(ctx, adID, ad.Title,
			summary.CurrentHighestBid, outbid, summary.LeadingBidderID); err != nil {
			h.logger.ErrorContext(ctx, "notifying outbid users", slog.String("error", err.Error()))
		}

		// Advertisers bidding on their own listing get no notice.
		if ad.AdvertiserID != bidderID {
			if err := h.notifications.NotifyNewLeadingBid(ctx, adID, ad.Title,
				summary.CurrentHighestBid, ad.AdvertiserID); err != nil {
				h.logger.ErrorContext(ctx, "notifying advertiser", slog.String("error", err.Error()))
			}
		}
	}

	update := live.Update{
		AdvertisementID:   adID,
		CurrentHighestBid: summary.CurrentHighestBid.String(),
		MinimumNextBid:    summary.MinimumNextBid.String(),
		BidCount:          summary.BidCount,
		LeadingBidderID:   summary.LeadingBidderID,
		Outcome:           string(res.Kind),
		PlacedAt:          time.Now().UTC(),
	}
	if err := h.publisher.PublishBidUpdate(ctx, update); err != nil {
		h.logger.ErrorContext(ctx, "publishing bid update", slog.String("error", err.Error()))
	}
	return &summary
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	adID, err := advertisementID(r)
	if err != nil {
		http.Error(w, "invalid advertisement id", http.StatusBadRequest)
		return
	}
	entries, err := h.bids.History(r.Context(), adID)
	if err != nil {
		if errors.Is(err, store.ErrAdvertisementNotFound) {
			http.Error(w, "advertisement not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "loading bid history", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	adID, err := advertisementID(r)
	if err != nil {
		http.Error(w, "invalid advertisement id", http.StatusBadRequest)
		return
	}
	summary, err := h.bids.Summary(r.Context(), adID)
	if err != nil {
		if errors.Is(err, store.ErrAdvertisementNotFound) {
			http.Error(w, "advertisement not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "loading summary", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type ownMaxBidResponse struct {
	MaxAmount *decimal.Decimal `json:"max_amount"`
	IsOutbid  bool             `json:"is_outbid"`
}

func (h *Handler) getOwnMaxBid(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	adID, err := advertisementID(r)
	if err != nil {
		http.Error(w, "invalid advertisement id", http.StatusBadRequest)
		return
	}

	mb, err := h.bids.UserMaxBid(r.Context(), adID, userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "loading own max bid", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	outbid, err := h.bids.IsOutbid(r.Context(), adID, userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "checking outbid state", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := ownMaxBidResponse{IsOutbid: outbid}
	if mb != nil {
		resp.MaxAmount = &mb.Amount
	}
	writeJSON(w, http.StatusOK, resp)
}

type createAdvertisementRequest struct {
	Title          string           `json:"title"`
	StartingPrice  *decimal.Decimal `json:"starting_price"`
	BuyNowPrice    *decimal.Decimal `json:"buy_now_price"`
	AuctionEndDate *time.Time       `json:"auction_end_date"`
}

func (h *Handler) createAdvertisement(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req createAdvertisementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	ad := &store.Advertisement{
		Title:          req.Title,
		AdvertiserID:   userID,
		StartingPrice:  req.StartingPrice,
		BuyNowPrice:    req.BuyNowPrice,
		AuctionEndDate: req.AuctionEndDate,
	}
	if err := h.ads.Create(r.Context(), ad); err != nil {
		h.logger.ErrorContext(r.Context(), "creating advertisement", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, ad)
}

func (h *Handler) getAdvertisement(w http.ResponseWriter, r *http.Request) {
	adID, err := advertisementID(r)
	if err != nil {
		http.Error(w, "invalid advertisement id", http.StatusBadRequest)
		return
	}
	ad, err := h.ads.GetByID(r.Context(), adID)
	if err != nil {
		if errors.Is(err, store.ErrAdvertisementNotFound) {
			http.Error(w, "advertisement not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(r.Context(), "loading advertisement", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ad)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	notifications, err := h.inbox.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing notifications", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	if err := h.inbox.MarkRead(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		h.logger.ErrorContext(r.Context(), "marking notification read", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) watchAdvertisement(w http.ResponseWriter, r *http.Request) {
	adID, err := advertisementID(r)
	if err != nil {
		http.Error(w, "invalid advertisement id", http.StatusBadRequest)
		return
	}
	if err := h.hub.ServeWS(w, r, adID); err != nil {
		h.logger.ErrorContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
