package widget

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/cart"
	"github.com/noah-isme/printstore/internal/checkout"
	"github.com/noah-isme/printstore/internal/common"
	"github.com/noah-isme/printstore/internal/projector"
	"github.com/noah-isme/printstore/internal/ratelimit"
	"github.com/noah-isme/printstore/internal/resilience"
	"github.com/noah-isme/printstore/internal/storefront"
)

const maxUploadMemory = 32 << 20

// Handler serves the cart widget of one page session.
type Handler struct {
	Session *storefront.Session
	View    *projector.Latest
	// RefreshLimiter guards POST /cart/refresh. Nil disables the limit.
	RefreshLimiter ratelimit.Limiter
	Logger         zerolog.Logger

	validate *validator.Validate
}

// Routes mounts the widget endpoints.
func (h *Handler) Routes(r chi.Router) {
	h.validate = validator.New(validator.WithRequiredStructEnabled())
	limited := ratelimit.Handler{
		Limiter: h.RefreshLimiter,
		Key:     ratelimit.ClientIP,
		OnError: func(err error) { h.Logger.Warn().Err(err).Msg("refresh rate limiter unavailable") },
	}

	r.Route("/cart", func(c chi.Router) {
		c.Get("/summary", h.Summary)
		c.Get("/detail", h.Detail)
		c.With(limited.Middleware).Post("/refresh", h.Refresh)
		c.Post("/items/{id}", h.UpdateItem)
		c.Post("/remove/{id}", h.RemoveItem)
	})
	r.Post("/checkout/quantity", h.Quantity)
	r.Post("/checkout/process", h.ProcessCheckout)
	r.Post("/upload", h.Upload)
	r.Post("/payment", h.Pay)
}

type summaryResponse struct {
	View  projector.SummaryView `json:"view"`
	Cart  cart.Summary          `json:"cart"`
	Stale bool                  `json:"stale"`
}

type actionResponse struct {
	Location  string                `json:"location"`
	Refreshed bool                  `json:"refreshed"`
	View      projector.SummaryView `json:"view"`
}

// Summary returns the last drawn summary without contacting the storefront.
func (h *Handler) Summary(w http.ResponseWriter, _ *http.Request) {
	common.Data(w, http.StatusOK, summaryResponse{View: h.View.Summary(), Cart: h.Session.Cart.Store().Summary()})
}

// Refresh re-syncs the summary. A failed sync still answers with the
// last-known cart, flagged stale.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	_, err := h.Session.Cart.Refresh(r.Context())
	if err != nil {
		h.Logger.Warn().Err(err).Msg("cart refresh failed")
	}
	common.Data(w, http.StatusOK, summaryResponse{
		View:  h.View.Summary(),
		Cart:  h.Session.Cart.Store().Summary(),
		Stale: err != nil,
	})
}

// Detail opens the sidebar. The storefront is asked for the itemised cart
// every time.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Session.Cart.OpenDetail(r.Context()); err != nil {
		if errors.Is(err, cart.ErrEmptyCart) {
			common.JSONError(w, http.StatusConflict, "CART_EMPTY", "cart is empty")
			return
		}
		if view, ok := h.View.Detail(); ok {
			h.Logger.Warn().Err(err).Msg("detail sync failed, serving last view")
			common.JSON(w, http.StatusOK, map[string]any{"data": view, "stale": true})
			return
		}
		h.writeError(w, err)
		return
	}
	view, _ := h.View.Detail()
	common.JSON(w, http.StatusOK, map[string]any{"data": view, "stale": false})
}

// UpdateItem changes the copies of one job.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Copies int `json:"copies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
		return
	}
	if _, err := h.Session.Cart.UpdateItem(r.Context(), chi.URLParam(r, "id"), payload.Copies); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, summaryResponse{View: h.View.Summary(), Cart: h.Session.Cart.Store().Summary()})
}

// RemoveItem removes one job and refreshes.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.Session.Actions.RemoveItem(r.Context(), chi.URLParam(r, "id"))
	h.writeAction(w, res, err)
}

// Quantity evaluates the checkout quantity calculator.
func (h *Handler) Quantity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Pages  int     `json:"pages" validate:"gt=0"`
		Cost   float64 `json:"cost" validate:"gte=0"`
		Copies int     `json:"copies"`
		Delta  int     `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "pages must be positive and cost non-negative")
		return
	}
	q, err := checkout.NewQuantity(payload.Pages, payload.Cost)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if payload.Copies > 0 {
		q = q.ChangeCopies(payload.Copies - q.Copies())
	}
	common.Data(w, http.StatusOK, q.ChangeCopies(payload.Delta).Totals())
}

// ProcessCheckout submits the chosen copies per job.
func (h *Handler) ProcessCheckout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Copies map[string]int `json:"copies" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "copies are required")
		return
	}
	res, err := h.Session.Actions.ProcessCheckout(r.Context(), payload.Copies)
	h.writeAction(w, res, err)
}

// Upload forwards the multipart "file" parts to the storefront.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	files := make([]storefront.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unreadable file part")
			return
		}
		defer f.Close()
		files = append(files, storefront.File{Name: fh.Filename, Content: f})
	}
	res, err := h.Session.Actions.Upload(r.Context(), files...)
	h.writeAction(w, res, err)
}

// Pay submits the payment confirmation.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	res, err := h.Session.Actions.Pay(r.Context())
	h.writeAction(w, res, err)
}

func (h *Handler) writeAction(w http.ResponseWriter, res storefront.Result, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, actionResponse{
		Location:  res.Location,
		Refreshed: res.Refreshed,
		View:      h.View.Summary(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storefront.ErrNoFiles):
		common.JSONError(w, http.StatusBadRequest, "NO_FILES", "no files selected")
	case errors.Is(err, cart.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", strings.TrimPrefix(err.Error(), cart.ErrInvalidInput.Error()+": "))
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "STOREFRONT_UNAVAILABLE", "storefront temporarily unavailable")
	case errors.Is(err, storefront.ErrUploadFailed):
		common.WriteError(w, common.NewAppError("UPLOAD_FAILED", "upload failed, please try again", http.StatusBadGateway, err))
	case errors.Is(err, storefront.ErrActionFailed):
		common.WriteError(w, common.NewAppError("ACTION_FAILED", "storefront rejected the request", http.StatusBadGateway, err))
	default:
		h.Logger.Error().Err(err).Msg("storefront call failed")
		common.JSONError(w, http.StatusBadGateway, "SYNC_FAILED", "storefront request failed")
	}
}
