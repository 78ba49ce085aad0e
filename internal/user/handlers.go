package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/store"
)

// Handler serves the profile and delivery address endpoints. All routes
// require an authenticated user.
type Handler struct {
	Users   *store.UserRepo
	Uploads *store.UploadRepo
}

// Routes mounts the user routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me", h.me)
	r.Post("/me/claim-session", h.claimSession)
	r.Route("/me/addresses", func(a chi.Router) {
		a.Get("/", h.listAddresses)
		a.Post("/", h.createAddress)
		a.Delete("/{addressID}", h.deleteAddress)
	})
}

// AddressView is the client representation of a delivery address.
type AddressView struct {
	ID         uuid.UUID `json:"id"`
	Receiver   string    `json:"receiver"`
	Street     string    `json:"street"`
	PostalCode string    `json:"postalCode"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"isDefault"`
}

func toAddressView(a store.Address) AddressView {
	return AddressView{
		ID:         a.ID,
		Receiver:   a.Receiver,
		Street:     a.Street,
		PostalCode: a.PostalCode,
		City:       a.City,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
	}
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
		return
	}
	user, err := h.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "user not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"name":        user.Name,
		"resellerBps": user.ResellerBps,
		"roles":       user.Roles,
	})
}

// claimSession attaches the guest session's uploads to the signed-in user.
// The cart merge endpoint handles the cart side.
func (h *Handler) claimSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
		return
	}
	anonID, ok := common.AnonID(r.Context())
	if !ok {
		common.JSON(w, http.StatusOK, map[string]any{"claimedUploads": 0})
		return
	}
	claimed, err := h.Uploads.ClaimForUser(r.Context(), anonID, userID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"claimedUploads": claimed})
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
		return
	}
	addresses, err := h.Users.ListAddresses(r.Context(), userID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]AddressView, 0, len(addresses))
	for _, a := range addresses {
		views = append(views, toAddressView(a))
	}
	common.JSON(w, http.StatusOK, map[string]any{"addresses": views})
}

type addressPayload struct {
	Receiver   string `json:"receiver" validate:"required,max=200"`
	Street     string `json:"street" validate:"required,max=200"`
	PostalCode string `json:"postalCode" validate:"required,max=10"`
	City       string `json:"city" validate:"required,max=100"`
	Country    string `json:"country" validate:"required,len=2"`
	IsDefault  bool   `json:"isDefault"`
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
		return
	}
	var payload addressPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RenderError(w, err)
		return
	}
	created, err := h.Users.CreateAddress(r.Context(), store.Address{
		UserID:     userID,
		Receiver:   payload.Receiver,
		Street:     payload.Street,
		PostalCode: payload.PostalCode,
		City:       payload.City,
		Country:    payload.Country,
		IsDefault:  payload.IsDefault,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toAddressView(created))
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "login required", nil)
		return
	}
	addressID, err := uuid.Parse(chi.URLParam(r, "addressID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid address id", nil)
		return
	}
	if err := h.Users.DeleteAddress(r.Context(), addressID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "address not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}
