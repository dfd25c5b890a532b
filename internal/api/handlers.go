package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/services/auth"
	"github.com/IlyasAtabaev731/shopper/internal/services/cart"
	"github.com/IlyasAtabaev731/shopper/internal/services/catalog"
	"github.com/IlyasAtabaev731/shopper/internal/storage/images"
)

const uploadField = "product"

type ErrorResponse struct {
	Success bool   `json:"success"`
	Errors  string `json:"errors"`
}

type tokenErrorResponse struct {
	Errors string `json:"errors"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type RelatedRequest struct {
	Category string `json:"category"`
}

type AddProductResponse struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

type UploadResponse struct {
	Success  int    `json:"success"`
	ImageURL string `json:"image_url"`
}

type CartRequest struct {
	ItemID *itemID `json:"itemId"`
}

// itemID accepts both 5 and "5".
type itemID int

func (id *itemID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("itemId must be an integer: %w", err)
	}
	*id = itemID(n)
	return nil
}

func (s *APIServer) signupHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Errors: "Invalid request body"})
			return
		}

		token, err := s.services.Auth.Signup(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, TokenResponse{Success: true, Token: token})
	}
}

func (s *APIServer) loginHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Errors: "Invalid request body"})
			return
		}

		token, err := s.services.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, TokenResponse{Success: true, Token: token})
	}
}

func (s *APIServer) allProductsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := s.services.Catalog.ListProducts(r.Context(), "")
		s.writeProducts(w, r, products, err)
	}
}

func (s *APIServer) newCollectionsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := s.services.Catalog.NewCollections(r.Context())
		s.writeProducts(w, r, products, err)
	}
}

func (s *APIServer) popularInWomenHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := s.services.Catalog.PopularInWomen(r.Context())
		s.writeProducts(w, r, products, err)
	}
}

func (s *APIServer) relatedProductsHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RelatedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Errors: "Invalid request body"})
			return
		}

		products, err := s.services.Catalog.Related(r.Context(), req.Category)
		s.writeProducts(w, r, products, err)
	}
}

func (s *APIServer) writeProducts(w http.ResponseWriter, r *http.Request, products []models.Product, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *APIServer) addProductHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var p models.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Errors: "Invalid request body"})
			return
		}

		saved, err := s.services.Catalog.AddProduct(r.Context(), p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AddProductResponse{Success: true, Name: saved.Name})
	}
}

func (s *APIServer) uploadHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Images.MaxUploadSize)

		file, header, err := r.FormFile(uploadField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Errors: "File too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Errors: "Missing file field " + uploadField})
			return
		}
		defer file.Close()

		name := images.NewName(uploadField, header.Filename, time.Now())
		url, err := s.services.Images.Save(r.Context(), name, file, header.Size, header.Header.Get("Content-Type"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.Info("Image uploaded", slog.String("name", name))

		writeJSON(w, http.StatusOK, UploadResponse{Success: 1, ImageURL: url})
	}
}

func (s *APIServer) addToCartHandler() func(http.ResponseWriter, *http.Request) {
	return s.cartUpdateHandler(s.services.Cart.Increment, "Added")
}

func (s *APIServer) removeFromCartHandler() func(http.ResponseWriter, *http.Request) {
	return s.cartUpdateHandler(s.services.Cart.Decrement, "Removed")
}

type cartUpdate func(ctx context.Context, userID string, slot int) error

func (s *APIServer) cartUpdateHandler(update cartUpdate, reply string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Errors: "itemId is required"})
			return
		}

		userID := userIDFromContext(r.Context())
		if err := update(r.Context(), userID, int(*req.ItemID)); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.Debug(reply, slog.String("user", userID), slog.Int("item", int(*req.ItemID)))

		writeText(w, http.StatusOK, reply)
	}
}

func (s *APIServer) getCartHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.services.Cart.Read(r.Context(), userIDFromContext(r.Context()))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "Internal error"

	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		status, msg = http.StatusBadRequest, "Email already used"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msg = http.StatusBadRequest, "Invalid credentials"
	case errors.Is(err, auth.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Email and password are required"
	case errors.Is(err, cart.ErrInvalidSlot):
		status, msg = http.StatusBadRequest, "Invalid itemId"
	case errors.Is(err, catalog.ErrInvalidProduct):
		status, msg = http.StatusBadRequest, "Missing required product fields"
	case errors.Is(err, images.ErrInvalidName):
		status, msg = http.StatusBadRequest, "Invalid file name"
	case errors.Is(err, cart.ErrUserNotFound):
		status, msg = http.StatusNotFound, "User not found"
	default:
		s.logger.Error("Request failed", slog.String("path", r.URL.Path), "error", err)
	}

	writeJSON(w, status, ErrorResponse{Success: false, Errors: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
