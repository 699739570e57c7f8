package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/vaidashi/storefront-api/internal/checkout"
	"github.com/vaidashi/storefront-api/internal/models"
	"github.com/vaidashi/storefront-api/internal/service"
)

// multipart overhead allowed on top of the image size limit
const formOverhead = 1 << 20

// getProductsHandler lists products, optionally filtered by ?category= and ?q=
func (s *Server) getProductsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	products, err := s.services.Catalog.FilterProducts(r.Context(), q.Get("category"), q.Get("q"))
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, products)
}

func (s *Server) getProductByIDHandler(w http.ResponseWriter, r *http.Request) {
	product, err := s.services.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, product)
}

// createProductHandler accepts a multipart form with an optional "image" file
func (s *Server) createProductHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Uploads.MaxBytes+formOverhead)

	if err := r.ParseMultipartForm(s.config.Uploads.MaxBytes + formOverhead); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil {
		s.respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Please fill in all required fields",
			Fields: []checkout.FieldError{{Field: "price", Rule: "number", Message: "price must be a number"}},
		})
		return
	}

	draft := models.ProductDraft{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Price:       price,
		Category:    strings.TrimSpace(r.FormValue("category")),
		Subcategory: strings.TrimSpace(r.FormValue("subcategory")),
		Specs:       r.FormValue("specs"),
	}

	if v := checkout.Validate(draft); !v.Valid {
		s.respondWithValidation(w, v)
		return
	}

	var image *service.Image

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image = &service.Image{Filename: header.Filename, Content: file}
	case errors.Is(err, http.ErrMissingFile):
	default:
		s.respondWithError(w, http.StatusBadRequest, "Invalid image upload")
		return
	}

	product, err := s.services.Catalog.CreateProduct(r.Context(), draft, image)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, product)
}

// deleteProductHandler removes a product and its image
func (s *Server) deleteProductHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Item and image deleted successfully!"})
}
