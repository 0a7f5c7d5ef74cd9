package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quackform/vibes/internal/api/response"
	"github.com/quackform/vibes/internal/api/validation"
	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/vibeerrors"
)

// defaultSearchTopK is used when a search request omits topK.
const defaultSearchTopK = 5

// VibesService defines the operations the vibes API exposes.
type VibesService interface {
	StoreVibe(ctx context.Context, uid, raw string) (models.Vibe, error)
	SearchVibes(ctx context.Context, rawQuery string, topK int) ([]models.SearchResult, error)
	GetVibe(ctx context.Context, uid string) (*models.Vibe, error)
	ListVibes(ctx context.Context, limit int) ([]models.Vibe, error)
	ProvisionPlaceholderVibe(ctx context.Context, profile models.Profile) (models.Vibe, bool, error)
}

// VibesHandler handles HTTP requests for vibes.
type VibesHandler struct {
	service VibesService
}

// NewVibesHandler creates a new vibes handler.
func NewVibesHandler(service VibesService) *VibesHandler {
	return &VibesHandler{service: service}
}

// CreateVibeRequest is the body for POST /v1/vibes.
type CreateVibeRequest struct {
	UID      string `json:"uid"      validate:"no_null_bytes"`
	VibeText string `json:"vibeText" validate:"no_null_bytes"` //nolint:tagliatelle // API contract
}

// SearchVibesRequest is the body for POST /v1/vibes/search. TopK defaults to 5.
type SearchVibesRequest struct {
	Query string `json:"query" validate:"no_null_bytes"`
	TopK  *int   `json:"topK"` //nolint:tagliatelle // API contract
}

// ListVibesParams is the query string of GET /v1/vibes. Limit 0 means the service default.
type ListVibesParams struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=1000"`
}

// VibeResponse is one stored vibe. The embedding is never returned.
type VibeResponse struct {
	UID            string     `json:"uid"`
	OriginalVibe   string     `json:"originalVibe"`   //nolint:tagliatelle // API contract
	ProcessedVibe  string     `json:"processedVibe"`  //nolint:tagliatelle // API contract
	EmbeddingModel string     `json:"embeddingModel"` //nolint:tagliatelle // API contract
	CreatedAt      *time.Time `json:"createdAt,omitempty"` //nolint:tagliatelle // API contract
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"` //nolint:tagliatelle // API contract
}

// SearchResultItem is one ranked match with its score breakdown.
type SearchResultItem struct {
	VibeResponse

	Distance       float64  `json:"distance"`
	Similarity     float64  `json:"similarity"`
	LexicalOverlap float64  `json:"lexicalOverlap"` //nolint:tagliatelle // API contract
	RecencyDecay   float64  `json:"recencyDecay"`   //nolint:tagliatelle // API contract
	FinalScore     float64  `json:"finalScore"`     //nolint:tagliatelle // API contract
	FormattedScore string   `json:"formattedScore"` //nolint:tagliatelle // API contract
	OverlapTerms   []string `json:"overlapTerms"`   //nolint:tagliatelle // API contract
}

// SearchVibesResponse is the response for POST /v1/vibes/search.
type SearchVibesResponse struct {
	Results []SearchResultItem `json:"results"`
}

// ListVibesResponse is the response for GET /v1/vibes.
type ListVibesResponse struct {
	Data []VibeResponse `json:"data"`
}

// List handles GET /v1/vibes?limit=.
func (h *VibesHandler) List(w http.ResponseWriter, r *http.Request) {
	var params ListVibesParams
	if err := validation.DecodeQuery(r, &params); err != nil {
		validation.RespondValidationError(w, validation.InQuery, err)

		return
	}

	vibes, err := h.service.ListVibes(r.Context(), params.Limit)
	if err != nil {
		respondServiceError(w, r, err, "List vibes failed")

		return
	}

	items := make([]VibeResponse, len(vibes))
	for i := range vibes {
		items[i] = toVibeResponse(vibes[i])
	}

	response.RespondJSON(w, http.StatusOK, ListVibesResponse{Data: items})
}

// Get handles GET /v1/vibes/{uid}.
func (h *VibesHandler) Get(w http.ResponseWriter, r *http.Request) {
	vibe, err := h.service.GetVibe(r.Context(), r.PathValue("uid"))
	if err != nil {
		respondServiceError(w, r, err, "Get vibe failed")

		return
	}

	response.RespondData(w, http.StatusOK, toVibeResponse(*vibe))
}

// Create handles POST /v1/vibes. It inserts or replaces the caller's vibe.
func (h *VibesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVibeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vibe, err := h.service.StoreVibe(r.Context(), req.UID, req.VibeText)
	if err != nil {
		respondServiceError(w, r, err, "Store vibe failed")

		return
	}

	response.RespondData(w, http.StatusOK, toVibeResponse(vibe))
}

// Search handles POST /v1/vibes/search.
func (h *VibesHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchVibesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	topK := defaultSearchTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	results, err := h.service.SearchVibes(r.Context(), req.Query, topK)
	if err != nil {
		respondServiceError(w, r, err, "Search failed")

		return
	}

	items := make([]SearchResultItem, len(results))
	for i := range results {
		items[i] = toSearchResultItem(results[i])
	}

	response.RespondJSON(w, http.StatusOK, SearchVibesResponse{Results: items})
}

// Placeholder handles POST /v1/vibes/placeholder. It answers 201 when a vibe was written, 200 when the
// profile already had one and 400 when the profile has neither login nor email.
func (h *VibesHandler) Placeholder(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if !decodeBody(w, r, &profile) {
		return
	}

	vibe, created, err := h.service.ProvisionPlaceholderVibe(r.Context(), profile)
	if err != nil {
		respondServiceError(w, r, err, "Provision placeholder vibe failed")

		return
	}

	if vibe.UID == "" {
		response.RespondValidationError(w, "body.intraLogin", "profile needs an intraLogin or email", nil)

		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	response.RespondData(w, status, toVibeResponse(vibe))
}

// decodeBody decodes a JSON body into dst and validates it, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return false
	}

	if err := validation.ValidateStruct(dst); err != nil {
		validation.RespondValidationError(w, validation.InBody, err)

		return false
	}

	return true
}

// respondServiceError maps typed service errors to problem responses. Store failures are 500 and
// never rendered as an empty result.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	var validationErr *vibeerrors.ValidationError

	switch {
	case errors.As(err, &validationErr):
		response.RespondValidationError(w, validationErr.Field, validationErr.Error(), nil)
	case errors.Is(err, vibeerrors.ErrNormalization), errors.Is(err, vibeerrors.ErrEmbedding):
		response.RespondBadRequest(w, err.Error())
	case errors.Is(err, vibeerrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), failure, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, failure)
	}
}

func toVibeResponse(v models.Vibe) VibeResponse {
	return VibeResponse{
		UID:            v.UID,
		OriginalVibe:   v.OriginalText,
		ProcessedVibe:  v.NormalizedText,
		EmbeddingModel: v.EmbeddingModel,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func toSearchResultItem(r models.SearchResult) SearchResultItem {
	terms := r.OverlapTerms
	if terms == nil {
		terms = []string{}
	}

	return SearchResultItem{
		VibeResponse:   toVibeResponse(r.Vibe),
		Distance:       r.Distance,
		Similarity:     r.Similarity,
		LexicalOverlap: r.LexicalOverlap,
		RecencyDecay:   r.RecencyDecay,
		FinalScore:     r.FinalScore,
		FormattedScore: r.FormattedScore(),
		OverlapTerms:   terms,
	}
}
