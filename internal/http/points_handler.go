package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ecopoints/internal/auth"
	"ecopoints/internal/exporter"
	"ecopoints/internal/importer"
	"ecopoints/internal/materials"
	"ecopoints/internal/points"
)

// PointsHandler serves the session-protected account endpoints.
type PointsHandler struct {
	points   *points.Service
	exporter *exporter.CSVExporter
	importer *importer.CSVImporter
	validate *validator.Validate
	logger   *slog.Logger
}

func NewPointsHandler(svc *points.Service, imp *importer.CSVImporter, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{
		points:   svc,
		exporter: exporter.NewCSVExporter(),
		importer: imp,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type meResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	EmailVerified  bool       `json:"emailVerified"`
	AvatarURL      string     `json:"avatarUrl,omitempty"`
	Role           auth.Role  `json:"role"`
	Points         int64      `json:"points"`
	RewardEligible bool       `json:"rewardEligible"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Me handles GET /api/me.
func (h *PointsHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		EmailVerified:  user.EmailVerified(),
		AvatarURL:      user.AvatarURL,
		Role:           user.Role,
		Points:         user.Points,
		RewardEligible: user.RewardEligible,
		CreatedAt:      user.CreatedAt,
	})
}

// Balance handles GET /api/points/balance.
func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}
	balance, err := h.points.Balance(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("fetch balance", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// History handles GET /api/points/history.
func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}
	history, err := h.points.History(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("fetch history", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}
	if history == nil {
		history = []points.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": history})
}

type transferRequest struct {
	To     uuid.UUID `json:"to" validate:"required"`
	Amount int64     `json:"amount" validate:"required,gt=0"`
}

// Transfer handles POST /api/points/transfer.
func (h *PointsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}

	var payload transferRequest
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer request")
		return
	}

	tx, err := h.points.Transfer(r.Context(), user.ID, payload.To, payload.Amount)
	if err != nil {
		switch {
		case errors.Is(err, points.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, points.ErrSelfTransfer):
			writeError(w, http.StatusBadRequest, "cannot transfer points to yourself")
		case errors.Is(err, points.ErrInsufficientBalance):
			writeError(w, http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, points.ErrUserNotFound):
			writeError(w, http.StatusBadRequest, "recipient not found")
		default:
			h.logger.Error("transfer points", "from", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "unexpected error")
		}
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type recycleRequest struct {
	UserID   uuid.UUID `json:"userId" validate:"required"`
	Amount   int64     `json:"amount" validate:"required,gt=0"`
	Material string    `json:"material" validate:"required"`
}

// Recycle handles POST /api/points/recycle. Restricted to cooperative
// and admin roles by the router.
func (h *PointsHandler) Recycle(w http.ResponseWriter, r *http.Request) {
	operator, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}

	var payload recycleRequest
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recycle request")
		return
	}

	material, ok := materials.Normalize(payload.Material)
	if !ok {
		writeError(w, http.StatusBadRequest, "unrecognized material")
		return
	}

	tx, err := h.points.RecordRecycling(r.Context(), payload.UserID, payload.Amount, string(material))
	if err != nil {
		switch {
		case errors.Is(err, points.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, points.ErrUserNotFound):
			writeError(w, http.StatusBadRequest, "user not found")
		default:
			h.logger.Error("record recycling", "operator", operator.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "unexpected error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// ExportHistory handles GET /api/points/history.csv.
func (h *PointsHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}

	history, err := h.points.History(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("export history", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="point-history.csv"`)
	if err := h.exporter.Export(w, history); err != nil {
		h.logger.Error("write history csv", "user_id", user.ID, "error", err)
	}
}

// ImportDropOffs handles POST /api/points/import. The body is a raw
// CSV weigh-in sheet; the router restricts this to cooperative and
// admin roles.
func (h *PointsHandler) ImportDropOffs(w http.ResponseWriter, r *http.Request) {
	operator, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "authentication required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxCSVBodyBytes)
	defer func() { _ = body.Close() }()

	summary, err := h.importer.Import(r.Context(), body)
	if err != nil {
		if errors.Is(err, importer.ErrInvalidCSV) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("import drop-offs", "operator", operator.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	h.logger.Info("drop-off sheet imported", "operator", operator.ID, "credited", summary.Credited, "failed", len(summary.Failed))
	writeJSON(w, http.StatusOK, summary)
}

// Materials handles GET /api/materials.
func (h *PointsHandler) Materials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"materials": materials.Rates()})
}

const maxCSVBodyBytes int64 = 5 << 20
