package review

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/serviflow/serviflow-server/cmd/models"
	"github.com/serviflow/serviflow-server/cmd/utils"
	"gorm.io/gorm"
)

type ReviewHandler struct {
	db *gorm.DB
}

func NewReviewHandler(db *gorm.DB) *ReviewHandler {
	return &ReviewHandler{db: db}
}

func (h *ReviewHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reviews", utils.Protect(h.db, h.CreateReview)).Methods("POST")
}

// CreateReview accepts exactly one review per completed booking, from the
// booking's own customer. The insert and the is_reviewed flip share one
// transaction; the unique index on booking_id decides a lost race.
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var reviewRequest struct {
		BookingID  uint   `json:"booking_id"`
		ProviderID uint   `json:"provider_id"`
		Rating     int    `json:"rating"`
		Comment    string `json:"comment"`
	}

	if err := json.NewDecoder(r.Body).Decode(&reviewRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if reviewRequest.Rating < 1 || reviewRequest.Rating > 5 {
		http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var booking models.Booking
	if err := tx.First(&booking, reviewRequest.BookingID).Error; err != nil || booking.Status != models.StatusCompleted {
		tx.Rollback()
		http.Error(w, "You can only review completed services.", http.StatusBadRequest)
		return
	}

	if booking.CustomerID != userID {
		tx.Rollback()
		http.Error(w, "Unauthorized to review this booking.", http.StatusForbidden)
		return
	}

	if booking.IsReviewed {
		tx.Rollback()
		http.Error(w, "You have already reviewed this service.", http.StatusBadRequest)
		return
	}

	review := models.Review{
		BookingID:  reviewRequest.BookingID,
		CustomerID: userID,
		ProviderID: reviewRequest.ProviderID,
		Rating:     reviewRequest.Rating,
		Comment:    reviewRequest.Comment,
	}

	if err := tx.Create(&review).Error; err != nil {
		tx.Rollback()
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "Duplicate review detected.", http.StatusBadRequest)
			return
		}
		http.Error(w, "Error creating review", http.StatusInternalServerError)
		return
	}

	booking.IsReviewed = true
	if err := tx.Save(&booking).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating booking", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing review", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Review submitted successfully!",
		"review":  review,
	})
}
