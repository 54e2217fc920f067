package search

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/serviflow/serviflow-server/cmd/models"
	"gorm.io/gorm"
)

type SearchHandler struct {
	db *gorm.DB
}

func NewSearchHandler(db *gorm.DB) *SearchHandler {
	return &SearchHandler{db: db}
}

func (h *SearchHandler) RegisterRoutes(router *mux.Router) {
	// Public route: customers can search without logging in.
	router.HandleFunc("/customers/search", h.SearchProviders).Methods("GET")
}

type ratingAggregate struct {
	ProviderID    uint
	AverageRating float64
	TotalReviews  int64
}

// SearchProviders filters active providers and joins the review aggregates at
// read time. A NULL is_online counts as online so legacy rows keep showing up.
func (h *SearchHandler) SearchProviders(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	city := r.URL.Query().Get("city")

	query := h.db.Model(&models.User{}).
		Joins("JOIN provider_profiles ON provider_profiles.user_id = users.id").
		Where("users.role = ?", models.RoleProvider).
		Where("provider_profiles.is_online IS NULL OR provider_profiles.is_online = ?", true).
		Preload("Profile").
		Preload("Profile.Availability")

	if service != "" {
		query = query.Where("LOWER(provider_profiles.service_type) LIKE ?", "%"+strings.ToLower(service)+"%")
	}
	if city != "" {
		query = query.Where("LOWER(users.city) LIKE ?", "%"+strings.ToLower(city)+"%")
	}

	var providers []models.User
	if err := query.Find(&providers).Error; err != nil {
		http.Error(w, "Error searching providers", http.StatusInternalServerError)
		return
	}

	// Read-time aggregation over reviews keyed by provider user id. No stored
	// running average to keep in sync.
	var aggregates []ratingAggregate
	if err := h.db.Model(&models.Review{}).
		Select("provider_id, AVG(rating) AS average_rating, COUNT(*) AS total_reviews").
		Group("provider_id").
		Scan(&aggregates).Error; err != nil {
		http.Error(w, "Error aggregating reviews", http.StatusInternalServerError)
		return
	}

	ratingsByProvider := make(map[uint]ratingAggregate, len(aggregates))
	for _, agg := range aggregates {
		ratingsByProvider[agg.ProviderID] = agg
	}

	response := make([]map[string]interface{}, 0, len(providers))
	for _, provider := range providers {
		if provider.Profile == nil {
			continue
		}

		providerData := map[string]interface{}{
			"id":             provider.ID,
			"first_name":     provider.FirstName,
			"last_name":      provider.LastName,
			"email":          provider.Email,
			"city":           provider.City,
			"business_name":  provider.Profile.BusinessName,
			"service_type":   provider.Profile.ServiceType,
			"hourly_rate":    provider.Profile.HourlyRate,
			"is_online":      provider.Profile.IsOnline,
			"bio":            provider.Profile.Bio,
			"skills":         provider.Profile.Skills,
			"availability":   provider.Profile.Availability,
			"average_rating": 0.0,
			"total_reviews":  int64(0),
		}
		if agg, ok := ratingsByProvider[provider.ID]; ok {
			providerData["average_rating"] = agg.AverageRating
			providerData["total_reviews"] = agg.TotalReviews
		}
		response = append(response, providerData)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
