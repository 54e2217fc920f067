package user

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/serviflow/serviflow-server/cmd/models"
	"github.com/serviflow/serviflow-server/cmd/utils"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/profile", utils.Protect(h.db, h.GetProfile)).Methods("GET")
	router.HandleFunc("/users/profile", utils.Protect(h.db, h.UpdateProfile)).Methods("PATCH")
	router.HandleFunc("/providers/availability", utils.Protect(h.db, h.UpdateAvailability)).Methods("PUT")
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.db.Preload("Profile").Preload("Profile.Availability").First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateProfile applies a partial update to the caller's provider profile.
// Only fields present in the body change; a customer without a profile row
// gets a 404.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var updateData struct {
		Bio          *string   `json:"bio"`
		Skills       *[]string `json:"skills"`
		IsOnline     *bool     `json:"is_online"`
		BusinessName *string   `json:"business_name"`
		HourlyRate   *float64  `json:"hourly_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var profile models.ProviderProfile
	if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		http.Error(w, "Provider profile not found", http.StatusNotFound)
		return
	}

	if updateData.Bio != nil {
		profile.Bio = *updateData.Bio
	}
	if updateData.Skills != nil {
		profile.Skills = *updateData.Skills
	}
	if updateData.IsOnline != nil {
		profile.IsOnline = updateData.IsOnline
	}
	if updateData.BusinessName != nil {
		profile.BusinessName = *updateData.BusinessName
	}
	if updateData.HourlyRate != nil {
		profile.HourlyRate = *updateData.HourlyRate
	}

	if err := h.db.Save(&profile).Error; err != nil {
		http.Error(w, "Error updating profile", http.StatusInternalServerError)
		return
	}

	var user models.User
	if err := h.db.Preload("Profile").Preload("Profile.Availability").First(&user, userID).Error; err != nil {
		http.Error(w, "Error retrieving profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// UpdateAvailability replaces the provider's weekly windows wholesale.
func (h *Handler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	role, err := utils.GetUserRoleFromContext(r)
	if err != nil || role != models.RoleProvider {
		http.Error(w, "Forbidden: Only providers can perform this action", http.StatusForbidden)
		return
	}

	var availabilityRequest struct {
		Availability []struct {
			Day       string `json:"day"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
		} `json:"availability"`
	}
	if err := json.NewDecoder(r.Body).Decode(&availabilityRequest); err != nil || availabilityRequest.Availability == nil {
		http.Error(w, "Missing availability data in request body", http.StatusBadRequest)
		return
	}

	for _, window := range availabilityRequest.Availability {
		if !models.ValidWeekDay(window.Day) {
			http.Error(w, fmt.Sprintf("Invalid day: %s", window.Day), http.StatusBadRequest)
			return
		}
	}

	var profile models.ProviderProfile
	if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		http.Error(w, "Provider profile not found", http.StatusNotFound)
		return
	}

	tx := h.db.Begin()

	if err := tx.Where("provider_profile_id = ?", profile.ID).Delete(&models.AvailabilityWindow{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating availability", http.StatusInternalServerError)
		return
	}

	windows := make([]models.AvailabilityWindow, 0, len(availabilityRequest.Availability))
	for _, window := range availabilityRequest.Availability {
		windows = append(windows, models.AvailabilityWindow{
			ProviderProfileID: profile.ID,
			Day:               window.Day,
			StartTime:         window.StartTime,
			EndTime:           window.EndTime,
		})
	}
	if len(windows) > 0 {
		if err := tx.Create(&windows).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error updating availability", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error updating availability", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Availability updated successfully",
		"availability": windows,
	})
}
