package booking

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/serviflow/serviflow-server/cmd/models"
	"github.com/serviflow/serviflow-server/cmd/utils"
	"gorm.io/gorm"
)

type BookingHandler struct {
	db *gorm.DB
}

func NewBookingHandler(db *gorm.DB) *BookingHandler {
	return &BookingHandler{db: db}
}

func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings", utils.Protect(h.db, h.CreateBooking)).Methods("POST")
	router.HandleFunc("/bookings/my-schedule", utils.Protect(h.db, h.GetProviderBookings)).Methods("GET")
	router.HandleFunc("/bookings/my-bookings", utils.Protect(h.db, h.GetCustomerBookings)).Methods("GET")
	router.HandleFunc("/bookings/{id}", utils.Protect(h.db, h.UpdateBookingStatus)).Methods("PATCH")
}

// CreateBooking claims a slot for the calling customer. The overlap probe and
// the insert run in one SERIALIZABLE transaction so two competing requests
// for the same slot cannot both land.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var bookingRequest struct {
		ProviderID         uint   `json:"provider_id"`
		ServiceDate        string `json:"service_date"`
		StartTime          string `json:"start_time"`
		EndTime            string `json:"end_time"`
		ProblemDescription string `json:"problem_description"`
		Address            string `json:"address"`
		PhoneNumber        string `json:"phone_number"`
	}

	if err := json.NewDecoder(r.Body).Decode(&bookingRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	serviceDate, err := time.Parse("2006-01-02", bookingRequest.ServiceDate)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if !isTenDigits(bookingRequest.PhoneNumber) {
		http.Error(w, "Phone number must be exactly 10 digits", http.StatusBadRequest)
		return
	}

	booking := models.Booking{
		Reference:          newBookingReference(),
		CustomerID:         userID,
		ProviderID:         bookingRequest.ProviderID,
		ServiceDate:        serviceDate,
		StartTime:          bookingRequest.StartTime,
		EndTime:            bookingRequest.EndTime,
		ProblemDescription: bookingRequest.ProblemDescription,
		Address:            bookingRequest.Address,
		PhoneNumber:        bookingRequest.PhoneNumber,
		Status:             models.StatusPending,
	}

	if err := h.claimSlot(&booking); err != nil {
		if errors.Is(err, errSlotTaken) {
			http.Error(w, "Slot already booked!", http.StatusBadRequest)
			return
		}
		http.Error(w, "Error creating booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Booking request sent!",
		"booking": booking,
	})
}

// GetProviderBookings is the provider's schedule view. Each entry carries the
// provider's flat hourly_rate: downstream revenue aggregation treats it as the
// full job value, not rate times duration.
func (h *BookingHandler) GetProviderBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var bookings []models.Booking
	if err := h.db.Where("provider_id = ?", userID).
		Preload("Customer").
		Order("service_date ASC, start_time ASC").
		Find(&bookings).Error; err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	hourlyRate := 0.0
	var profile models.ProviderProfile
	if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err == nil {
		hourlyRate = profile.HourlyRate
	}

	response := make([]map[string]interface{}, 0, len(bookings))
	for _, booking := range bookings {
		item := map[string]interface{}{
			"id":                  booking.ID,
			"reference":           booking.Reference,
			"service_date":        booking.ServiceDate,
			"start_time":          booking.StartTime,
			"end_time":            booking.EndTime,
			"problem_description": booking.ProblemDescription,
			"address":             booking.Address,
			"phone_number":        booking.PhoneNumber,
			"status":              booking.Status,
			"is_reviewed":         booking.IsReviewed,
			"created_at":          booking.CreatedAt,
			"provider": map[string]interface{}{
				"hourly_rate": hourlyRate,
			},
		}
		if booking.Customer != nil {
			item["customer"] = map[string]interface{}{
				"first_name": booking.Customer.FirstName,
				"last_name":  booking.Customer.LastName,
				"email":      booking.Customer.Email,
			}
		}
		response = append(response, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetCustomerBookings is the customer's history view, newest service date first.
func (h *BookingHandler) GetCustomerBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var bookings []models.Booking
	if err := h.db.Where("customer_id = ?", userID).
		Preload("Provider").
		Preload("Provider.Profile").
		Order("service_date DESC").
		Find(&bookings).Error; err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(bookings))
	for _, booking := range bookings {
		item := map[string]interface{}{
			"id":                  booking.ID,
			"reference":           booking.Reference,
			"service_date":        booking.ServiceDate,
			"start_time":          booking.StartTime,
			"end_time":            booking.EndTime,
			"problem_description": booking.ProblemDescription,
			"address":             booking.Address,
			"phone_number":        booking.PhoneNumber,
			"status":              booking.Status,
			"is_reviewed":         booking.IsReviewed,
			"created_at":          booking.CreatedAt,
		}
		if booking.Provider != nil {
			providerData := map[string]interface{}{
				"id":         booking.Provider.ID,
				"first_name": booking.Provider.FirstName,
				"last_name":  booking.Provider.LastName,
			}
			if booking.Provider.Profile != nil {
				providerData["business_name"] = booking.Provider.Profile.BusinessName
				providerData["service_type"] = booking.Provider.Profile.ServiceType
				providerData["hourly_rate"] = booking.Provider.Profile.HourlyRate
			}
			item["provider"] = providerData
		}
		response = append(response, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// UpdateBookingStatus transitions a booking on behalf of its provider. The
// update is scoped by (id, provider), so a mismatched owner gets the same 404
// as a missing booking. Any enum value may overwrite any other; there is no
// transition graph.
func (h *BookingHandler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var statusUpdate struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusUpdate); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !models.ValidStatus(statusUpdate.Status) {
		http.Error(w, "Invalid status value", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.Booking{}).
		Where("id = ? AND provider_id = ?", bookingID, userID).
		Update("status", statusUpdate.Status)

	if result.Error != nil {
		http.Error(w, "Error updating booking", http.StatusInternalServerError)
		return
	}

	if result.RowsAffected == 0 {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, bookingID).Error; err != nil {
		http.Error(w, "Error retrieving booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": fmt.Sprintf("Status updated to %s", statusUpdate.Status),
		"booking": booking,
	})
}

var errSlotTaken = errors.New("slot already taken")

const slotClaimAttempts = 3

// claimSlot inserts the booking unless an overlapping one exists. A claim the
// database aborts for serialization is retried; the retry re-runs the probe,
// so a competing claim that committed in the meantime surfaces as errSlotTaken.
func (h *BookingHandler) claimSlot(booking *models.Booking) error {
	var err error
	for attempt := 0; attempt < slotClaimAttempts; attempt++ {
		err = h.tryClaimSlot(booking)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

// tryClaimSlot runs the overlap probe and the insert in one SERIALIZABLE
// transaction. Read committed is not enough: two concurrent probes would each
// miss the other's uncommitted insert and both claims would land.
func (h *BookingHandler) tryClaimSlot(booking *models.Booking) error {
	tx := h.db.Begin(&sql.TxOptions{Isolation: sql.LevelSerializable})
	if tx.Error != nil {
		return tx.Error
	}

	// Half-open interval overlap: existing.start < new.end AND
	// existing.end > new.start. Touching endpoints do not conflict.
	// Only pending and confirmed bookings hold a slot.
	var existingBooking models.Booking
	probe := tx.Where(
		"provider_id = ? AND service_date = ? AND status IN ? AND start_time < ? AND end_time > ?",
		booking.ProviderID,
		booking.ServiceDate,
		[]string{models.StatusPending, models.StatusConfirmed},
		booking.EndTime,
		booking.StartTime,
	).First(&existingBooking)

	if probe.Error == nil {
		tx.Rollback()
		return errSlotTaken
	}
	if !errors.Is(probe.Error, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return probe.Error
	}

	if err := tx.Create(booking).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// isSerializationFailure matches the aborts a SERIALIZABLE transaction is
// expected to retry: Postgres serialization failures (SQLSTATE 40001) and the
// sqlite busy errors the test driver raises under concurrent writers.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") ||
		strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked")
}

func newBookingReference() string {
	return fmt.Sprintf("BK-%s", uuid.New().String())
}

func isTenDigits(phone string) bool {
	if len(phone) != 10 {
		return false
	}
	for _, c := range phone {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
