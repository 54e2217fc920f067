package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/serviflow/serviflow-server/cmd/models"
	"github.com/serviflow/serviflow-server/cmd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	os.Setenv("SECRET_KEY", "test-secret")
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ProviderProfile{},
		&models.AvailabilityWindow{},
		&models.Booking{},
		&models.Review{},
	))
	return db
}

func newRouter(db *gorm.DB) *mux.Router {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api").Subrouter()
	NewBookingHandler(db).RegisterRoutes(subrouter)
	return router
}

func createCustomer(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Sarah",
		LastName:     "Stone",
		Role:         models.RoleCustomer,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createProvider(t *testing.T, db *gorm.DB, email string, rate float64) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "x",
		FirstName:    "John",
		LastName:     "Pipes",
		Role:         models.RoleProvider,
	}
	require.NoError(t, db.Create(user).Error)
	online := true
	profile := &models.ProviderProfile{
		UserID:       user.ID,
		BusinessName: "Pipes & Co",
		ServiceType:  "Plumbing",
		HourlyRate:   rate,
		IsOnline:     &online,
	}
	require.NoError(t, db.Create(profile).Error)
	return user
}

func bearerToken(t *testing.T, userID uint) string {
	t.Helper()
	token, err := utils.GenerateJWT(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

func performJSON(t *testing.T, router *mux.Router, method, path, authorization string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return date
}

func seedBooking(t *testing.T, db *gorm.DB, customerID, providerID uint, date, start, end, status string) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		Reference:   newBookingReference(),
		CustomerID:  customerID,
		ProviderID:  providerID,
		ServiceDate: mustDate(t, date),
		StartTime:   start,
		EndTime:     end,
		PhoneNumber: "0241234567",
		Status:      status,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func bookingPayload(providerID uint, date, start, end string) map[string]interface{} {
	return map[string]interface{}{
		"provider_id":         providerID,
		"service_date":        date,
		"start_time":          start,
		"end_time":            end,
		"problem_description": "Leaking sink",
		"address":             "12 Main St",
		"phone_number":        "0241234567",
	}
}

func TestCreateBooking(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	token := bearerToken(t, customer.ID)

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var response struct {
		Message string         `json:"message"`
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Booking request sent!", response.Message)
	assert.Equal(t, models.StatusPending, response.Booking.Status)
	assert.Equal(t, customer.ID, response.Booking.CustomerID)
	assert.False(t, response.Booking.IsReviewed)
	assert.Contains(t, response.Booking.Reference, "BK-")
}

func TestCreateBookingRequiresAuth(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	provider := createProvider(t, db, "john@example.com", 50)

	rec := performJSON(t, router, "POST", "/api/bookings", "", bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingSlotConflict(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, customer.ID)

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:30", "11:30"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Slot already booked!")

	var count int64
	db.Model(&models.Booking{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateBookingTouchingBoundaryDoesNotConflict(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "11:00", "12:00", models.StatusConfirmed)
	token := bearerToken(t, customer.ID)

	// Half-open intervals: [10:00,11:00) against [11:00,12:00) is no overlap.
	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateBookingIgnoresTerminalStatuses(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusRejected)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusCompleted)
	token := bearerToken(t, customer.ID)

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateBookingOtherProviderUnaffected(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	other := createProvider(t, db, "jane@example.com", 60)
	seedBooking(t, db, customer.ID, other.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, customer.ID)

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateBookingValidatesPhoneNumber(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	token := bearerToken(t, customer.ID)

	payload := bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00")
	payload["phone_number"] = "12345"
	rec := performJSON(t, router, "POST", "/api/bookings", token, payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	payload["phone_number"] = "02412345ab"
	rec = performJSON(t, router, "POST", "/api/bookings", token, payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingValidatesDate(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	token := bearerToken(t, customer.ID)

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "10/09/2026", "10:00", "11:00"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid date format")
}

func TestUpdateBookingStatusByOwner(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	booking := seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, provider.ID)

	rec := performJSON(t, router, "PATCH", fmt.Sprintf("/api/bookings/%d", booking.ID), token, map[string]string{"status": models.StatusConfirmed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Status updated to confirmed")

	var stored models.Booking
	require.NoError(t, db.First(&stored, booking.ID).Error)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
}

func TestUpdateBookingStatusOwnershipMismatchLooksLikeNotFound(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	intruder := createProvider(t, db, "jane@example.com", 60)
	booking := seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)

	wrongOwner := performJSON(t, router, "PATCH", fmt.Sprintf("/api/bookings/%d", booking.ID), bearerToken(t, intruder.ID), map[string]string{"status": models.StatusConfirmed})
	missing := performJSON(t, router, "PATCH", "/api/bookings/99999", bearerToken(t, provider.ID), map[string]string{"status": models.StatusConfirmed})

	// A mismatched owner and a missing id are indistinguishable to the caller.
	assert.Equal(t, http.StatusNotFound, wrongOwner.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, missing.Body.String(), wrongOwner.Body.String())

	var stored models.Booking
	require.NoError(t, db.First(&stored, booking.ID).Error)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestUpdateBookingStatusHasNoTransitionGraph(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	booking := seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, provider.ID)

	// pending -> completed skips confirmed entirely and is still accepted.
	rec := performJSON(t, router, "PATCH", fmt.Sprintf("/api/bookings/%d", booking.ID), token, map[string]string{"status": models.StatusCompleted})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored models.Booking
	require.NoError(t, db.First(&stored, booking.ID).Error)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestUpdateBookingStatusRejectsUnknownStatus(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	booking := seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, provider.ID)

	rec := performJSON(t, router, "PATCH", fmt.Sprintf("/api/bookings/%d", booking.ID), token, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// openSecondConnection returns an independent handle on the same shared
// in-memory database, with no callbacks registered on it.
func openSecondConnection(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func serializationAbort() error {
	return errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)")
}

func TestCreateBookingRetriesSerializationAbort(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	token := bearerToken(t, customer.ID)

	// The database aborts the first claim attempt; no competing booking ever
	// commits, so the retry must land the slot.
	attempts := 0
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("abort_first_claim", func(tx *gorm.DB) {
		if tx.Statement.Table != "bookings" {
			return
		}
		attempts++
		if attempts == 1 {
			tx.AddError(serializationAbort())
		}
	}))

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, attempts)

	var count int64
	db.Model(&models.Booking{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateBookingAbortedClaimLosesToCompetingClaim(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	competing := openSecondConnection(t)
	token := bearerToken(t, customer.ID)

	// Interleaving of two claims for the same slot: the first attempt probes an
	// empty ledger but its insert is aborted by the database; the competing
	// claim commits before the retry re-probes. Exactly one booking may land.
	inserts := 0
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("abort_first_claim", func(tx *gorm.DB) {
		if tx.Statement.Table != "bookings" {
			return
		}
		inserts++
		if inserts == 1 {
			tx.AddError(serializationAbort())
		}
	}))
	probes := 0
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("competing_claim", func(tx *gorm.DB) {
		if tx.Statement.Table != "bookings" {
			return
		}
		probes++
		if probes == 2 {
			seedBooking(t, competing, customer.ID, provider.ID, "2026-09-10", "10:30", "11:30", models.StatusPending)
		}
	}))

	rec := performJSON(t, router, "POST", "/api/bookings", token, bookingPayload(provider.ID, "2026-09-10", "10:00", "11:00"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Slot already booked!")

	var count int64
	competing.Model(&models.Booking{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpdateBookingStatusRefetchFailure(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 50)
	booking := seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, provider.ID)

	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("fail_booking_reads", func(tx *gorm.DB) {
		if tx.Statement.Table != "bookings" {
			return
		}
		tx.AddError(errors.New("read failed"))
	}))

	rec := performJSON(t, router, "PATCH", fmt.Sprintf("/api/bookings/%d", booking.ID), token, map[string]string{"status": models.StatusConfirmed})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error retrieving booking")

	// The scoped update itself went through; only the response read failed.
	require.NoError(t, db.Callback().Query().Remove("fail_booking_reads"))
	var stored models.Booking
	require.NoError(t, db.First(&stored, booking.ID).Error)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
}

func TestGetProviderBookingsSortedWithRate(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 80)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-11", "09:00", "10:00", models.StatusPending)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "14:00", "15:00", models.StatusPending)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "08:00", "09:00", models.StatusConfirmed)
	token := bearerToken(t, provider.ID)

	rec := performJSON(t, router, "GET", "/api/bookings/my-schedule", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var schedule []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedule))
	require.Len(t, schedule, 3)

	// service_date ASC, start_time ASC
	assert.Equal(t, "08:00", schedule[0]["start_time"])
	assert.Equal(t, "14:00", schedule[1]["start_time"])
	assert.Equal(t, "09:00", schedule[2]["start_time"])

	customerInfo, ok := schedule[0]["customer"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Sarah", customerInfo["first_name"])

	providerInfo, ok := schedule[0]["provider"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 80.0, providerInfo["hourly_rate"], 0.001)
}

func TestGetCustomerBookingsSortedDescWithProviderInfo(t *testing.T) {
	db := setupTestDB(t)
	router := newRouter(db)
	customer := createCustomer(t, db, "sarah@example.com")
	provider := createProvider(t, db, "john@example.com", 80)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-10", "10:00", "11:00", models.StatusCompleted)
	seedBooking(t, db, customer.ID, provider.ID, "2026-09-12", "10:00", "11:00", models.StatusPending)
	token := bearerToken(t, customer.ID)

	rec := performJSON(t, router, "GET", "/api/bookings/my-bookings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)

	assert.Equal(t, models.StatusPending, history[0]["status"])
	assert.Equal(t, models.StatusCompleted, history[1]["status"])

	providerInfo, ok := history[0]["provider"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Pipes & Co", providerInfo["business_name"])
	assert.Equal(t, "Plumbing", providerInfo["service_type"])
	assert.InDelta(t, 80.0, providerInfo["hourly_rate"], 0.001)
}
