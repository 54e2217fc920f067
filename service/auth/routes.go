package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/serviflow/serviflow-server/cmd/models"
	"github.com/serviflow/serviflow-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/auth/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/auth/profile", utils.Protect(h.db, h.handleProfile)).Methods("GET")
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		Email        string  `json:"email"`
		Password     string  `json:"password"`
		FirstName    string  `json:"first_name"`
		LastName     string  `json:"last_name"`
		Role         string  `json:"role"`
		Street       string  `json:"street"`
		City         string  `json:"city"`
		Zip          string  `json:"zip"`
		BusinessName string  `json:"business_name"`
		ServiceType  string  `json:"service_type"`
		HourlyRate   float64 `json:"hourly_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}

	// Validate required fields
	if registerRequest.Email == "" || registerRequest.Password == "" || registerRequest.FirstName == "" || registerRequest.LastName == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	// Anything that is not an explicit Provider registration is a Customer.
	role := models.RoleCustomer
	if registerRequest.Role == models.RoleProvider {
		role = models.RoleProvider
		if registerRequest.BusinessName == "" {
			http.Error(w, "Business name is required for providers", http.StatusBadRequest)
			return
		}
		if !models.ValidServiceType(registerRequest.ServiceType) {
			http.Error(w, "Invalid service type", http.StatusBadRequest)
			return
		}
		if registerRequest.HourlyRate <= 0 {
			http.Error(w, "Hourly rate must be greater than zero", http.StatusBadRequest)
			return
		}
	}

	// Validate unique email
	var existingUser models.User
	if result := h.db.Where("email = ?", registerRequest.Email).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "User already exists", http.StatusBadRequest)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	tx := h.db.Begin()

	user := models.User{
		Email:        registerRequest.Email,
		PasswordHash: string(passwordHash),
		FirstName:    registerRequest.FirstName,
		LastName:     registerRequest.LastName,
		Role:         role,
		Street:       registerRequest.Street,
		City:         registerRequest.City,
		Zip:          registerRequest.Zip,
	}

	if err := tx.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
			tx.Rollback()
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		tx.Rollback()
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	if role == models.RoleProvider {
		isOnline := true
		profile := models.ProviderProfile{
			UserID:       user.ID,
			BusinessName: registerRequest.BusinessName,
			ServiceType:  registerRequest.ServiceType,
			HourlyRate:   registerRequest.HourlyRate,
			IsOnline:     &isOnline,
		}

		if err := tx.Create(&profile).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating provider profile", http.StatusInternalServerError)
			return
		}
		user.Profile = &profile
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	token, err := utils.GenerateJWT(user.ID)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := utils.SendWelcomeEmail(user.Email, user.FirstName); err != nil {
			log.Printf("Error sending welcome email: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", loginRequest.Email).First(&user)
	if result.Error != nil {
		http.Error(w, "Invalid email or password", http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid email or password", http.StatusBadRequest)
		return
	}

	token, err := utils.GenerateJWT(user.ID)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":         user.ID,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"role":       user.Role,
		},
	})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, err := utils.GetUserRoleFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Access Granted",
		"user_id": userID,
		"role":    role,
	})
}
