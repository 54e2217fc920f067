package models

import (
	"gorm.io/gorm"
)

const (
	RoleCustomer = "Customer"
	RoleProvider = "Provider"
)

var ServiceTypes = []string{"Plumbing", "Tutoring", "Electrical", "Cleaning"}

func ValidServiceType(serviceType string) bool {
	for _, s := range ServiceTypes {
		if s == serviceType {
			return true
		}
	}
	return false
}

var WeekDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func ValidWeekDay(day string) bool {
	for _, d := range WeekDays {
		if d == day {
			return true
		}
	}
	return false
}

// User is the shared base of both account variants. Customers and providers
// live in one table (single email namespace); providers carry an extra
// ProviderProfile row keyed by UserID.
type User struct {
	gorm.Model
	Email        string `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	FirstName    string `gorm:"column:first_name;size:100;not null" json:"first_name"`
	LastName     string `gorm:"column:last_name;size:100;not null" json:"last_name"`
	Role         string `gorm:"column:role;size:20;not null" json:"role"`
	Street       string `gorm:"column:street;size:255" json:"street,omitempty"`
	City         string `gorm:"column:city;size:100" json:"city,omitempty"`
	Zip          string `gorm:"column:zip;size:20" json:"zip,omitempty"`

	Profile *ProviderProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}

// ProviderProfile holds the provider-specific payload.
// IsOnline is a pointer on purpose: rows created before the field existed are
// NULL and still count as online (default-open policy).
type ProviderProfile struct {
	gorm.Model
	UserID       uint     `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	BusinessName string   `gorm:"column:business_name;size:255;not null" json:"business_name"`
	ServiceType  string   `gorm:"column:service_type;size:50;not null" json:"service_type"`
	HourlyRate   float64  `gorm:"column:hourly_rate;not null" json:"hourly_rate"`
	IsOnline     *bool    `gorm:"column:is_online" json:"is_online"`
	Bio          string   `gorm:"column:bio;type:text" json:"bio"`
	Skills       []string `gorm:"column:skills;serializer:json" json:"skills"`
	Portfolio    []string `gorm:"column:portfolio;serializer:json" json:"portfolio"`

	User         *User                `gorm:"foreignKey:UserID" json:"-"`
	Availability []AvailabilityWindow `gorm:"foreignKey:ProviderProfileID;constraint:OnDelete:CASCADE" json:"availability"`
}

func (ProviderProfile) TableName() string {
	return "provider_profiles"
}

// AvailabilityWindow is a recurring weekly window advertised by a provider.
// Times are opaque same-timezone "HH:MM" strings.
type AvailabilityWindow struct {
	gorm.Model
	ProviderProfileID uint   `gorm:"column:provider_profile_id;not null;index" json:"-"`
	Day               string `gorm:"column:day;size:10;not null" json:"day"`
	StartTime         string `gorm:"column:start_time;size:5" json:"start_time"`
	EndTime           string `gorm:"column:end_time;size:5" json:"end_time"`
}

func (AvailabilityWindow) TableName() string {
	return "availability_windows"
}
