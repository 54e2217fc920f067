package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Booking claims a [StartTime, EndTime) slot on a provider's day. Slots are
// half-open: a booking ending at 11:00 never conflicts with one starting at
// 11:00. Only pending and confirmed bookings hold a slot.
type Booking struct {
	gorm.Model
	Reference          string    `gorm:"column:reference;size:64;uniqueIndex" json:"reference"`
	CustomerID         uint      `gorm:"column:customer_id;not null;index" json:"customer_id"`
	ProviderID         uint      `gorm:"column:provider_id;not null;index" json:"provider_id"`
	ServiceDate        time.Time `gorm:"column:service_date;not null" json:"service_date"`
	StartTime          string    `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime            string    `gorm:"column:end_time;size:5;not null" json:"end_time"`
	ProblemDescription string    `gorm:"column:problem_description;type:text" json:"problem_description"`
	Address            string    `gorm:"column:address;size:255" json:"address"`
	PhoneNumber        string    `gorm:"column:phone_number;size:20" json:"phone_number"`
	Status             string    `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	IsReviewed         bool      `gorm:"column:is_reviewed;default:false" json:"is_reviewed"`

	Customer *User `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Provider *User `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}
