package models

import (
	"gorm.io/gorm"
)

// Review rates a completed booking. The unique index on BookingID is the
// backstop against two concurrent submissions for the same booking: exactly
// one insert wins, the other fails on the constraint.
type Review struct {
	gorm.Model
	BookingID  uint   `gorm:"column:booking_id;not null;uniqueIndex" json:"booking_id"`
	CustomerID uint   `gorm:"column:customer_id;not null" json:"customer_id"`
	ProviderID uint   `gorm:"column:provider_id;not null;index" json:"provider_id"`
	Rating     int    `gorm:"column:rating;not null" json:"rating"`
	Comment    string `gorm:"column:comment;type:text" json:"comment"`

	Booking  *Booking `gorm:"foreignKey:BookingID" json:"-"`
	Customer *User    `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}
