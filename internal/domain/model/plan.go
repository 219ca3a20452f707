package model

import "time"

// Plan describes a purchasable subscription tier.
type Plan struct {
	ID           string
	Name         string
	Price        float64 // major currency units
	Currency     string
	DurationDays int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
