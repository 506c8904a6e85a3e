package calendar

import "time"

// Event is an entry on a user's own calendar.
type Event struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EventInput is the writable part of an event.
type EventInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
	AllDay      bool      `json:"allDay"`
}

// Range bounds a listing. Zero times are open ends.
type Range struct {
	From time.Time
	To   time.Time
}
