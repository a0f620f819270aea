package api

import "github.com/starford/mtvsearch/internal/view"

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	ID string `json:"id" example:"5b0f3c1e-7a52-4f7e-9f0d-2d5c4a9e8b11" validate:"required"`
}

// FilterRequest is the request body for updating one filter field.
type FilterRequest struct {
	Value    string `json:"value" example:"2020-01-01"`
	Modifier string `json:"modifier,omitempty" example:"after" enums:"none,before,after,age,shorter,longer"`
}

// SortRequest is the request body for changing the sort order.
type SortRequest struct {
	Field     string `json:"field" example:"start" validate:"required"`
	Direction string `json:"direction" example:"descending" validate:"required"`
}

// PageRequest is the request body for page navigation.
type PageRequest struct {
	Page int `json:"page" example:"2" validate:"required"`
}

// StatusResponse carries the database status text.
type StatusResponse struct {
	Status string `json:"status" example:"database ready" validate:"required"`
}

// View is the session view model (aliased from the view layer).
type View = view.View
