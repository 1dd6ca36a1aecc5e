// Package models contains the data models for the application.
package models

import (
	"time"
)

// Color is the pin colour a reviewer picks for an annotation.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
)

// DefaultColor is used when the reviewer does not pick one.
const DefaultColor = ColorRed

// Valid reports whether c is one of the supported colours.
func (c Color) Valid() bool {
	switch c {
	case ColorRed, ColorYellow, ColorBlue, ColorGreen:
		return true
	}
	return false
}

// Annotation is a comment pinned to a point of a visual asset. X and Y are percentages of the
// asset's intrinsic width and height, so the pin lands on the same spot at any zoom level.
type Annotation struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	Resolved  bool      `json:"resolved"`
	Color     Color     `json:"color"`
}

// CreateAnnotationRequest represents the request body for creating an annotation.
// Range checks happen in the annotation service so they surface as validation errors.
type CreateAnnotationRequest struct {
	X      *float64 `json:"x" binding:"required"`
	Y      *float64 `json:"y" binding:"required"`
	Text   string   `json:"text"`
	Author string   `json:"author"`
	Color  Color    `json:"color,omitempty"`
}

// AnnotationResponse wraps a single annotation in the API response.
type AnnotationResponse struct {
	Data Annotation `json:"data"`
}

// AnnotationsResponse wraps multiple annotations in the API response.
type AnnotationsResponse struct {
	Data []Annotation `json:"data"`
}

// AnnotationSummary counts the annotations of one asset.
type AnnotationSummary struct {
	AssetID    string `json:"asset_id"`
	Total      int    `json:"total"`
	Unresolved int    `json:"unresolved"`
}

// AnnotationSummaryResponse wraps an annotation summary in the API response.
type AnnotationSummaryResponse struct {
	Data AnnotationSummary `json:"data"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Stage   string `json:"stage,omitempty"`
}
