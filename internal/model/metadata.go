package model

import (
	"time"

	"github.com/google/uuid"
)

// Metadata describes a dataset as published in the catalog.
type Metadata struct {
	DatasetID             uuid.UUID  `json:"datasetId"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Owner                 string     `json:"owner"`
	Updated               *time.Time `json:"updated"`
	DatasetDescriptionURI string     `json:"datasetDescriptionUri"`
}

// GuidanceLink is a reference shown alongside guidance text.
type GuidanceLink struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

// Guidance is the human-facing explanation attached to a dataset result.
type Guidance struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	ExplanatoryText string         `json:"explanatoryText"`
	DialogText      string         `json:"dialogText"`
	Links           []GuidanceLink `json:"links"`
	PossibleActions string         `json:"possibleActions"`
}
