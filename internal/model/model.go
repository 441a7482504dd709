/**
 * Shared data model for FormExtract Worker
 *
 * Extraction points come from form configuration, images and OCR outputs from
 * upstream classification and recognition. Content and Field are the results.
 */

package model

import (
	"encoding/json"

	"github.com/adverant/nexus/formextract-worker/internal/geometry"
)

// Value environments
const (
	EnvText  = "text"
	EnvTexts = "texts"
	EnvTable = "table"
)

// Value types
const (
	ValueString = "string"
	ValueImg    = "img"
)

// ExtractionPoint describes one target field of a form type and where to find it
type ExtractionPoint struct {
	DocumentField            string             `json:"document_field"`
	Page                     int                `json:"page"`
	ValueEnvironment         string             `json:"value_environment"`
	TextStringPatternRange   string             `json:"text_string_pattern_range"`
	KeyValueRelativePosition string             `json:"key_value_relative_position"`
	ValueType                string             `json:"value_type"`
	Alias                    []string           `json:"alias"`
	SignSealID               string             `json:"sign_seal_id"`
	Location                 *geometry.RatioBox `json:"location,omitempty"`
}

// FirstAlias returns the first alias, which carries the positional markers
func (p ExtractionPoint) FirstAlias() (string, bool) {
	if len(p.Alias) == 0 {
		return "", false
	}
	return p.Alias[0], true
}

// FormConfig is the extraction configuration of one form type
type FormConfig struct {
	FormTypeID   string            `json:"form_type_id"`
	MultiPage    bool              `json:"multi_page"`
	ExtractPoint []ExtractionPoint `json:"extract_point"`
}

// Image is one classified page or page region
type Image struct {
	ImageID           string     `json:"image_id"`
	ImageURL          string     `json:"image_url"`
	DocumentName      string     `json:"document_name,omitempty"`
	DocumentLabel     string     `json:"document_label,omitempty"`
	DocumentSource    int        `json:"document_source,omitempty"`
	DocumentPage      int        `json:"document_page"`
	TotalPages        int        `json:"total_pages,omitempty"`
	ProcessMode       int        `json:"process_mode,omitempty"`
	IsWithTitle       string     `json:"is_with_title,omitempty"`
	CorrectedImageURL string     `json:"corrected_image_url,omitempty"`
	Corrected         *Corrected `json:"corrected,omitempty"`
}

// Corrected holds the deskewed copy of an image
type Corrected struct {
	URL           string  `json:"url"`
	RotationAngle float64 `json:"rotation_angle"`
}

// SourceURL prefers the corrected image when one exists
func (i Image) SourceURL() string {
	if i.Corrected != nil && i.Corrected.URL != "" {
		return i.Corrected.URL
	}
	if i.CorrectedImageURL != "" {
		return i.CorrectedImageURL
	}
	return i.ImageURL
}

// OcrOutput is the recognition result for one image, keyed by ImageName == Image.ImageID
type OcrOutput struct {
	ImageName string          `json:"image_name"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Blocks    []TextBlock     `json:"blocks,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Shape returns the recognized image size
func (o OcrOutput) Shape() geometry.Shape {
	return geometry.Shape{Width: o.Width, Height: o.Height}
}

// TextBlock is a recognized line of text
type TextBlock struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// BoundingBox represents coordinates of a region
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Field is one extracted key/value datum
type Field struct {
	Key        string        `json:"key"`
	Value      string        `json:"value"`
	Confidence float64       `json:"confidence,omitempty"`
	Box        *geometry.Box `json:"box,omitempty"`
}

// Content is the extraction result of one extraction point
type Content struct {
	Image        string          `json:"image"`
	ExtractPoint ExtractionPoint `json:"extract_point"`
	ValueInfo    []Field         `json:"value_info"`
	Error        string          `json:"error,omitempty"`
}

// NewContent creates a result with no fields for the given image reference
func NewContent(imageRef string, point ExtractionPoint) Content {
	return Content{
		Image:        imageRef,
		ExtractPoint: point,
		ValueInfo:    []Field{},
	}
}

// Empty reports whether no field was extracted
func (c Content) Empty() bool {
	return len(c.ValueInfo) == 0
}
