package models

import (
	"time"
)

// PatientListItem is the reduced record returned by the patient list.
type PatientListItem struct {
	ID             int64      `json:"id"`
	PseudonymID    string     `json:"pseudonym_id"`
	FirstName      string     `json:"vorname"`
	LastName       string     `json:"nachname"`
	DateOfBirth    string     `json:"geburtsdatum"`
	IsActive       bool       `json:"is_active"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Patient is the full, decrypted patient record.
type Patient struct {
	ID          int64  `json:"id"`
	PseudonymID string `json:"pseudonym_id"`

	PatientFields

	IsActive              bool       `json:"is_active"`
	ConsentGiven          bool       `json:"consent_given"`
	ConsentDate           *time.Time `json:"consent_date,omitempty"`
	ImportedFromSimplimed bool       `json:"imported_from_simplimed"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// PatientFields are the clinical fields shared by create and read.
type PatientFields struct {
	FirstName         string  `json:"vorname"`
	LastName          string  `json:"nachname"`
	DateOfBirth       string  `json:"geburtsdatum"` // YYYY-MM-DD
	Address           *string `json:"adresse,omitempty"`
	Phone             *string `json:"telefon,omitempty"`
	Email             *string `json:"email,omitempty"`
	MedicalHistory    *string `json:"anamnese,omitempty"`
	Allergies         *string `json:"allergien,omitempty"`
	Medication        *string `json:"medikation,omitempty"`
	PreviousIllnesses *string `json:"vorerkrankungen,omitempty"`
}

// PatientCreate is the body of POST /api/v1/patients.
type PatientCreate struct {
	PatientFields
	ConsentGiven bool `json:"consent_given"`
}

// PatientUpdate is the body of PUT /api/v1/patients/{id}. Nil fields are
// left unchanged by the backend.
type PatientUpdate struct {
	FirstName         *string `json:"vorname,omitempty"`
	LastName          *string `json:"nachname,omitempty"`
	DateOfBirth       *string `json:"geburtsdatum,omitempty"`
	Address           *string `json:"adresse,omitempty"`
	Phone             *string `json:"telefon,omitempty"`
	Email             *string `json:"email,omitempty"`
	MedicalHistory    *string `json:"anamnese,omitempty"`
	Allergies         *string `json:"allergien,omitempty"`
	Medication        *string `json:"medikation,omitempty"`
	PreviousIllnesses *string `json:"vorerkrankungen,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u PatientUpdate) IsEmpty() bool {
	return u == PatientUpdate{}
}

// FullName renders "Nachname, Vorname".
func (p PatientListItem) FullName() string {
	return p.LastName + ", " + p.FirstName
}
