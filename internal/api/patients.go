package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wolfeidau/patientenakte/internal/models"
)

const (
	// DefaultLimit is the page size used when none is given.
	DefaultLimit = 100
)

// Patients wraps the /patients endpoints.
type Patients struct {
	transport Transport
}

// NewPatients creates the patients API.
func NewPatients(transport Transport) *Patients {
	return &Patients{transport: transport}
}

// List returns one page of patients.
func (p *Patients) List(ctx context.Context, skip, limit int) ([]models.PatientListItem, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))

	var patients []models.PatientListItem
	if err := p.transport.DoJSON(ctx, http.MethodGet, basePath+"/patients?"+q.Encode(), nil, &patients); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

// Get returns one patient record.
func (p *Patients) Get(ctx context.Context, id int64) (*models.Patient, error) {
	var patient models.Patient
	if err := p.transport.DoJSON(ctx, http.MethodGet, patientPath(id), nil, &patient); err != nil {
		return nil, fmt.Errorf("failed to get patient %d: %w", id, err)
	}
	return &patient, nil
}

// Create registers a new patient.
func (p *Patients) Create(ctx context.Context, in models.PatientCreate) (*models.Patient, error) {
	var patient models.Patient
	if err := p.transport.DoJSON(ctx, http.MethodPost, basePath+"/patients", in, &patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return &patient, nil
}

// Update applies a partial update.
func (p *Patients) Update(ctx context.Context, id int64, in models.PatientUpdate) (*models.Patient, error) {
	var patient models.Patient
	if err := p.transport.DoJSON(ctx, http.MethodPut, patientPath(id), in, &patient); err != nil {
		return nil, fmt.Errorf("failed to update patient %d: %w", id, err)
	}
	return &patient, nil
}

// Delete removes a patient.
func (p *Patients) Delete(ctx context.Context, id int64) error {
	if err := p.transport.DoJSON(ctx, http.MethodDelete, patientPath(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete patient %d: %w", id, err)
	}
	return nil
}

func patientPath(id int64) string {
	return basePath + "/patients/" + strconv.FormatInt(id, 10)
}
