package app

import (
	"context"
	"strconv"

	"github.com/wolfeidau/patientenakte/internal/models"
	"github.com/wolfeidau/patientenakte/internal/query"
)

var (
	meKey       = query.Key{"me"}
	patientsKey = query.Key{"patients"}
)

func patientKey(id int64) query.Key {
	return query.Key{"patients", strconv.FormatInt(id, 10)}
}

func patientListKey(skip, limit int) query.Key {
	return query.Key{"patients", "list", strconv.Itoa(skip), strconv.Itoa(limit)}
}

// CurrentUser returns the profile of the logged in user.
func (a *App) CurrentUser(ctx context.Context) (*models.Profile, error) {
	return query.Fetch(ctx, a.Queries, meKey, a.Auth.CurrentUser)
}

// ListPatients returns one page of patients.
func (a *App) ListPatients(ctx context.Context, skip, limit int) ([]models.PatientListItem, error) {
	return query.Fetch(ctx, a.Queries, patientListKey(skip, limit), func(ctx context.Context) ([]models.PatientListItem, error) {
		return a.Patients.List(ctx, skip, limit)
	})
}

// Patient returns the full record of one patient.
func (a *App) Patient(ctx context.Context, id int64) (*models.Patient, error) {
	return query.Fetch(ctx, a.Queries, patientKey(id), func(ctx context.Context) (*models.Patient, error) {
		return a.Patients.Get(ctx, id)
	})
}

// CreatePatient registers a patient.
func (a *App) CreatePatient(ctx context.Context, in models.PatientCreate) (*models.Patient, error) {
	p, err := a.Patients.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	a.patientsChanged()
	return p, nil
}

// UpdatePatient changes the fields set in in.
func (a *App) UpdatePatient(ctx context.Context, id int64, in models.PatientUpdate) (*models.Patient, error) {
	p, err := a.Patients.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	a.patientsChanged()
	return p, nil
}

// DeletePatient deactivates a patient.
func (a *App) DeletePatient(ctx context.Context, id int64) error {
	if err := a.Patients.Delete(ctx, id); err != nil {
		return err
	}
	a.patientsChanged()
	return nil
}

// ChangePassword replaces the password of the logged in user.
func (a *App) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return a.Auth.ChangePassword(ctx, oldPassword, newPassword)
}

func (a *App) patientsChanged() {
	a.Queries.Invalidate(patientsKey)
	a.Client.ResetCache()
}
