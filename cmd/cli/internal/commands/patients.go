package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfeidau/patientenakte/internal/app"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/models"
)

// PatientsCmd manages patient records.
type PatientsCmd struct {
	List   PatientsListCmd   `cmd:"" help:"List patients"`
	Show   PatientsShowCmd   `cmd:"" help:"Show a patient record"`
	Create PatientsCreateCmd `cmd:"" help:"Register a patient"`
	Update PatientsUpdateCmd `cmd:"" help:"Update a patient record"`
	Delete PatientsDeleteCmd `cmd:"" help:"Delete a patient"`
}

// PatientsListCmd lists patients.
type PatientsListCmd struct {
	Skip  int `help:"Number of patients to skip" default:"0"`
	Limit int `help:"Maximum number of patients" default:"100"`
}

func (c *PatientsListCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(globals, func(a *app.App) error {
		patients, err := a.ListPatients(ctx, c.Skip, c.Limit)
		if err != nil {
			return err
		}
		return app.RenderPatientList(globals.stdout(), patients)
	})
}

// PatientsShowCmd shows one patient.
type PatientsShowCmd struct {
	ID int64 `arg:"" help:"Patient ID"`
}

func (c *PatientsShowCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(globals, func(a *app.App) error {
		patient, err := a.Patient(ctx, c.ID)
		if err != nil {
			return notFound(err, c.ID)
		}
		return app.RenderPatient(globals.stdout(), patient)
	})
}

// PatientFlags are the clinical fields shared by create and update.
type PatientFlags struct {
	Address           string `help:"Postal address"`
	Phone             string `help:"Phone number"`
	Email             string `help:"Email address"`
	MedicalHistory    string `help:"Medical history (Anamnese)"`
	Allergies         string `help:"Known allergies"`
	Medication        string `help:"Current medication"`
	PreviousIllnesses string `help:"Previous illnesses"`
}

// PatientsCreateCmd registers a patient.
type PatientsCreateCmd struct {
	FirstName   string `help:"First name" required:""`
	LastName    string `help:"Last name" required:""`
	DateOfBirth string `help:"Date of birth (YYYY-MM-DD)" required:""`
	Consent     bool   `help:"Patient gave GDPR consent"`

	PatientFlags `embed:""`
}

func (c *PatientsCreateCmd) Run(ctx context.Context, globals *Globals) error {
	in := models.PatientCreate{
		PatientFields: models.PatientFields{
			FirstName:         c.FirstName,
			LastName:          c.LastName,
			DateOfBirth:       c.DateOfBirth,
			Address:           optional(c.Address),
			Phone:             optional(c.Phone),
			Email:             optional(c.Email),
			MedicalHistory:    optional(c.MedicalHistory),
			Allergies:         optional(c.Allergies),
			Medication:        optional(c.Medication),
			PreviousIllnesses: optional(c.PreviousIllnesses),
		},
		ConsentGiven: c.Consent,
	}

	return withSession(globals, func(a *app.App) error {
		patient, err := a.CreatePatient(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(globals.stdout(), "Created patient %d (%s)\n", patient.ID, patient.PseudonymID)
		return nil
	})
}

// PatientsUpdateCmd changes the given fields of a patient.
type PatientsUpdateCmd struct {
	ID          int64  `arg:"" help:"Patient ID"`
	FirstName   string `help:"First name"`
	LastName    string `help:"Last name"`
	DateOfBirth string `help:"Date of birth (YYYY-MM-DD)"`

	PatientFlags `embed:""`
}

func (c *PatientsUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	in := models.PatientUpdate{
		FirstName:         optional(c.FirstName),
		LastName:          optional(c.LastName),
		DateOfBirth:       optional(c.DateOfBirth),
		Address:           optional(c.Address),
		Phone:             optional(c.Phone),
		Email:             optional(c.Email),
		MedicalHistory:    optional(c.MedicalHistory),
		Allergies:         optional(c.Allergies),
		Medication:        optional(c.Medication),
		PreviousIllnesses: optional(c.PreviousIllnesses),
	}
	if in.IsEmpty() {
		return errors.New("nothing to update, pass at least one field flag")
	}

	return withSession(globals, func(a *app.App) error {
		if _, err := a.UpdatePatient(ctx, c.ID, in); err != nil {
			return notFound(err, c.ID)
		}
		fmt.Fprintf(globals.stdout(), "Updated patient %d\n", c.ID)
		return nil
	})
}

// PatientsDeleteCmd deletes a patient.
type PatientsDeleteCmd struct {
	ID int64 `arg:"" help:"Patient ID"`
}

func (c *PatientsDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	return withSession(globals, func(a *app.App) error {
		if err := a.DeletePatient(ctx, c.ID); err != nil {
			return notFound(err, c.ID)
		}
		fmt.Fprintf(globals.stdout(), "Deleted patient %d\n", c.ID)
		return nil
	})
}

// withSession opens the app and runs fn when a session is stored.
func withSession(globals *Globals, fn func(a *app.App) error) error {
	a, err := globals.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.Sessions.Authenticated() {
		return errNotSignedIn
	}
	return explain(fn(a))
}

func notFound(err error, id int64) error {
	if client.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf("patient %d not found\n\nRun 'patientenakte patients list' to see available patients", id)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

