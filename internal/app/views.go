package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/patientenakte/internal/api"
	"github.com/wolfeidau/patientenakte/internal/models"
	"github.com/wolfeidau/patientenakte/internal/router"
)

func (a *App) loginView(ctx context.Context, w io.Writer, req router.Request) error {
	if a.Sessions.Authenticated() {
		_, err := fmt.Fprintln(w, "Already signed in. Run 'patientenakte logout' to switch users.")
		return err
	}
	_, err := fmt.Fprintln(w, "Not signed in. Run 'patientenakte login' to sign in.")
	return err
}

func (a *App) dashboardView(ctx context.Context, w io.Writer, req router.Request) error {
	profile, err := a.CurrentUser(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Patientenakte")
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User:\t%s (%s)\n", profile.DisplayName(), profile.Role)
	fmt.Fprintf(tw, "Username:\t%s\n", profile.Username)
	if profile.Email != "" {
		fmt.Fprintf(tw, "Email:\t%s\n", profile.Email)
	}
	fmt.Fprintf(tw, "MFA:\t%s\n", enabled(profile.MFAEnabled))
	if profile.LastLogin != nil {
		fmt.Fprintf(tw, "Last login:\t%s\n", profile.LastLogin.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  /patients   patient records and search")
	fmt.Fprintln(w)
	_, err = fmt.Fprintln(w, "Note: all access is logged. Patient data is stored encrypted.")
	return err
}

func (a *App) patientsView(ctx context.Context, w io.Writer, req router.Request) error {
	patients, err := a.ListPatients(ctx, 0, api.DefaultLimit)
	if err != nil {
		return err
	}
	return RenderPatientList(w, patients)
}

func (a *App) patientView(ctx context.Context, w io.Writer, req router.Request) error {
	id, err := strconv.ParseInt(req.Vars["id"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid patient id %q: %w", req.Vars["id"], err)
	}

	patient, err := a.Patient(ctx, id)
	if err != nil {
		return err
	}
	return RenderPatient(w, patient)
}

// RenderPatientList writes patients as a table.
func RenderPatientList(w io.Writer, patients []models.PatientListItem) error {
	if len(patients) == 0 {
		_, err := fmt.Fprintln(w, "No patients found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDATE OF BIRTH\tSTATUS")
	for _, p := range patients {
		status := "inactive"
		if p.IsActive {
			status = "active"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.FullName(), p.DateOfBirth, status)
	}
	return tw.Flush()
}

// RenderPatient writes the detail page of one patient.
func RenderPatient(w io.Writer, p *models.Patient) error {
	fmt.Fprintf(w, "%s, %s\n", p.LastName, p.FirstName)
	fmt.Fprintf(w, "Pseudonym: %s\n\n", p.PseudonymID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "Personal")
	fmt.Fprintf(tw, "  Date of birth:\t%s\n", p.DateOfBirth)
	fmt.Fprintf(tw, "  Email:\t%s\n", orDash(p.Email))
	fmt.Fprintf(tw, "  Phone:\t%s\n", orDash(p.Phone))
	fmt.Fprintf(tw, "  Address:\t%s\n", orDash(p.Address))

	fmt.Fprintln(tw, "Medical")
	fmt.Fprintf(tw, "  History:\t%s\n", orDash(p.MedicalHistory))
	fmt.Fprintf(tw, "  Allergies:\t%s\n", orDash(p.Allergies))
	fmt.Fprintf(tw, "  Medication:\t%s\n", orDash(p.Medication))
	fmt.Fprintf(tw, "  Previous illnesses:\t%s\n", orDash(p.PreviousIllnesses))

	fmt.Fprintln(tw, "Consent")
	fmt.Fprintf(tw, "  Given:\t%s\n", yesNo(p.ConsentGiven))
	if p.ConsentDate != nil {
		fmt.Fprintf(tw, "  Date:\t%s\n", p.ConsentDate.Local().Format(time.DateOnly))
	}

	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
