// Package fakebackend is an in-memory stand-in for the Patientenakte REST
// backend, used by tests across the module.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/wolfeidau/patientenakte/internal/models"
)

const tokenTTL = 30 * time.Minute

type account struct {
	password string
	profile  models.Profile
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server

	// NextToken, when set, is issued by the next successful login instead
	// of a freshly signed JWT.
	NextToken string

	mu       sync.Mutex
	secret   []byte
	accounts map[string]*account
	tokens   map[string]int64
	patients map[int64]*models.Patient
	nextID   int64
	hits     map[string]int
	failures []int
	authSeen []string
}

// New starts a backend with one staff account, nurse1/correct.
func New() *Server {
	s := &Server{
		secret:   []byte("fakebackend-signing-secret"),
		accounts: make(map[string]*account),
		tokens:   make(map[string]int64),
		patients: make(map[int64]*models.Patient),
		nextID:   1,
		hits:     make(map[string]int),
	}
	s.AddUser(models.Profile{ID: 7, Username: "nurse1", FullName: "Nora Neumann", Role: "staff", IsActive: true}, "correct")

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.authenticated(s.me)).Methods(http.MethodGet)
	api.HandleFunc("/auth/password/change", s.authenticated(s.changePassword)).Methods(http.MethodPost)
	api.HandleFunc("/patients", s.authenticated(s.listPatients)).Methods(http.MethodGet)
	api.HandleFunc("/patients", s.authenticated(s.createPatient)).Methods(http.MethodPost)
	api.HandleFunc("/patients/{id:[0-9]+}", s.authenticated(s.getPatient)).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id:[0-9]+}", s.authenticated(s.updatePatient)).Methods(http.MethodPut)
	api.HandleFunc("/patients/{id:[0-9]+}", s.authenticated(s.deletePatient)).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(s.record(r))
	return s
}

// AddUser registers an account.
func (s *Server) AddUser(profile models.Profile, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[profile.Username] = &account{password: password, profile: profile}
}

// AddPatient stores a patient and returns its id.
func (s *Server) AddPatient(fields models.PatientFields) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPatient(fields, true)
}

// RevokeAll invalidates every issued token, as if they had expired.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
}

// FailNext makes the next len(statuses) requests answer with the given
// statuses, in order, before any other handling.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Hits returns how many requests reached "METHOD /path".
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// AuthorizationHeaders returns the Authorization header of every request
// received so far, "" where none was sent.
func (s *Server) AuthorizationHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authSeen...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.authSeen = append(s.authSeen, r.Header.Get("Authorization"))
		var status int
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeDetail(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, acct *account)

func (s *Server) authenticated(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		s.mu.Lock()
		userID, valid := s.tokens[token]
		var acct *account
		for _, a := range s.accounts {
			if a.profile.ID == userID {
				acct = a
			}
		}
		s.mu.Unlock()

		if !valid || acct == nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		next(w, r, acct)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[username]
	if !ok || acct.password != password {
		s.mu.Unlock()
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Benutzername oder Passwort falsch")
		return
	}

	token := s.NextToken
	s.NextToken = ""
	if token == "" {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(acct.profile.ID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		}).SignedString(s.secret)
		if err != nil {
			s.mu.Unlock()
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		token = signed
	}
	s.tokens[token] = acct.profile.ID
	profile := acct.profile
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  token,
		"refresh_token": "",
		"token_type":    "bearer",
		"requires_mfa":  false,
		"user_id":       profile.ID,
		"username":      profile.Username,
		"role":          profile.Role,
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, acct *account) {
	writeJSON(w, http.StatusOK, acct.profile)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, acct *account) {
	var body struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if body.OldPassword != acct.password {
		writeDetail(w, http.StatusBadRequest, "Altes Passwort falsch")
		return
	}
	acct.password = body.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Passwort erfolgreich geändert"})
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request, _ *account) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	s.mu.Lock()
	items := make([]models.PatientListItem, 0, len(s.patients))
	for id := int64(1); id < s.nextID; id++ {
		p, ok := s.patients[id]
		if !ok {
			continue
		}
		items = append(items, models.PatientListItem{
			ID:          p.ID,
			PseudonymID: p.PseudonymID,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DateOfBirth: p.DateOfBirth,
			IsActive:    p.IsActive,
		})
	}
	s.mu.Unlock()

	if skip > len(items) {
		skip = len(items)
	}
	items = items[skip:]
	if limit < len(items) {
		items = items[:limit]
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) createPatient(w http.ResponseWriter, r *http.Request, _ *account) {
	var in models.PatientCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if in.FirstName == "" || in.LastName == "" || in.DateOfBirth == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "vorname, nachname and geburtsdatum are required")
		return
	}

	s.mu.Lock()
	id := s.insertPatient(in.PatientFields, in.ConsentGiven)
	p := *s.patients[id]
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPatient(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	p, ok := s.patients[patientID(r)]
	var out models.Patient
	if ok {
		out = *p
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Patient nicht gefunden")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updatePatient(w http.ResponseWriter, r *http.Request, _ *account) {
	var in models.PatientUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	p, ok := s.patients[patientID(r)]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Patient nicht gefunden")
		return
	}
	applyUpdate(p, in)
	p.UpdatedAt = time.Now().UTC()
	out := *p
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deletePatient(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	id := patientID(r)
	_, ok := s.patients[id]
	delete(s.patients, id)
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Patient nicht gefunden")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// insertPatient must be called with s.mu held.
func (s *Server) insertPatient(fields models.PatientFields, consent bool) int64 {
	id := s.nextID
	s.nextID++
	now := time.Now().UTC()
	s.patients[id] = &models.Patient{
		ID:            id,
		PseudonymID:   "P-" + strconv.FormatInt(1000+id, 10),
		PatientFields: fields,
		IsActive:      true,
		ConsentGiven:  consent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return id
}

func applyUpdate(p *models.Patient, in models.PatientUpdate) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.FirstName, in.FirstName)
	set(&p.LastName, in.LastName)
	set(&p.DateOfBirth, in.DateOfBirth)

	setOpt := func(dst **string, src *string) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	setOpt(&p.Address, in.Address)
	setOpt(&p.Phone, in.Phone)
	setOpt(&p.Email, in.Email)
	setOpt(&p.MedicalHistory, in.MedicalHistory)
	setOpt(&p.Allergies, in.Allergies)
	setOpt(&p.Medication, in.Medication)
	setOpt(&p.PreviousIllnesses, in.PreviousIllnesses)
}

func patientID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
