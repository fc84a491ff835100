package web

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/auth"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/krypto"
)

const sessionName = "stayspot"

type credentialsForm struct {
	Email    string `schema:"email"`
	Password string `schema:"password"`
}

func (f credentialsForm) parse() (auth.Credentials, error) {
	addr, err := email.ParseAddress(f.Email)
	if err != nil {
		return auth.Credentials{}, err
	}

	pwd, err := auth.ParsePassword(f.Password)
	if err != nil {
		return auth.Credentials{}, err
	}

	return auth.Credentials{Email: addr, Password: pwd}, nil
}

func (s *Server) decodeForm(r *http.Request, target any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}

	return s.decoder.Decode(target, r.PostForm)
}

// tokenParams extracts the subject id and token from the request path.
func tokenParams(r *http.Request) (uuid.UUID, krypto.Token, error) {
	subjectID, err := uuid.Parse(r.PathValue("subjectID"))
	if err != nil {
		return uuid.Nil, krypto.Token{}, errors.Join(krypto.ErrInvalidToken, err)
	}

	token, err := krypto.ParseToken(r.PathValue("token"))
	if err != nil {
		return uuid.Nil, krypto.Token{}, err
	}

	return subjectID, token, nil
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var form credentialsForm
	if err := s.decodeForm(r, &form); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "The provided input is not valid.")
		return
	}

	c, err := form.parse()
	if err != nil {
		s.handleError(w, err)
		return
	}

	if err := s.deps.AuthService.RegisterAccount(r.Context(), c); err != nil {
		s.handleError(w, err)
		return
	}

	// Same response whether or not the account already existed.
	s.writeStatus(w, http.StatusAccepted, "Check your email to confirm your account.")
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	subjectID, token, err := tokenParams(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	err = s.deps.AuthService.RedeemVerification(r.Context(), auth.VerificationRequest{
		SubjectID: subjectID,
		Token:     token,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeStatus(w, http.StatusOK, "Your account is confirmed, you can now log in.")
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var form struct {
		Email string `schema:"email"`
	}
	if err := s.decodeForm(r, &form); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "The provided input is not valid.")
		return
	}

	addr, err := email.ParseAddress(form.Email)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.deps.AuthService.RequestPasswordReset(r.Context(), addr)

	// Same response whether or not an account exists for the address.
	s.writeStatus(w, http.StatusAccepted, "If an account exists for this address you will receive an email.")
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	subjectID, token, err := tokenParams(r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	var form struct {
		Password string `schema:"password"`
	}
	if err := s.decodeForm(r, &form); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "The provided input is not valid.")
		return
	}

	pwd, err := auth.ParsePassword(form.Password)
	if err != nil {
		s.handleError(w, err)
		return
	}

	err = s.deps.AuthService.RedeemReset(r.Context(), auth.ResetRequest{
		SubjectID:   subjectID,
		Token:       token,
		NewPassword: pwd,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeStatus(w, http.StatusOK, "Your password was updated, you can now log in.")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var form credentialsForm
	if err := s.decodeForm(r, &form); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "The provided input is not valid.")
		return
	}

	c, err := form.parse()
	if err != nil {
		s.handleError(w, err)
		return
	}

	id, ok, err := s.deps.AuthService.Authenticate(r.Context(), c)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if !ok {
		s.writeStatus(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}

	session, err := s.deps.SessionStore.Get(r, sessionName)
	if err != nil {
		s.handleError(w, err)
		return
	}

	session.Values["accountID"] = id.String()
	if err := session.Save(r, w); err != nil {
		s.handleError(w, err)
		return
	}

	s.writeStatus(w, http.StatusOK, "You are now logged in.")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.SessionStore.Get(r, sessionName)
	if err != nil {
		s.handleError(w, err)
		return
	}

	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		s.handleError(w, err)
		return
	}

	s.writeStatus(w, http.StatusOK, "You are now logged out.")
}
