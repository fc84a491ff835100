package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/errorz"
	"github.com/stayspot/stayspot/internal/krypto"
)

var (
	// ErrDuplicateAccount indicates an account with the same email
	// address already exists and is verified.
	ErrDuplicateAccount = errors.New("duplicate account")
	// ErrAlreadyVerified indicates a verification token was requested
	// for an account that is already verified.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrNotVerified indicates a reset token was requested for an
	// account that has not verified its email address yet.
	ErrNotVerified = errors.New("account not verified")

	// ErrTokenNotFound indicates there is no outstanding token for the
	// subject and purpose.
	ErrTokenNotFound = errors.New("no outstanding token")
	// ErrTokenExpired indicates the token deadline has passed. The
	// record is deleted when this is detected.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMismatch indicates the presented token does not match the
	// stored hash. The record is kept so the user can retry with the
	// correct link.
	ErrTokenMismatch = errors.New("token does not match")
	// ErrAccountUpdate indicates the account mutation after a
	// successful match failed. The record is kept so redemption can be
	// retried.
	ErrAccountUpdate = errors.New("failed to update account")
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// LinkBuilder builds the URL a user visits to redeem a token. The
// plaintext token only ever leaves the process embedded in such a URL.
type LinkBuilder interface {
	RedemptionURL(purpose TokenPurpose, subjectID uuid.UUID, token krypto.Token) string
}

// TokenEmail is the template data for token emails.
type TokenEmail struct {
	Link string
}

// ErrFunc is a function that handles errors from worker goroutines.
type ErrFunc func(error)

const (
	// DefaultVerifyTokenExpiry is how long verification tokens are valid.
	DefaultVerifyTokenExpiry = 6 * time.Hour
	// DefaultResetTokenExpiry is how long password reset tokens are valid.
	DefaultResetTokenExpiry = time.Hour
	// DefaultWorkerTimeout is how long worker goroutines may run.
	DefaultWorkerTimeout = 10 * time.Second
)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// VerifyTokenExpiry is the duration a verification token is valid.
	VerifyTokenExpiry time.Duration
	// ResetTokenExpiry is the duration a password reset token is valid.
	ResetTokenExpiry time.Duration
}

// Service provides the main rules for the account credential
// lifecycle: issuing and redeeming the email tokens that gate
// email verification and password resets.
type Service struct {
	store      Store
	emailer    Emailer
	links      LinkBuilder
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no account was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, links LinkBuilder, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	if cfg.WorkerTimeout == 0 {
		cfg.WorkerTimeout = DefaultWorkerTimeout
	}
	if cfg.VerifyTokenExpiry == 0 {
		cfg.VerifyTokenExpiry = DefaultVerifyTokenExpiry
	}
	if cfg.ResetTokenExpiry == 0 {
		cfg.ResetTokenExpiry = DefaultResetTokenExpiry
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		links:          links,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// RegisterAccount registers a new account with the provided credentials.
// The main work of this method is done in a separate goroutine. The returned
// error does not indicate whether an account was actually registered or not.
// This is by design to prevent information leakage.
func (s *Service) RegisterAccount(_ context.Context, c Credentials) error {
	// Hash the password.
	pwdHash, err := c.Password.Hash()
	if err != nil {
		return err
	}

	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   accounts could lead to user enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startSignup(wCtx, c.Email, pwdHash)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()

	// Note that we don't let the caller know if the account was created or
	// not. This is by design, again to prevent information leakage.
	return nil
}

// startSignup creates an unverified account if necessary and issues a
// verification token for it.
//
// If a verified account with the same email address exists,
// ErrDuplicateAccount is returned. Signing up again before verifying
// issues a fresh verification link. Redemption always checks against
// the most recently issued token, so the newest link is the one that
// works.
func (s *Service) startSignup(ctx context.Context, addr email.Address, pwdHash krypto.Argon2Hash) error {
	now := s.NowFunc()

	acct, err := s.store.FindAccountByEmail(ctx, addr)
	switch {
	case err == nil:
		if acct.Verified {
			return ErrDuplicateAccount
		}
	case errors.Is(err, errorz.ErrNotFound):
		acct = Account{
			ID:           uuid.New(),
			Email:        addr,
			PasswordHash: pwdHash,
			Verified:     false,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.store.CreateAccount(ctx, &acct); err != nil {
			return err
		}
	default:
		return err
	}

	return s.issueToken(ctx, acct, TokenPurposeVerifyEmail)
}

// IssueVerification issues a new verification token for the account
// and emails the redemption link. The account must exist and must not
// be verified yet. Earlier verification tokens are not cleared.
func (s *Service) IssueVerification(ctx context.Context, subjectID uuid.UUID) error {
	acct, err := s.store.FindAccountByID(ctx, subjectID)
	if err != nil {
		return err
	}

	if acct.Verified {
		return ErrAlreadyVerified
	}

	return s.issueToken(ctx, acct, TokenPurposeVerifyEmail)
}

// IssueReset issues a new password reset token for the account and
// emails the redemption link. The account must exist and be verified.
// Any earlier reset tokens are invalidated first, only the most
// recently issued reset link is ever redeemable.
func (s *Service) IssueReset(ctx context.Context, subjectID uuid.UUID) error {
	acct, err := s.store.FindAccountByID(ctx, subjectID)
	if err != nil {
		return err
	}

	if !acct.Verified {
		return ErrNotVerified
	}

	return s.issueToken(ctx, acct, TokenPurposeResetPassword)
}

// RequestPasswordReset requests a password reset for the account with the
// provided email address. Similar to RegisterAccount, the main work is done
// in a separate goroutine and no output is returned to indicate if the
// request was successful.
func (s *Service) RequestPasswordReset(_ context.Context, addr email.Address) {
	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   accounts could lead to user enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startPasswordReset(wCtx, addr)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()
}

func (s *Service) startPasswordReset(ctx context.Context, addr email.Address) error {
	acct, err := s.store.FindAccountByEmail(ctx, addr)
	if err != nil {
		return err
	}

	if !acct.Verified {
		return ErrNotVerified
	}

	return s.issueToken(ctx, acct, TokenPurposeResetPassword)
}

// issueToken generates a token, persists its hash with an expiry and
// emails the redemption link.
func (s *Service) issueToken(ctx context.Context, acct Account, purpose TokenPurpose) error {
	now := s.NowFunc()

	if purpose == TokenPurposeResetPassword {
		// Clear earlier reset tokens, a stale reset link must not
		// remain usable after a newer one was requested.
		if err := s.store.DeleteTokens(ctx, acct.ID, purpose); err != nil {
			return err
		}
	}

	token, err := krypto.GenerateToken()
	if err != nil {
		return err
	}

	hash, err := token.Hash()
	if err != nil {
		return err
	}

	rec := TokenRecord{
		SubjectID:  acct.ID,
		Purpose:    purpose,
		SecretHash: hash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.tokenExpiry(purpose)),
	}

	if err := s.store.CreateToken(ctx, &rec); err != nil {
		return err
	}

	// The email is sent after the record is persisted. A failed send is
	// reported to the caller but does not roll back the record: the user
	// can always request a new link and an operator can trigger a resend.
	return s.emailer.Send(ctx, purpose.emailTemplate(), acct.Email, TokenEmail{
		Link: s.links.RedemptionURL(purpose, acct.ID, token),
	})
}

func (s *Service) tokenExpiry(purpose TokenPurpose) time.Duration {
	if purpose == TokenPurposeResetPassword {
		return s.cfg.ResetTokenExpiry
	}
	return s.cfg.VerifyTokenExpiry
}

// VerificationRequest is a request to redeem a verification token.
type VerificationRequest struct {
	SubjectID uuid.UUID
	Token     krypto.Token
}

// RedeemVerification attempts to verify the account identified by the
// request. On success the account is marked verified and the token
// records for the account are consumed.
func (s *Service) RedeemVerification(ctx context.Context, req VerificationRequest) error {
	return s.redeemToken(ctx, req.SubjectID, TokenPurposeVerifyEmail, req.Token, s.markVerified)
}

// ResetRequest is a request to redeem a password reset token.
type ResetRequest struct {
	SubjectID   uuid.UUID
	Token       krypto.Token
	NewPassword Password
}

// RedeemReset attempts to reset the password of the account identified
// by the request. On success the new password hash is stored and the
// token record is consumed.
func (s *Service) RedeemReset(ctx context.Context, req ResetRequest) error {
	return s.redeemToken(ctx, req.SubjectID, TokenPurposeResetPassword, req.Token, func(ctx context.Context, acct *Account) error {
		return s.setPassword(ctx, acct, req.NewPassword)
	})
}

// redeemToken runs the redemption sequence for a single token:
// find the record, check the expiry, match the presented token, apply
// the purpose specific account mutation and finally consume the record.
//
// The mutations are idempotent, so if two redemption attempts race on
// the same record both may apply the mutation before either deletes
// the record. That is harmless and saves us from needing
// compare-and-delete semantics in the store.
func (s *Service) redeemToken(ctx context.Context, subjectID uuid.UUID, purpose TokenPurpose, token krypto.Token, apply func(context.Context, *Account) error) error {
	rec, err := s.store.FindToken(ctx, subjectID, purpose)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			return ErrTokenNotFound
		}
		return err
	}

	now := s.NowFunc()
	if now.After(rec.ExpiresAt) {
		if err := s.store.DeleteToken(ctx, subjectID, purpose); err != nil && !errors.Is(err, errorz.ErrNotFound) {
			return err
		}

		if purpose == TokenPurposeVerifyEmail {
			// An expired verification link means the signup was
			// abandoned. The unverified account is purged so the email
			// address can be claimed again with a fresh signup.
			if err := s.store.DeleteAccount(ctx, subjectID); err != nil && !errors.Is(err, errorz.ErrNotFound) {
				return err
			}
		}

		return ErrTokenExpired
	}

	if !token.Match(rec.SecretHash) {
		return ErrTokenMismatch
	}

	acct, err := s.store.FindAccountByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			return ErrTokenNotFound
		}
		return err
	}

	if err := apply(ctx, &acct); err != nil {
		// Keep the record so the user can retry the redemption.
		return errors.Join(ErrAccountUpdate, err)
	}

	return s.store.DeleteToken(ctx, subjectID, purpose)
}

// markVerified marks the account as verified. It's a no-op for
// accounts that are already verified.
func (s *Service) markVerified(ctx context.Context, acct *Account) error {
	if acct.Verified {
		return nil
	}

	acct.Verified = true
	acct.UpdatedAt = s.NowFunc()

	return s.store.UpdateAccount(ctx, acct)
}

// setPassword overwrites the password hash of the account. Repeating
// the same new password is a no-op.
func (s *Service) setPassword(ctx context.Context, acct *Account, pwd Password) error {
	if pwd.Match(acct.PasswordHash) {
		return nil
	}

	hash, err := pwd.Hash()
	if err != nil {
		return err
	}

	acct.PasswordHash = hash
	acct.UpdatedAt = s.NowFunc()

	return s.store.UpdateAccount(ctx, acct)
}

// Authenticate checks if the provided credentials belong to a verified
// account. It returns the account ID when they do.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (uuid.UUID, bool, error) {
	acct, err := s.store.FindAccountByEmail(ctx, c.Email)
	if err != nil {
		if errors.Is(err, errorz.ErrNotFound) {
			// Even if no account is found we compare to a hash to prevent
			// timing differences that could result in user enumeration
			// attacks.
			_ = c.Password.Match(s.comparisonHash)
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}

	if !acct.Verified {
		_ = c.Password.Match(s.comparisonHash)
		return uuid.Nil, false, nil
	}

	if !c.Password.Match(acct.PasswordHash) {
		return uuid.Nil, false, nil
	}

	return acct.ID, true, nil
}
