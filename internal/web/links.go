package web

import (
	"net/url"

	"github.com/google/uuid"
	"github.com/stayspot/stayspot/internal/auth"
	"github.com/stayspot/stayspot/internal/krypto"
)

// Links builds the redemption URLs embedded in token emails. The
// paths match the routes registered by the Server.
type Links struct {
	BaseURL *url.URL
}

func (l Links) RedemptionURL(purpose auth.TokenPurpose, subjectID uuid.UUID, token krypto.Token) string {
	path := "verify"
	if purpose == auth.TokenPurposeResetPassword {
		path = "reset"
	}

	return l.BaseURL.JoinPath(path, subjectID.String(), token.String()).String()
}
