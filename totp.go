package authcore

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager wraps TOTP generation and verification for the MFA step.
type totpManager struct {
	cfg TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{cfg: cfg}
}

// TOTPProvisioning is returned when TOTP is set up for a user. Secret is the
// base32 seed; URL is the otpauth:// URI for authenticator apps.
type TOTPProvisioning struct {
	Secret string
	URL    string
}

func (m *totpManager) Generate(issuer, accountName string) (*TOTPProvisioning, error) {
	if issuer == "" {
		issuer = m.cfg.Issuer
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      m.cfg.Period,
		Digits:      otp.Digits(m.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	return &TOTPProvisioning{
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// Verify checks a submitted code against the stored secret. A code of the
// wrong length, or the all-zero code, never validates regardless of what the
// clock says.
func (m *totpManager) Verify(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != m.cfg.Digits || secret == "" {
		return false
	}
	if code == strings.Repeat("0", m.cfg.Digits) {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    otp.Digits(m.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
