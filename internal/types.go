package internal

import (
	"errors"
	"fmt"
	"time"
)

// DefaultDuration is the lowest session duration STS accepts for
// AssumeRoleWithWebIdentity.
const DefaultDuration = 900 * time.Second

var (
	ErrNoRoleARN   = errors.New("no role ARN specified")
	ErrNoTokenPath = errors.New("no token path specified")
)

// RoleConfig describes the role a cache exchanges tokens for. It is built
// once from process configuration and never mutated.
type RoleConfig struct {
	RoleARN     string
	SessionName string
	TokenFile   string
	Duration    time.Duration
}

// Validate reports whether the config can be used for an exchange.
func (c RoleConfig) Validate() error {
	if c.RoleARN == "" {
		return ErrNoRoleARN
	}
	if c.TokenFile == "" {
		return ErrNoTokenPath
	}
	return nil
}

// DurationSeconds returns the requested session duration in whole seconds,
// falling back to DefaultDuration when unset.
func (c RoleConfig) DurationSeconds() int32 {
	d := c.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	return int32(d / time.Second)
}

// Credentials holds temporary AWS credentials and their expiration.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// String omits the secret key and session token.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{AccessKeyID: %s, Expiration: %s}", c.AccessKeyID, c.Expiration.Format(time.RFC3339))
}

// Project returns the view handed to credential consumers.
func (c Credentials) Project() AWSCredential {
	return AWSCredential{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
}

// AWSCredential is what a connection's authentication layer needs.
type AWSCredential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}
