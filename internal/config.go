package internal

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	EnvRoleARN     = "AWS_ROLE_ARN"
	EnvTokenFile   = "AWS_WEB_IDENTITY_TOKEN_FILE"
	EnvSessionName = "AWS_ROLE_SESSION_NAME"

	DefaultSessionName = "webidctl"
)

// Settings are the values a caller may pass explicitly; empty fields fall
// back to the environment, then to defaults.
type Settings struct {
	RoleARN     string
	SessionName string
	TokenFile   string
}

// ResolveRoleConfig builds the RoleConfig from explicit settings (flags),
// then the environment, then defaults. Duration is always DefaultDuration.
func ResolveRoleConfig(s Settings) (RoleConfig, error) {
	cfg := RoleConfig{
		RoleARN:     firstNonEmpty(s.RoleARN, os.Getenv(EnvRoleARN)),
		SessionName: firstNonEmpty(s.SessionName, os.Getenv(EnvSessionName), DefaultSessionName),
		TokenFile:   firstNonEmpty(s.TokenFile, os.Getenv(EnvTokenFile)),
		Duration:    DefaultDuration,
	}
	if err := cfg.Validate(); err != nil {
		return RoleConfig{}, err
	}
	return cfg, nil
}

// NewWebIdentityCache wires a token file, an STS client and a cache for cfg.
// The returned aws.Config is the one the STS client was built from.
func NewWebIdentityCache(ctx context.Context, cfg RoleConfig, region string, opts ...Option) (*CredentialCache, aws.Config, error) {
	tokens, err := NewFileTokenSource(cfg.TokenFile)
	if err != nil {
		return nil, aws.Config{}, err
	}
	awsCfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, aws.Config{}, err
	}
	exchanger := NewSTSExchanger(sts.NewFromConfig(awsCfg), tokens)
	return NewCredentialCache(cfg, exchanger, opts...), awsCfg, nil
}

// TokenFileAge reports how long ago the token file was last rewritten.
func TokenFileAge(path string, now time.Time) (time.Duration, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return now.Sub(fi.ModTime()), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
