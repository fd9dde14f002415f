package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// ErrEmptyCredentials is returned when STS answers without a usable
// credential set.
var ErrEmptyCredentials = errors.New("STS returned empty credentials")

// ExchangeError is returned for any failed token exchange.
type ExchangeError struct {
	RoleARN string
	Err     error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchanging web identity token for role %s: %v", e.RoleARN, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Code returns the STS error code, or "" if the failure did not come from the
// service.
func (e *ExchangeError) Code() string {
	var ae smithy.APIError
	if errors.As(e.Err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// WebIdentityAssumer is the STS operation the exchanger needs (enables testing).
type WebIdentityAssumer interface {
	AssumeRoleWithWebIdentity(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// Exchanger trades an identity token for temporary credentials.
type Exchanger interface {
	Exchange(ctx context.Context, cfg RoleConfig) (Credentials, error)
}

// STSExchanger performs one AssumeRoleWithWebIdentity call per Exchange.
type STSExchanger struct {
	client WebIdentityAssumer
	tokens TokenSource
}

// NewSTSExchanger returns an exchanger using client and tokens.
func NewSTSExchanger(client WebIdentityAssumer, tokens TokenSource) *STSExchanger {
	return &STSExchanger{client: client, tokens: tokens}
}

// LoadAWSConfig loads the SDK config used for the STS client. The exchange is
// unsigned, so the default credential chain is replaced with anonymous
// credentials, and retries are disabled so each refresh is one attempt.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
		config.WithRetryMaxAttempts(1),
		config.WithAppID(AppID()),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// Exchange reads the current token and assumes cfg.RoleARN with it.
func (e *STSExchanger) Exchange(ctx context.Context, cfg RoleConfig) (Credentials, error) {
	token, err := e.tokens.ReadToken()
	if err != nil {
		return Credentials{}, &ExchangeError{RoleARN: cfg.RoleARN, Err: err}
	}

	out, err := e.client.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(cfg.RoleARN),
		RoleSessionName:  aws.String(cfg.SessionName),
		WebIdentityToken: aws.String(string(token)),
		DurationSeconds:  aws.Int32(cfg.DurationSeconds()),
	})
	if err != nil {
		return Credentials{}, &ExchangeError{RoleARN: cfg.RoleARN, Err: err}
	}

	if out == nil || out.Credentials == nil ||
		out.Credentials.AccessKeyId == nil || out.Credentials.SecretAccessKey == nil ||
		out.Credentials.SessionToken == nil || out.Credentials.Expiration == nil {
		return Credentials{}, &ExchangeError{RoleARN: cfg.RoleARN, Err: ErrEmptyCredentials}
	}

	return Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiration:      aws.ToTime(out.Credentials.Expiration).UTC(),
	}, nil
}

// CallerIdentityGetter is the STS operation used to check credentials.
type CallerIdentityGetter interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity is who a set of credentials authenticates as.
type Identity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"user_id"`
}

// NewIdentityClient returns an STS client that signs with cred instead of the
// credentials in awsCfg.
func NewIdentityClient(awsCfg aws.Config, cred AWSCredential) *sts.Client {
	return sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		o.Credentials = credentials.NewStaticCredentialsProvider(cred.AccessKeyID, cred.SecretAccessKey, cred.SessionToken)
	})
}

// WhoAmI calls GetCallerIdentity.
func WhoAmI(ctx context.Context, client CallerIdentityGetter) (*Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("getting caller identity: %w", err)
	}
	return &Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}
