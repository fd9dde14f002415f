package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token []byte
	err   error
}

func (s *staticTokens) ReadToken() ([]byte, error) {
	return s.token, s.err
}

type capturedInput struct {
	roleARN  string
	session  string
	token    string
	duration int32
}

// fakeSTS records AssumeRoleWithWebIdentity inputs. respond builds the
// credentials returned; output, when set, is returned verbatim instead.
type fakeSTS struct {
	inputs  []capturedInput
	respond func(in *capturedInput) (Credentials, error)
	output  *sts.AssumeRoleWithWebIdentityOutput
}

func (f *fakeSTS) AssumeRoleWithWebIdentity(_ context.Context, params *sts.AssumeRoleWithWebIdentityInput, _ ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
	in := capturedInput{
		roleARN:  aws.ToString(params.RoleArn),
		session:  aws.ToString(params.RoleSessionName),
		token:    aws.ToString(params.WebIdentityToken),
		duration: aws.ToInt32(params.DurationSeconds),
	}
	f.inputs = append(f.inputs, in)
	if f.output != nil {
		return f.output, nil
	}
	creds, err := f.respond(&in)
	if err != nil {
		return nil, err
	}
	return &sts.AssumeRoleWithWebIdentityOutput{
		Credentials: &types.Credentials{
			AccessKeyId:     aws.String(creds.AccessKeyID),
			SecretAccessKey: aws.String(creds.SecretAccessKey),
			SessionToken:    aws.String(creds.SessionToken),
			Expiration:      aws.Time(creds.Expiration),
		},
	}, nil
}

func TestSTSExchangerRequest(t *testing.T) {
	exp := time.Date(2024, 5, 1, 12, 15, 0, 0, time.FixedZone("CEST", 2*60*60))
	client := &fakeSTS{respond: func(*capturedInput) (Credentials, error) {
		return Credentials{
			AccessKeyID:     "AKIAEXAMPLE",
			SecretAccessKey: "s3cr3t",
			SessionToken:    "sess-1",
			Expiration:      exp,
		}, nil
	}}
	ex := NewSTSExchanger(client, &staticTokens{token: []byte("tok-123\n")})

	creds, err := ex.Exchange(context.Background(), testRole)
	require.NoError(t, err)
	require.Equal(t, Credentials{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "s3cr3t",
		SessionToken:    "sess-1",
		Expiration:      exp.UTC(),
	}, creds)

	require.Equal(t, []capturedInput{{
		roleARN:  testRole.RoleARN,
		session:  testRole.SessionName,
		token:    "tok-123\n",
		duration: 900,
	}}, client.inputs)
}

func TestSTSExchangerDefaultDuration(t *testing.T) {
	client := &fakeSTS{respond: func(*capturedInput) (Credentials, error) {
		return Credentials{AccessKeyID: "a", SecretAccessKey: "b", SessionToken: "c", Expiration: time.Now()}, nil
	}}
	cfg := testRole
	cfg.Duration = 0

	_, err := NewSTSExchanger(client, &staticTokens{token: []byte("t")}).Exchange(context.Background(), cfg)
	require.NoError(t, err)
	require.EqualValues(t, 900, client.inputs[0].duration)
}

func TestSTSExchangerTokenUnavailable(t *testing.T) {
	client := &fakeSTS{}
	tokens := &staticTokens{err: ErrTokenUnavailable}

	_, err := NewSTSExchanger(client, tokens).Exchange(context.Background(), testRole)
	require.ErrorIs(t, err, ErrTokenUnavailable)
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Empty(t, exErr.Code())
	require.Empty(t, client.inputs, "STS must not be called without a token")
}

func TestSTSExchangerServiceError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "InvalidIdentityToken", Message: "token expired"}
	client := &fakeSTS{respond: func(*capturedInput) (Credentials, error) {
		return Credentials{}, apiErr
	}}

	_, err := NewSTSExchanger(client, &staticTokens{token: []byte("t")}).Exchange(context.Background(), testRole)
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, "InvalidIdentityToken", exErr.Code())
	require.Equal(t, testRole.RoleARN, exErr.RoleARN)
	require.Contains(t, err.Error(), testRole.RoleARN)
	require.True(t, errors.Is(err, apiErr))
}

func TestSTSExchangerEmptyCredentials(t *testing.T) {
	tests := []struct {
		name   string
		output *sts.AssumeRoleWithWebIdentityOutput
	}{
		{
			name:   "no credentials",
			output: &sts.AssumeRoleWithWebIdentityOutput{},
		},
		{
			name: "missing session token",
			output: &sts.AssumeRoleWithWebIdentityOutput{Credentials: &types.Credentials{
				AccessKeyId:     aws.String("AKIA"),
				SecretAccessKey: aws.String("secret"),
				Expiration:      aws.Time(time.Now().Add(time.Hour)),
			}},
		},
		{
			name: "missing expiration",
			output: &sts.AssumeRoleWithWebIdentityOutput{Credentials: &types.Credentials{
				AccessKeyId:     aws.String("AKIA"),
				SecretAccessKey: aws.String("secret"),
				SessionToken:    aws.String("session"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSTS{output: tt.output}
			_, err := NewSTSExchanger(client, &staticTokens{token: []byte("t")}).Exchange(context.Background(), testRole)
			require.ErrorIs(t, err, ErrEmptyCredentials)
		})
	}
}

type fakeIdentity struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f *fakeIdentity) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestWhoAmI(t *testing.T) {
	id, err := WhoAmI(context.Background(), &fakeIdentity{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:sts::123456789012:assumed-role/app/app-session"),
		UserId:  aws.String("AROAEXAMPLE:app-session"),
	}})
	require.NoError(t, err)
	require.Equal(t, &Identity{
		Account: "123456789012",
		ARN:     "arn:aws:sts::123456789012:assumed-role/app/app-session",
		UserID:  "AROAEXAMPLE:app-session",
	}, id)

	_, err = WhoAmI(context.Background(), &fakeIdentity{err: errors.New("ExpiredToken")})
	require.ErrorContains(t, err, "getting caller identity")
}

func TestNewIdentityClientUsesGivenCredentials(t *testing.T) {
	client := NewIdentityClient(aws.Config{Region: "eu-west-1"}, AWSCredential{
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		SessionToken:    "session",
	})

	creds, err := client.Options().Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "AKIA", creds.AccessKeyID)
	require.Equal(t, "session", creds.SessionToken)
}
