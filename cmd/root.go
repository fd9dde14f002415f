package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/chukul/webidctl/internal"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	roleARN         string
	sessionName     string
	tokenFile       string
	region          string
	expiryWindow    time.Duration
	exchangeTimeout time.Duration
	verbose         bool
	logFormat       string

	logger = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "webidctl",
	Short: "webidctl exchanges web identity tokens for short-lived AWS credentials",
	Long: `webidctl reads a platform-rotated web identity token (for example an EKS
service account token), exchanges it with STS AssumeRoleWithWebIdentity and
hands the temporary credentials to whatever opens connections: a local
credentials endpoint, a shell, or a polling loop. Credentials are cached in
memory and refreshed on demand one minute before they expire.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&roleARN, "role-arn", "", "Role to assume (default $"+internal.EnvRoleARN+")")
	f.StringVar(&sessionName, "session-name", "", "STS role session name (default $"+internal.EnvSessionName+" or "+internal.DefaultSessionName+")")
	f.StringVar(&tokenFile, "token-file", "", "Web identity token file (default $"+internal.EnvTokenFile+")")
	f.StringVar(&region, "region", "", "STS region (default from the AWS environment)")
	f.DurationVar(&expiryWindow, "expiry-window", internal.DefaultExpiryWindow, "Refresh credentials this long before they expire")
	f.DurationVar(&exchangeTimeout, "exchange-timeout", internal.DefaultExchangeTimeout, "Timeout for a single STS exchange")
	f.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	f.StringVar(&logFormat, "log-format", "console", "Log encoding: console or json")
}

func newLogger(verbose bool, format string) (logr.Logger, error) {
	zc := zap.NewProductionConfig()
	switch format {
	case "json":
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return logr.Logger{}, fmt.Errorf("unsupported log format %q", format)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	zl, err := zc.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("building logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

// newCache resolves the role configuration from flags and environment and
// builds a cache for it. observer may be nil.
func newCache(ctx context.Context, observer internal.Observer) (*internal.CredentialCache, aws.Config, error) {
	if expiryWindow < 0 {
		return nil, aws.Config{}, fmt.Errorf("--expiry-window must not be negative")
	}
	if exchangeTimeout <= 0 {
		return nil, aws.Config{}, fmt.Errorf("--exchange-timeout must be positive")
	}

	cfg, err := internal.ResolveRoleConfig(internal.Settings{
		RoleARN:     roleARN,
		SessionName: sessionName,
		TokenFile:   tokenFile,
	})
	if err != nil {
		return nil, aws.Config{}, fmt.Errorf("resolving role configuration: %w", err)
	}

	opts := []internal.Option{
		internal.WithExpiryWindow(expiryWindow),
		internal.WithExchangeTimeout(exchangeTimeout),
		internal.WithLogger(logger.WithName("cache")),
	}
	if observer != nil {
		opts = append(opts, internal.WithObserver(observer))
	}
	return internal.NewWebIdentityCache(ctx, cfg, region, opts...)
}
