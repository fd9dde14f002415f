package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
)

// ErrTokenUnavailable is returned when the identity token file cannot be read.
var ErrTokenUnavailable = errors.New("identity token unavailable")

// TokenSource returns the current web identity token.
type TokenSource interface {
	ReadToken() ([]byte, error)
}

// FileTokenSource reads the token from a file the platform rewrites on
// rotation. The file is read on every call.
type FileTokenSource struct {
	path string
}

var _ stscreds.IdentityTokenRetriever = (*FileTokenSource)(nil)

// NewFileTokenSource returns a source for the token at path.
func NewFileTokenSource(path string) (*FileTokenSource, error) {
	if path == "" {
		return nil, ErrNoTokenPath
	}
	return &FileTokenSource{path: path}, nil
}

// Path returns the token file location.
func (s *FileTokenSource) Path() string {
	return s.path
}

// ReadToken returns the full contents of the token file.
func (s *FileTokenSource) ReadToken() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	return b, nil
}

// GetIdentityToken lets the source plug into stscreds.NewWebIdentityRoleProvider.
func (s *FileTokenSource) GetIdentityToken() ([]byte, error) {
	return s.ReadToken()
}
