package deposition

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the validity window of one code.
const Period = 30 * time.Second

var codePattern = regexp.MustCompile(`^\d{6}$`)

// CodeSource produces the one-time code for a single request.
type CodeSource interface {
	Code(ctx context.Context) (string, error)
}

// TOTPSource derives codes from a shared base32 secret.
type TOTPSource struct {
	secret string
	now    func() time.Time
}

// NewTOTPSource returns a source for secret.
func NewTOTPSource(secret string) *TOTPSource {
	return &TOTPSource{secret: strings.TrimSpace(secret), now: time.Now}
}

// Code returns the code for the current time window.
func (s *TOTPSource) Code(_ context.Context) (string, error) {
	return s.CodeAt(s.now())
}

// CodeAt returns the code for the window containing t.
func (s *TOTPSource) CodeAt(t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(s.secret, t, totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return validCode(code)
}

// Remaining returns how long the code for t stays valid.
func Remaining(t time.Time) time.Duration {
	elapsed := time.Duration(t.Unix()%int64(Period/time.Second)) * time.Second
	return Period - elapsed
}

// CommandSource runs an external generator and reads the code from its
// standard output.
type CommandSource struct {
	name string
	args []string
}

// NewCommandSource parses command into a program and its arguments. No
// shell is involved.
func NewCommandSource(command string) (*CommandSource, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("totp command is empty")
	}
	return &CommandSource{name: fields[0], args: fields[1:]}, nil
}

// Code runs the command and validates its output.
func (s *CommandSource) Code(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, s.name, s.args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to run totp command %s: %w", s.name, err)
	}
	return validCode(strings.TrimSpace(string(out)))
}

func validCode(code string) (string, error) {
	if !codePattern.MatchString(code) {
		return "", fmt.Errorf("invalid totp code format")
	}
	return code, nil
}
