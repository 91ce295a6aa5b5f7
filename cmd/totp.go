package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/depobot/internal/config"
	"github.com/teemow/depobot/internal/deposition"
)

func newTOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totp",
		Short: "Print the current one-time code for the deposition API",
		Long: `Print the code sent as x-totp-token to the deposition API, using
TOTP_COMMAND or TOTP_SECRET from the environment. Useful to check a
secret against another authenticator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			return printCode(cmd.Context(), cmd.OutOrStdout(), config.LoadDeposition(os.Getenv), time.Now())
		},
	}
}

func printCode(ctx context.Context, w io.Writer, cfg config.Deposition, now time.Time) error {
	src, err := codeSource(cfg)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var code string
	if s, ok := src.(*deposition.TOTPSource); ok {
		code, err = s.CodeAt(now)
	} else {
		code, err = src.Code(ctx)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s (valid for %s)\n", code, deposition.Remaining(now))
	return err
}
