package command

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"plexanibridge/internal/webhookapi"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

// tokenCmd mints a service token offline: since the control surface
// validates tokens with an HMAC secret, minting needs no running
// server, only the same secret the service was started with.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "mint a long-lived bearer token for the control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("PLEXANIBRIDGE_JWT_SECRET")
		if secret == "" {
			return fmt.Errorf("PLEXANIBRIDGE_JWT_SECRET must be set to the service's global.jwt_secret")
		}
		issuer := webhookapi.NewTokenIssuer(secret)
		signed, err := issuer.Mint(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (0 = no expiry)")
}
