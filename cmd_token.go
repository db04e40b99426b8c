package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelc143/Planarc/services"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		email  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if cfg.UsesDefaultSecret() {
				logger.Warn("signing with the development default secret")
			}

			token, err := services.NewAuthService(cfg.JWTSecret, cfg.TokenTTL).
				CreateJWT(services.Identity{UserID: userID, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id to place in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
