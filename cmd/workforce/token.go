package main

import (
	"fmt"
	"time"

	"axiapac.com/workforce/security"
	"github.com/spf13/cobra"
)

var (
	tokenIdentity security.Identity
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Create a bearer token for testing and device provisioning",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenIdentity.Role != security.RoleEmployee && tokenIdentity.Role != security.RoleAdmin {
			return fmt.Errorf("role must be %s or %s", security.RoleEmployee, security.RoleAdmin)
		}
		if tokenIdentity.Role == security.RoleEmployee && tokenIdentity.CompanyCode == "" {
			return fmt.Errorf("employee tokens need --company")
		}
		token, err := security.CreateIdentityToken(tokenIdentity, cfg.JWTSecret, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token (is JWT_SECRET set?): %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenIdentity.CompanyCode, "company", "", "company code the token is bound to")
	tokenCmd.Flags().StringVar(&tokenIdentity.EmployeeNo, "employee", "", "employee number the token is bound to")
	tokenCmd.Flags().StringVar(&tokenIdentity.Role, "role", security.RoleEmployee, "employee or admin")
	tokenCmd.Flags().StringVar(&tokenIdentity.DeviceID, "device", "", "device id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
