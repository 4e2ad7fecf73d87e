package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shotreview/internal/usertoken"
	"shotreview/services/review/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		name string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed review token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(config.ResolvePath(path))
			if err != nil {
				return err
			}
			leeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
			if err != nil {
				return err
			}
			resolver, err := usertoken.NewResolver(usertoken.Config{
				Users:             cfg.Users,
				ReviewTokenSecret: cfg.ReviewTokenSecret,
				Issuer:            cfg.JWTIssuer,
				Audience:          cfg.JWTAudience,
				Leeway:            leeway,
			})
			if err != nil {
				return err
			}
			token, err := resolver.Issue(name, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "client", "admin or client")
	cmd.Flags().DurationVar(&ttl, "ttl", 7*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print a bcrypt hash for a static user token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := usertoken.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
