package main

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go-storefront-session/internal/model"
)

func passwordFlag(value string) (string, error) {
	if value != "" {
		return value, nil
	}
	if env := os.Getenv("STOREFRONT_PASSWORD"); env != "" {
		return env, nil
	}
	return "", errors.New("password required: use --password or STOREFRONT_PASSWORD")
}

func (c *cli) loginCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and merge the guest cart into the account cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pass, err := passwordFlag(password)
			if err != nil {
				return err
			}

			user, err := c.app.Session.Login(cmd.Context(), model.LoginRequest{Email: email, Password: pass})
			if err != nil {
				return err
			}
			return c.print(user)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or STOREFRONT_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) registerCommand() *cobra.Command {
	var req model.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pass, err := passwordFlag(req.Password)
			if err != nil {
				return err
			}
			req.Password = pass

			user, err := c.app.Session.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.print(user)
		},
	}

	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password (or STOREFRONT_PASSWORD)")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session; the local session is cleared even if the backend is unreachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.Session.Logout(cmd.Context())
			return c.print(map[string]any{"authenticated": false})
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the cached user",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.print(map[string]any{
				"authenticated": c.app.Session.IsAuthenticated(),
				"admin":         c.app.Session.IsAdmin(),
				"user":          c.app.Session.CurrentUser(),
			})
		},
	}
}

func (c *cli) profileCommand() *cobra.Command {
	var firstName, lastName, phone, avatar string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Fetch the profile, or update it when any field flag is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var update model.ProfileUpdate
			changed := false
			for name, target := range map[string]**string{
				"first-name": &update.FirstName,
				"last-name":  &update.LastName,
				"phone":      &update.Phone,
				"avatar":     &update.Avatar,
			} {
				if cmd.Flags().Changed(name) {
					value, _ := cmd.Flags().GetString(name)
					*target = &value
					changed = true
				}
			}

			var (
				user *model.User
				err  error
			)
			if changed {
				user, err = c.app.Session.UpdateProfile(cmd.Context(), update)
			} else {
				user, err = c.app.Session.Profile(cmd.Context())
			}
			if err != nil {
				return err
			}
			return c.print(user)
		},
	}

	cmd.Flags().StringVar(&firstName, "first-name", "", "New first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "New last name")
	cmd.Flags().StringVar(&phone, "phone", "", "New phone number")
	cmd.Flags().StringVar(&avatar, "avatar", "", "New avatar URL")
	return cmd
}

func (c *cli) changePasswordCommand() *cobra.Command {
	var req model.ChangePasswordRequest

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.ChangePassword(cmd.Context(), req); err != nil {
				return err
			}
			return c.print(map[string]any{"changed": true})
		},
	}

	cmd.Flags().StringVar(&req.CurrentPassword, "current", "", "Current password")
	cmd.Flags().StringVar(&req.NewPassword, "new", "", "New password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func (c *cli) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			record, err := c.app.Refresh.ForceRefresh(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(map[string]any{"expiresAt": record.ExpiresAt.Format(time.RFC3339)})
		},
	}
}

func (c *cli) tokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show access token expiry and the refresh schedule",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			tokens := c.app.Tokens
			info := map[string]any{
				"authenticated":   tokens.IsAuthenticated(),
				"expired":         tokens.IsTokenExpired(""),
				"expiringSoon":    tokens.IsTokenExpiringSoon("", c.app.Config.TokenRefreshBuffer),
				"refreshState":    c.app.Refresh.State().String(),
				"nextRefreshIn":   c.app.Refresh.TimeUntilNextRefresh().Round(time.Second).String(),
				"hasRefreshToken": tokens.RefreshToken() != "",
			}
			if exp, ok := tokens.TokenExpiration(""); ok {
				info["expiresAt"] = exp.Format(time.RFC3339)
				info["expiresIn"] = tokens.TimeUntilExpiration("").Round(time.Second).String()
			}
			return c.print(info)
		},
	}
}
