package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lamp/pkg/auth"
	"github.com/harrisonrobin/lamp/pkg/config"
	"github.com/harrisonrobin/lamp/pkg/dav"
	"github.com/harrisonrobin/lamp/pkg/google"
)

func authCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage source credentials",
	}
	cmd.AddCommand(authImportCmd(a), authLoginCmd(a), authPasswordCmd(a), authListCmd(a), authLogoutCmd(a))
	return cmd
}

func authImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <credentials.json>",
		Short: "Store the OAuth client secrets downloaded from the Google API console",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("unable to read client secret file: %w", err)
			}
			if _, err := auth.Config(data, auth.CalendarScopes); err != nil {
				return err
			}
			if err := a.secrets.Put(auth.ClientSecretsService, string(data)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Client secrets stored. Run 'lamp auth login <source>' next.")
			return nil
		},
	}
}

func (a *app) sourceOfType(name string, types ...string) (config.Source, error) {
	src, ok := a.cfg.Source(name)
	if !ok {
		return config.Source{}, fmt.Errorf("unknown source %q", name)
	}
	for _, t := range types {
		if strings.EqualFold(src.Type, t) {
			return src, nil
		}
	}
	return config.Source{}, fmt.Errorf("source %s is of type %s, expected %s", name, src.Type, strings.Join(types, " or "))
}

func authLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <source>",
		Short: "Authorize a Google Calendar source in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.sourceOfType(args[0], "google")
			if err != nil {
				return err
			}
			oauthConfig, err := auth.LoadConfig(a.secrets, auth.CalendarScopes)
			if err != nil {
				return err
			}
			service := google.TokenService(src.Adapter())
			if err := auth.Login(cmd.Context(), oauthConfig, a.secrets, service, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved as %s\n", service)
			return nil
		},
	}
}

func authPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "password <source>",
		Short: "Store the password of a WebDAV or CalDAV source, read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.sourceOfType(args[0], "webdav", "caldav")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", src.Name)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				return errors.New("empty password")
			}
			return a.secrets.Put(dav.CredentialService(src.Adapter()), password)
		},
	}
}

func authListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.secrets.Services()
			if err != nil {
				return err
			}
			for _, s := range services {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func authLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout <source>",
		Short: "Forget the token or password of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, ok := a.cfg.Source(args[0])
			if !ok {
				return fmt.Errorf("unknown source %q", args[0])
			}
			service := dav.CredentialService(src.Adapter())
			if strings.EqualFold(src.Type, "google") {
				service = google.TokenService(src.Adapter())
			}
			return a.secrets.Delete(service)
		},
	}
}
