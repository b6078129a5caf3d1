package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stelgent-web/pkg/client"
	"stelgent-web/pkg/types"
)

func newLoginCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login [PUBLIC_KEY]",
		Short: "Connect a Stellar wallet and store its public key",
		Long: `Connect a Stellar wallet to the server and store the public key in the
system keychain. The key is read from standard input when not given.

Examples:
  stelgent login GABC...
  echo GABC... | stelgent login`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				if isTerminal(app.Err) {
					fmt.Fprint(app.Err, "Stellar public key: ")
				}
				line, err := bufio.NewReader(app.In).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				key = line
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("a Stellar public key is required")
			}

			c, err := app.anonymousClient()
			if err != nil {
				return err
			}
			user, err := c.Connect(cmd.Context(), key)
			if err != nil {
				return err
			}

			creds, err := app.credentials()
			if err != nil {
				return err
			}
			if err := creds.Save(app.server, c.PublicKey()); err != nil {
				return fmt.Errorf("storing credentials: %w", err)
			}
			return app.printer.Print(user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged in as %s (user %s)\n", user.StellarPublicKey, user.ID)
				return err
			})
		},
	}
}

func newLogoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored wallet for the selected server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := app.credentials()
			if err != nil {
				return err
			}
			removed, err := creds.Remove(app.server)
			if err != nil {
				return err
			}
			if !removed {
				return app.printer.printMessage("Not logged in", map[string]any{"server": app.server})
			}
			return app.printer.printMessage("Logged out", map[string]any{"server": app.server})
		},
	}
}

func newWhoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			user, err := c.Me(cmd.Context())
			if errors.Is(err, client.ErrNoCredential) {
				return errors.New("not logged in; run 'stelgent login'")
			}
			if err != nil {
				return err
			}
			return app.printer.Print(user, func(w io.Writer) error {
				return printUser(w, user, app.server)
			})
		},
	}
}

func printUser(w io.Writer, user *types.User, server string) error {
	openai := "not set"
	if user.OpenAIAPIKey != nil {
		openai = "set"
	}
	_, err := fmt.Fprintf(w, "server:         %s\nuser:           %s\npublic key:     %s\nopenai api key: %s\n",
		server, user.ID, user.StellarPublicKey, openai)
	return err
}

// anonymousClient is a client that carries no stored credentials.
func (app *App) anonymousClient() (*client.Client, error) {
	var opts []client.Option
	if app.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(app.HTTPClient))
	}
	return client.New(app.server, "", opts...), nil
}
