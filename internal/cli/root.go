// Package cli implements the stelgent command-line tool.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stelgent-web/pkg/client"
	"stelgent-web/pkg/logger"
)

// App carries the I/O streams and collaborators shared by every command.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// OpenKeyring opens the credential store. Tests swap in an array keyring.
	OpenKeyring func() (keyring.Keyring, error)
	// HTTPClient is used by the API client when set.
	HTTPClient *http.Client

	server  string
	output  string
	query   string
	debug   bool
	printer *Printer
}

// NewApp returns an App bound to the process streams and the system keyring.
func NewApp() *App {
	return &App{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		OpenKeyring: OpenKeyring,
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "stelgent",
		Short: "CLI for the Stelgent project workspace",
		Long: `stelgent manages Stelgent projects from the terminal.

Environment Variables:
  STELGENT_SERVER            API server address
  STELGENT_PUBLIC_KEY        Wallet public key (overrides the stored login)
  STELGENT_KEYRING_BACKEND   Force a keyring backend, e.g. "file"
  STELGENT_KEYRING_PASSWORD  Password for the file keyring backend`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if app.debug {
				if err := logger.Init("debug", ""); err != nil {
					return err
				}
			}

			formatStr := app.output
			if !cmd.Flags().Changed("output") && !isTerminal(app.Out) {
				formatStr = string(FormatJSON)
			}
			format, err := ParseFormat(formatStr)
			if err != nil {
				return err
			}
			app.printer = NewPrinter(app.Out, format, app.query)
			return nil
		},
	}
	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	server := os.Getenv("STELGENT_SERVER")
	if server == "" {
		server = client.DefaultBaseURL
	}
	flags := root.PersistentFlags()
	flags.StringVar(&app.server, "server", server, "API server address")
	flags.StringVarP(&app.output, "output", "o", string(FormatText), "Output format: text|json|yaml")
	flags.StringVarP(&app.query, "query", "q", "", "jq expression applied to structured output")
	flags.BoolVar(&app.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoamiCommand(app),
		newProjectsCommand(app),
		newFilesCommand(app),
		newImportCommand(app),
		newPreviewCommand(app),
		newPreviewDirCommand(app),
		newArchiveCommand(app),
	)
	return root
}

// client returns an API client for the selected server, authenticated with the
// stored wallet key when there is one.
func (app *App) client() (*client.Client, error) {
	key := os.Getenv("STELGENT_PUBLIC_KEY")
	if key == "" {
		creds, err := app.credentials()
		if err != nil {
			return nil, err
		}
		key, err = creds.PublicKey(app.server)
		if err != nil {
			return nil, err
		}
	}

	var opts []client.Option
	if app.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(app.HTTPClient))
	}
	return client.New(app.server, key, opts...), nil
}

func (app *App) credentials() (*Credentials, error) {
	ring, err := app.OpenKeyring()
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return &Credentials{ring: ring}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
