package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stelgent-web/pkg/client"
	"stelgent-web/pkg/types"
)

func newFilesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"file"},
		Short:   "Manage the files of a project",
	}
	cmd.AddCommand(
		newFilesListCommand(app),
		newFilesTreeCommand(app),
		newFilesPutCommand(app),
		newFilesMoveCommand(app),
		newFilesRemoveCommand(app),
	)
	return cmd
}

func newFilesListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list PROJECT_ID",
		Aliases: []string{"ls"},
		Short:   "List file records in creation order",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			files, err := c.ListFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(files, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tSIZE\tPATH")
				for _, f := range files {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.ID, f.Type, len(f.Content), f.Path)
				}
				return tw.Flush()
			})
		},
	}
}

func newFilesTreeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tree PROJECT_ID",
		Short: "Print the project file tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			if app.printer.format == FormatText {
				text, err := c.TreeText(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = io.WriteString(app.Out, text)
				return err
			}
			tree, err := c.Tree(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(tree, nil)
		},
	}
}

func newFilesPutCommand(app *App) *cobra.Command {
	var (
		from   string
		folder bool
	)
	cmd := &cobra.Command{
		Use:   "put PROJECT_ID PATH",
		Short: "Create a file or replace its content",
		Long: `Create a file or replace the content of an existing one. Content is read
from --from, or from standard input when --from is not given.

Examples:
  stelgent files put p1 index.html --from ./index.html
  echo 'body{}' | stelgent files put p1 css/site.css
  stelgent files put p1 assets --folder`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, path := args[0], args[1]
			c, err := app.client()
			if err != nil {
				return err
			}

			if folder {
				f, err := c.CreateFile(cmd.Context(), projectID, client.FileInput{Path: path, Type: types.FileTypeFolder})
				if err != nil {
					return err
				}
				return app.printFile("Created folder", f)
			}

			content, err := readContent(app.In, from)
			if err != nil {
				return err
			}
			existing, err := findFile(cmd.Context(), c, projectID, path)
			if err != nil {
				return err
			}
			if existing == nil {
				f, err := c.CreateFile(cmd.Context(), projectID, client.FileInput{Path: path, Type: types.FileTypeFile, Content: content})
				if err != nil {
					return err
				}
				return app.printFile("Created", f)
			}
			if !existing.IsFile() {
				return fmt.Errorf("%s is a folder", path)
			}
			f, err := c.UpdateFile(cmd.Context(), projectID, existing.ID, client.FilePatch{Content: &content})
			if err != nil {
				return err
			}
			return app.printFile("Updated", f)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Local file to read content from (- for stdin)")
	cmd.Flags().BoolVar(&folder, "folder", false, "Create an explicit folder instead of a file")
	return cmd
}

func newFilesMoveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "mv PROJECT_ID OLD_PATH NEW_PATH",
		Aliases: []string{"rename"},
		Short:   "Rename a file or folder",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, oldPath, newPath := args[0], args[1], args[2]
			c, err := app.client()
			if err != nil {
				return err
			}
			existing, err := findFile(cmd.Context(), c, projectID, oldPath)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("no file at %s", oldPath)
			}
			f, err := c.UpdateFile(cmd.Context(), projectID, existing.ID, client.FilePatch{Path: &newPath})
			if err != nil {
				return err
			}
			return app.printFile("Moved "+oldPath+" to", f)
		},
	}
}

func newFilesRemoveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm PROJECT_ID PATH",
		Aliases: []string{"delete"},
		Short:   "Delete a file, or a folder with everything below it",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, path := args[0], args[1]
			c, err := app.client()
			if err != nil {
				return err
			}
			existing, err := findFile(cmd.Context(), c, projectID, path)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("no file at %s", path)
			}
			n, err := c.DeleteFile(cmd.Context(), projectID, existing.ID)
			if err != nil {
				return err
			}
			return app.printer.printMessage(fmt.Sprintf("Deleted %s (%d records)", path, n),
				map[string]any{"path": path, "deleted": n})
		},
	}
}

func newImportCommand(app *App) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "import PROJECT_ID SOURCE",
		Short: "Import a ZIP archive or a GitHub repository into a project",
		Long: `Import files into a project. SOURCE is a local .zip file or a GitHub
repository URL. Files at existing paths are overwritten; paths that would
collide with a folder are skipped.

Examples:
  stelgent import p1 ./site.zip
  stelgent import p1 https://github.com/owner/repo`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, source := args[0], args[1]
			c, err := app.client()
			if err != nil {
				return err
			}

			var result *types.ImportResult
			if strings.Contains(source, "github.com") {
				result, err = c.ImportGithub(cmd.Context(), projectID, source, token)
			} else {
				f, openErr := os.Open(source)
				if openErr != nil {
					return openErr
				}
				defer f.Close()
				result, err = c.ImportZip(cmd.Context(), projectID, filepath.Base(source), f)
			}
			if err != nil {
				return err
			}

			return app.printer.Print(result, func(w io.Writer) error {
				fmt.Fprintf(w, "Imported %d files, skipped %d\n", len(result.Imported), len(result.Skipped))
				for _, p := range result.Skipped {
					fmt.Fprintf(w, "  skipped %s\n", p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "github-token", os.Getenv("GITHUB_TOKEN"), "GitHub token for private repositories")
	return cmd
}

func (app *App) printFile(verb string, f *types.FileRecord) error {
	return app.printer.Print(f, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s %s (%s)\n", verb, f.Path, f.ID)
		return err
	})
}

// findFile returns the record at path, or nil when there is none.
func findFile(ctx context.Context, c *client.Client, projectID, path string) (*types.FileRecord, error) {
	files, err := c.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if files[i].Path == path {
			return &files[i], nil
		}
	}
	return nil, nil
}

func readContent(stdin io.Reader, from string) (string, error) {
	if from != "" && from != "-" {
		data, err := os.ReadFile(from)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
