package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-files/pkg/filestore"
	"github.com/tendant/simple-files/pkg/filestore/config"
)

func withRuntime(cmd *cobra.Command, build RuntimeBuilder, fn func(ctx context.Context, rt *config.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := build(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to open file store: %w", err)
	}
	defer rt.Close()

	return fn(ctx, rt)
}

// NewUploadCommand creates the upload command
func NewUploadCommand(build RuntimeBuilder) *cobra.Command {
	var contentType string
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]

			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", filePath, err)
			}
			defer f.Close()

			if name == "" {
				name = filepath.Base(filePath)
			}
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(filePath))
			}
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			return withRuntime(cmd, build, func(ctx context.Context, rt *config.Runtime) error {
				record, err := rt.Service.Upload(ctx, filestore.UploadRequest{
					Filename:    name,
					ContentType: contentType,
					Body:        f,
				})
				if err != nil {
					return fmt.Errorf("upload failed: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Upload successful!\n")
				fmt.Fprintf(out, "File ID: %s\n", record.ID)
				fmt.Fprintf(out, "Size: %d bytes\n", record.SizeBytes)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: guessed from extension)")
	cmd.Flags().StringVar(&name, "name", "", "stored filename (default: base name of the file)")

	return cmd
}

// NewDownloadCommand creates the download command
func NewDownloadCommand(build RuntimeBuilder) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a file by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, build, func(ctx context.Context, rt *config.Runtime) error {
				record, body, err := rt.Service.Download(ctx, args[0])
				if err != nil {
					return fmt.Errorf("download failed: %w", err)
				}
				defer body.Close()

				if outputPath == "-" {
					_, err := io.Copy(cmd.OutOrStdout(), body)
					return err
				}

				target := outputPath
				if target == "" {
					target = filepath.Base(record.Filename)
				}
				return writeFile(target, body)
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", `output path, "-" for stdout (default: stored filename)`)

	return cmd
}

// writeFile leaves no partial file behind when the copy fails
func writeFile(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("download interrupted: %w", err)
	}
	return f.Close()
}

// NewListCommand creates the list command
func NewListCommand(build RuntimeBuilder) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, build, func(ctx context.Context, rt *config.Runtime) error {
				records, err := rt.Service.ListFiles(ctx)
				if err != nil {
					return fmt.Errorf("list failed: %w", err)
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSIZE\tCREATED\tCONTENT TYPE\tFILENAME")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
						r.ID, r.SizeBytes, r.CreatedAt.Format(time.RFC3339), r.ContentType, r.Filename)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")

	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand(build RuntimeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id>",
		Short: "Show the record of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, build, func(ctx context.Context, rt *config.Runtime) error {
				record, err := rt.Service.GetFile(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get failed: %w", err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(record)
			})
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(build RuntimeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>...",
		Short: "Delete files by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, build, func(ctx context.Context, rt *config.Runtime) error {
				for _, id := range args {
					if err := rt.Service.DeleteFile(ctx, id); err != nil {
						return fmt.Errorf("delete %s failed: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

// NewSweepCommand creates the sweep command
func NewSweepCommand(build RuntimeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove blobs that no catalog record references",
		Long: `Run one orphan sweep. Blobs younger than SWEEP_GRACE_PERIOD are kept
so uploads in flight are never removed. Object stores date multipart uploads
from when they started, so the grace period must exceed the longest upload.
Unreferenced blobs are checked against the catalog again SWEEP_CONFIRM_DELAY
later before they are deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, build, func(ctx context.Context, rt *config.Runtime) error {
				result, err := rt.Sweeper.RunOnce(ctx)
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned: %d\n", result.Scanned)
				fmt.Fprintf(out, "Deleted: %d\n", result.PendingDeleted+result.ScannedDeleted)
				fmt.Fprintf(out, "Errors: %d\n", result.Errors)
				return nil
			})
		},
	}
}

// NewEnvCommand prints the supported environment variables
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables read by the server and CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := config.Usage()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), usage)
			return nil
		},
	}
}
