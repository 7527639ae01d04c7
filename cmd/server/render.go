package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scholarbridge/internal/bootstrap"
	"scholarbridge/internal/pkg/pdfextract"
)

func renderCmd() *cobra.Command {
	var (
		out        string
		templateID string
		dumpText   bool
	)
	cmd := &cobra.Command{
		Use:   "render [record-id]",
		Short: "Render a student profile PDF to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			docs, err := bootstrap.NewDocuments(cfg)
			if err != nil {
				return err
			}

			doc, err := docs.Generate(context.Background(), args[0], templateID)
			if err != nil {
				return err
			}
			if out == "" {
				out = doc.Filename
			}
			if err := os.WriteFile(out, doc.Body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(doc.Body))

			if dumpText {
				text, err := pdfextract.ExtractBytes(doc.Body)
				if err != nil {
					return fmt.Errorf("extract text: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default <name>_<id>.pdf)")
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "template id (default from config)")
	cmd.Flags().BoolVar(&dumpText, "dump-text", false, "print the text layer of the rendered document")
	return cmd
}
