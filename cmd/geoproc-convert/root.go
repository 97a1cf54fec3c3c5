package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/exitcode"
	"github.com/USACE/cumulus-geoproc/internal/plugin"
)

// Converter is the part of the plugin registry the commands drive.
type Converter interface {
	Dispatch(ctx context.Context, slug, src, dst string) ([]domain.Product, error)
	Resolve(ctx context.Context, slug, src string) ([]plugin.Resolution, error)
	Slugs() []string
}

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func newRootCmd(load func() (Converter, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "geoproc-convert",
		Short:         "Run Cumulus conversion routines against local files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConvertCmd(load), newResolveCmd(load), newPluginsCmd(load))
	return root
}

func newConvertCmd(load func() (Converter, error)) *cobra.Command {
	var slug, src, dst string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a source file to cloud-optimized GeoTIFF products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			products, err := c.Dispatch(cmd.Context(), slug, src, dst)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), products); err != nil {
				return err
			}
			if len(products) == 0 {
				return &codedError{code: exitcode.DataError, err: fmt.Errorf("%s produced no products from %s", slug, src)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&slug, "plugin", "", "acquirable slug selecting the conversion routine")
	cmd.Flags().StringVar(&src, "src", "", "source file")
	cmd.Flags().StringVar(&dst, "dst", "", "output directory (default: the source directory)")
	_ = cmd.MarkFlagRequired("plugin")
	_ = cmd.MarkFlagRequired("src")
	return cmd
}

func newResolveCmd(load func() (Converter, error)) *cobra.Command {
	var slug, src string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which band each output of a routine selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			res, err := c.Resolve(cmd.Context(), slug, src)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&slug, "plugin", "", "acquirable slug selecting the conversion routine")
	cmd.Flags().StringVar(&src, "src", "", "source file")
	_ = cmd.MarkFlagRequired("plugin")
	_ = cmd.MarkFlagRequired("src")
	return cmd
}

func newPluginsCmd(load func() (Converter, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List registered acquirable slugs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := load()
			if err != nil {
				return err
			}
			for _, s := range c.Slugs() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
