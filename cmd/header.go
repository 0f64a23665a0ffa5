package cmd

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/logging"
	"github.com/mj1618/abivis/internal/selector"
	"github.com/spf13/cobra"
)

var headerCmd = &cobra.Command{
	Use:   "header [library]",
	Short: "Generate a C export header for a library",
	Long: `Generate a C header that makes the visibility decision with plain
preprocessor conditionals and defines <PREFIX>_API for the library's public
declarations.

Examples:
  abivis header mylib > include/mylib_export.h
  abivis header mylib --out include/mylib_export.h
  abivis header --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHeader,
}

func init() {
	rootCmd.AddCommand(headerCmd)
	headerCmd.Flags().StringP("out", "o", "", "Write to this file instead of stdout")
	headerCmd.Flags().Bool("all", false, "Write every configured library's header to its configured path")
}

func runHeader(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	all, _ := cmd.Flags().GetBool("all")
	svc := newService()

	if all {
		if len(args) > 0 || out != "" {
			return errors.New("--all takes no library or --out")
		}
		return writeAllHeaders(svc)
	}
	if len(args) == 0 {
		return errors.WithHint(errors.New("no library given"), "pass a library name or --all")
	}

	if out == "" {
		return svc.Header(cmd.OutOrStdout(), args[0])
	}
	return writeHeader(svc, args[0], out)
}

// writeAllHeaders resolves relative header paths against the config file's
// directory.
func writeAllHeaders(svc *selector.Service) error {
	n := 0
	for _, l := range projectConfig.Libraries {
		if l.Header == "" {
			logging.Logger.Debugw("no header path configured", "library", l.Name)
			continue
		}
		path := l.Header
		if !filepath.IsAbs(path) && projectConfig.File != "" {
			path = filepath.Join(filepath.Dir(projectConfig.File), path)
		}
		if err := writeHeader(svc, l.Name, path); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		return errors.WithHint(errors.New("no library has a header path"),
			"set libraries[].header in the abivis config file")
	}
	return nil
}

// writeHeader renders to memory first so a failed render leaves any
// existing file untouched.
func writeHeader(svc *selector.Service, lib, path string) error {
	var buf bytes.Buffer
	if err := svc.Header(&buf, lib); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	logging.Logger.Infow("wrote header", "library", lib, "path", path)
	return nil
}
