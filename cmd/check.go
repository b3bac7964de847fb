package cmd

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/tools/go/packages"
	"gopkg.in/yaml.v3"

	"github.com/goprove/goprove/formula"
	"github.com/goprove/goprove/proof"
	"github.com/goprove/goprove/symexec"
	"github.com/goprove/goprove/verify"
)

// checkCmd represents the command provider for verification
var checkCmd = &cobra.Command{
	Use:          "check [files or packages]",
	Short:        "Verifies annotated functions in the given files or packages",
	Long:         `Verifies annotated functions in the given files or packages`,
	Args:         cobra.MinimumNArgs(1),
	RunE:         cmdRunCheck,
	SilenceUsage: true,
}

func init() {
	addCheckFlags(checkCmd.Flags())
	rootCmd.AddCommand(checkCmd)
}

func cmdRunCheck(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	cacheDB, _ := cmd.Flags().GetString("cache-db")
	format, _ := cmd.Flags().GetString("format")
	all, _ := cmd.Flags().GetBool("all")
	watch, _ := cmd.Flags().GetBool("watch")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch format {
	case "text", "json", "yaml":
	default:
		return errors.Errorf("unknown output format %q (want text, json or yaml)", format)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	files, err := resolveTargets(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no Go files matched the given targets")
	}

	verifier, err := verify.New(verify.Options{
		Timeout:  timeout,
		CacheDir: cacheDir,
		CacheDB:  cacheDB,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer verifier.Close()

	run := func() (int, error) {
		certs, err := checkFiles(verifier, files, all, logger)
		if err != nil {
			return 0, err
		}
		if err := printCerts(cmd.OutOrStdout(), certs, format); err != nil {
			return 0, err
		}
		return countFailed(certs), nil
	}

	failed, err := run()
	if err != nil {
		return err
	}
	if !watch {
		if failed > 0 {
			return errors.Errorf("%d function(s) failed verification", failed)
		}
		return nil
	}
	return watchAndRerun(files, logger, func() {
		if _, err := run(); err != nil {
			logger.Error().Err(err).Msg("re-verification failed")
		}
	})
}

// checkFiles verifies every eligible function in source order.
// Functions proved earlier in the run become callable contracts for
// the functions after them.
func checkFiles(verifier *verify.Verifier, files []string, all bool, logger zerolog.Logger) ([]*proof.Certificate, error) {
	var certs []*proof.Certificate
	contracts := make(map[string]formula.Contract)

	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, path, src, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}

		consts := fileConsts(file)

		for _, d := range file.Decls {
			decl, ok := d.(*ast.FuncDecl)
			if !ok {
				continue
			}
			name := decl.Name.Name

			dirs, err := parseDirectives(decl)
			if err != nil {
				certs = append(certs, &proof.Certificate{
					FunctionName: name,
					Status:       proof.StatusTranslationError,
					Message:      err.Error(),
				})
				continue
			}
			if dirs.empty() && !all {
				continue
			}

			source := string(src[fset.Position(decl.Pos()).Offset:fset.Position(decl.End()).Offset])
			opts := []verify.VerifyOption{verify.WithContracts(contracts)}
			for cname, cval := range consts {
				opts = append(opts, verify.WithConst(cname, cval))
			}

			var pre, post *formula.Predicate
			var retSort formula.Sort
			params, ret, serr := symexec.SignatureOf(fset, decl)
			if serr == nil {
				retSort = ret
				pre = dirs.prePredicate(params, contracts)
				post = dirs.postPredicate(params, contracts)
				if pre != nil {
					opts = append(opts, verify.WithPre(pre))
				}
				if post != nil {
					opts = append(opts, verify.WithPost(post))
				}
			}

			logger.Debug().Str("function", name).Str("file", path).Msg("verifying")
			cert := verifier.Verify(verify.Function{Name: name, Source: source}, opts...)
			certs = append(certs, cert)

			// A proved contract is now a fact later functions can call on.
			if cert.Verified() && !dirs.empty() {
				contracts[name] = formula.Contract{Pre: pre, Post: post, ReturnSort: retSort}
			}
		}
	}
	return certs, nil
}

// fileConsts collects the package-level constant declarations whose
// values the expression walker can evaluate. They become names visible
// inside the verified bodies of the same file.
func fileConsts(file *ast.File) map[string]formula.Expr {
	consts := make(map[string]formula.Expr)
	for _, d := range file.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			continue
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok || len(vs.Values) != len(vs.Names) {
				continue
			}
			for i, id := range vs.Names {
				v, err := symexec.EvalExpr(nil, vs.Values[i], consts, nil)
				if err != nil {
					continue
				}
				consts[id.Name] = v
			}
		}
	}
	return consts
}

func countFailed(certs []*proof.Certificate) int {
	failed := 0
	for _, c := range certs {
		switch c.Status {
		case proof.StatusVerified, proof.StatusSkipped:
		default:
			failed++
		}
	}
	return failed
}

func printCerts(out io.Writer, certs []*proof.Certificate, format string) error {
	switch format {
	case "json":
		d, err := json.MarshalIndent(certs, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(d))
		return err
	case "yaml":
		d, err := yaml.Marshal(certs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, string(d))
		return err
	}
	verified, total := 0, len(certs)
	for _, c := range certs {
		if c.Verified() {
			verified++
		}
		if _, err := fmt.Fprintln(out, c); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "%d/%d verified\n", verified, total)
	return err
}

// watchAndRerun blocks, re-running rerun whenever one of the target
// files is written. Events are debounced briefly because editors fire
// several per save.
func watchAndRerun(files []string, logger zerolog.Logger, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "starting file watcher")
	}
	defer watcher.Close()

	targets := make(map[string]struct{}, len(files))
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return errors.Wrapf(err, "watching %s", d)
		}
	}
	logger.Info().Int("files", len(files)).Msg("watching for changes")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	var pending *time.Timer
	trigger := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, ok := targets[abs]; !ok {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case <-trigger:
			logger.Info().Msg("change detected, re-verifying")
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("file watcher error")
		case <-interrupt:
			logger.Info().Msg("interrupted")
			return nil
		}
	}
}

// resolveTargets expands the command arguments into Go files: a .go
// path passes through, anything else is treated as a package pattern.
func resolveTargets(args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(f string) {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			files = append(files, f)
		}
	}
	var patterns []string
	for _, arg := range args {
		if strings.HasSuffix(arg, ".go") {
			add(arg)
			continue
		}
		patterns = append(patterns, arg)
	}
	if len(patterns) > 0 {
		cfg := &packages.Config{Mode: packages.NeedName | packages.NeedFiles}
		pkgs, err := packages.Load(cfg, patterns...)
		if err != nil {
			return nil, errors.Wrap(err, "resolving packages")
		}
		for _, pkg := range pkgs {
			for _, f := range pkg.GoFiles {
				add(f)
			}
		}
	}
	return files, nil
}
