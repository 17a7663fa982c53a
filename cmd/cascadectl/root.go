package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/pkg/logadapter"
	"github.com/goliatone/go-cascade/provider/httpapi"
	"github.com/goliatone/go-cascade/provider/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var persistentFlags = []string{"config", "fixture", "base-url", "token", "timeout", "verbose", "format"}

// newRootCmd builds the command tree. Flags can also be set through
// CASCADE_* environment variables, e.g. CASCADE_BASE_URL.
func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "cascadectl",
		Short:         "Query and walk dependent selection hierarchies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "YAML resolver config")
	flags.String("fixture", "", "JSON fixture served from memory instead of the API")
	flags.String("base-url", "", "API base URL, overrides api.base_url")
	flags.String("token", "", "API bearer token, overrides api.token")
	flags.Duration("timeout", 10*time.Second, "overall command timeout")
	flags.Bool("verbose", false, "log every lookup to stderr")
	flags.String("format", formatTable, "output format: table or json")
	for _, name := range persistentFlags {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix("CASCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	env := &env{v: v}
	root.AddCommand(newLookupCmd(env), newZipCmd(env), newWalkCmd(env))
	return root
}

type env struct {
	v *viper.Viper
}

type session struct {
	cfg       cascade.Config
	hierarchy cascade.Hierarchy
	provider  cascade.Provider
	logger    *zap.Logger
	format    string
}

func (e *env) open() (*session, error) {
	format := strings.ToLower(e.v.GetString("format"))
	if format != formatTable && format != formatJSON {
		return nil, fmt.Errorf("unknown format %q", format)
	}

	cfg := cascade.DefaultConfig()
	if path := e.v.GetString("config"); path != "" {
		loaded, err := cascade.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	hierarchy, err := cfg.Hierarchy()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if e.v.GetBool("verbose") {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zcfg.OutputPaths = []string{"stderr"}
		if logger, err = zcfg.Build(); err != nil {
			return nil, err
		}
	}

	s := &session{cfg: cfg, hierarchy: hierarchy, logger: logger, format: format}
	if fixture := e.v.GetString("fixture"); fixture != "" {
		s.provider, err = memory.LoadFixture(fixture, hierarchy)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	api := cfg.API
	if baseURL := e.v.GetString("base-url"); baseURL != "" {
		api.BaseURL = baseURL
	}
	if token := e.v.GetString("token"); token != "" {
		api.Token = token
	}
	if api.BaseURL == "" {
		return nil, errors.New("no data source: set --fixture, --base-url or api.base_url")
	}
	s.provider, err = httpapi.FromConfig(api, hierarchy)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// resolver builds a resolver without debounce, since input is not typed.
func (s *session) resolver() (*cascade.Resolver, error) {
	opts, err := s.cfg.Options(nil)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		cascade.WithDebounce(0),
		cascade.WithLogger(logadapter.Zap(s.logger)),
	)
	return cascade.New(s.hierarchy, s.provider, opts...)
}

func (s *session) level(name string) (cascade.Level, error) {
	level, ok := s.hierarchy.Lookup(name)
	if !ok {
		names := make([]string, 0, s.hierarchy.Len())
		for _, spec := range s.hierarchy.Levels() {
			names = append(names, spec.Name)
		}
		return 0, fmt.Errorf("%w %q (have %s)", cascade.ErrUnknownLevel, name, strings.Join(names, ", "))
	}
	return level, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}

func (e *env) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := e.v.GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}
