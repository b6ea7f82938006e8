// Command gitcored is the integration entrypoint exercising the object
// store, ref store, history walker, merge engine, and smart-HTTP transport
// together: a minimal Git server plus the handful of plumbing commands
// needed to drive it without a separate client.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/vcsforge/gitcore/config"
	"github.com/vcsforge/gitcore/githash"
	"github.com/vcsforge/gitcore/gitlog"
	"github.com/vcsforge/gitcore/merge"
	"github.com/vcsforge/gitcore/plumbing"
	"github.com/vcsforge/gitcore/plumbing/object"
	"github.com/vcsforge/gitcore/progress"
	"github.com/vcsforge/gitcore/storage"
	"github.com/vcsforge/gitcore/storage/refs"
	"github.com/vcsforge/gitcore/transport"
	gitcorehttp "github.com/vcsforge/gitcore/transport/http"
)

type Globals struct {
	ConfigFile string `name:"config" short:"c" help:"Path to a TOML configuration file" type:"path"`
	Quiet      bool   `name:"quiet" short:"q" help:"Suppress progress output"`

	cfg *config.Config
}

func (g *Globals) load() error {
	if g.ConfigFile == "" {
		g.cfg = config.Default()
		return nil
	}
	cfg, err := config.Load(g.ConfigFile, true)
	if err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

type repoPaths struct {
	objectsDir string
	refsDir    string
}

func resolveRepoPaths(root string) repoPaths {
	return repoPaths{objectsDir: filepath.Join(root, "objects"), refsDir: root}
}

func openStore(cfg config.ObjectStore, paths repoPaths) (*storage.Store, error) {
	return storage.Open(paths.objectsDir, storage.CacheConfig{
		MaxCostMB: cfg.CacheCapacity,
	})
}

// ServeCmd runs the smart-HTTP server over one or more bare repositories
// rooted at a common directory, each addressed by its path segment.
type ServeCmd struct {
	Root string `arg:"" help:"Directory containing one or more bare repositories" type:"existingdir"`
}

func (c *ServeCmd) Run(g *Globals) error {
	gitlog.Infof("gitcored: serving repositories under %s on %s", c.Root, g.cfg.Server.Listen)

	var auth *gitcorehttp.AuthProvider
	if g.cfg.Server.JWTSecret != "" {
		auth = gitcorehttp.NewAuthProvider(g.cfg.Server.JWTSecret)
	}

	resolve := func(name string) (*gitcorehttp.Repository, error) {
		root := filepath.Join(c.Root, filepath.FromSlash(name))
		if _, err := os.Stat(root); err != nil {
			return nil, fmt.Errorf("gitcored: repository %q not found: %w", name, err)
		}
		paths := resolveRepoPaths(root)
		store, err := openStore(g.cfg.ObjectStore, paths)
		if err != nil {
			return nil, err
		}
		refStore := refs.NewStore(paths.refsDir)
		return &gitcorehttp.Repository{
			Backend: store,
			Objects: store,
			Refs: struct {
				transport.RefLister
				transport.RefStore
			}{refStore, refStore},
		}, nil
	}

	srv := &gitcorehttp.Server{
		Resolve:             resolve,
		Auth:                auth,
		RequireAuthForFetch: false,
		Limits:              transport.LimitsFromConfig(g.cfg.Wire),
		Caps: transport.CapList{
			"side-band-64k":      "",
			"multi_ack_detailed": "",
			"agent":              "gitcore/1.0",
		},
	}

	httpServer := &http.Server{
		Addr:         g.cfg.Server.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  g.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: g.cfg.Server.WriteTimeout.Duration,
	}
	return httpServer.ListenAndServe()
}

// InitCmd creates an empty bare repository layout: objects/ and refs/
// directories plus a HEAD symbolic ref pointing at refs/heads/main.
type InitCmd struct {
	Path string `arg:"" help:"Directory to initialize as a bare repository" type:"path"`
}

func (c *InitCmd) Run(g *Globals) error {
	paths := resolveRepoPaths(c.Path)
	if err := os.MkdirAll(paths.objectsDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(c.Path, "refs", "heads"), 0o755); err != nil {
		return err
	}
	headPath := filepath.Join(c.Path, "HEAD")
	if _, err := os.Stat(headPath); os.IsNotExist(err) {
		if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
			return err
		}
	}
	gitlog.Infof("gitcored: initialized repository at %s", c.Path)
	return nil
}

// MergeCmd merges theirs into HEAD in an existing repository, resolving
// conflicts per the configured strategy and reporting the outcome.
type MergeCmd struct {
	Repo   string `arg:"" help:"Repository directory" type:"existingdir"`
	Theirs string `arg:"" help:"Object id of the commit to merge in"`
}

func (c *MergeCmd) Run(g *Globals) error {
	paths := resolveRepoPaths(c.Repo)
	store, err := openStore(g.cfg.ObjectStore, paths)
	if err != nil {
		return err
	}
	defer store.Close()
	refStore := refs.NewStore(paths.refsDir)

	theirs, err := githash.FromHex(c.Theirs)
	if err != nil {
		return fmt.Errorf("gitcored: %w", err)
	}

	committer := object.NewIdentity(object.SystemClock{}, "gitcored", "gitcored@localhost")
	cfg := merge.Config{
		AllowFastForward: g.cfg.Merge.AllowFastForward,
		FastForwardOnly:  g.cfg.Merge.FastForwardOnly,
		AutoResolve:      g.cfg.Merge.AutoResolve,
	}
	switch g.cfg.Merge.ConflictStrategy {
	case "ours":
		cfg.ConflictStrategy = merge.ConflictStrategyOurs
	case "theirs":
		cfg.ConflictStrategy = merge.ConflictStrategyTheirs
	default:
		cfg.ConflictStrategy = merge.ConflictStrategyManual
	}

	result, err := merge.Start(context.Background(), store, store, refStore, plumbing.HEAD, theirs, committer, cfg)
	if err != nil {
		return err
	}
	switch result.Outcome {
	case merge.OutcomeFastForward:
		fmt.Printf("fast-forward to %s\n", theirs)
	case merge.OutcomeUpToDate:
		fmt.Println("already up to date")
	case merge.OutcomeMerged:
		fmt.Printf("merged, new commit %s\n", result.Commit)
	case merge.OutcomePending:
		fmt.Println("conflicts pending resolution; run again after resolving")
	}
	return nil
}

type App struct {
	Globals
	Serve ServeCmd `cmd:"" help:"Serve repositories over smart-HTTP"`
	Init  InitCmd  `cmd:"" help:"Initialize an empty bare repository"`
	Merge MergeCmd `cmd:"" help:"Merge a commit into HEAD"`
}

func main() {
	var app App
	ctx := kong.Parse(&app,
		kong.Name("gitcored"),
		kong.Description("Smart-HTTP Git server and plumbing core"),
		kong.UsageOnError(),
	)
	if err := app.Globals.load(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = progress.New(app.Globals.Quiet)
	if err := ctx.Run(&app.Globals); err != nil {
		gitlog.Errorf("gitcored: %v", err)
		os.Exit(1)
	}
}
