package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cexll/taskgraph/internal/config"
	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/render"
	"github.com/cexll/taskgraph/internal/store"
	"github.com/cexll/taskgraph/internal/tools"
	"github.com/cexll/taskgraph/internal/tracker"
	"github.com/cexll/taskgraph/internal/web"
)

const (
	serverName      = "taskgraph"
	serverVersion   = "v1.0.0"
	shutdownTimeout = 5 * time.Second
)

var (
	loadDotEnv = godotenv.Load
	loadConfig = config.Load
	listen     = net.Listen
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("[taskgraph] %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskgraph",
		Short: "Task graph tracker for autonomous coding agents",
		Long: `taskgraph keeps projects, versioned plans and a dependency graph of tasks
and exposes them to agents as MCP tools over stdio. An optional read-only
dashboard is served over HTTP when ENABLE_GUI is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve MCP tools on stdio (and the dashboard when enabled)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "projects",
			Short: "Print stored projects with their active plan summary",
			RunE:  runProjects,
		},
		newTokenCmd(),
	)
	return root
}

func newTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupConfig()
			if err != nil {
				return err
			}
			auth := web.NewAuth(cfg.DashboardJWTSecret)
			if auth == nil {
				return errors.New("DASHBOARD_JWT_SECRET is not set")
			}
			token, err := auth.IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dashboard", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", web.DefaultTokenTTL, "token lifetime")
	return cmd
}

func setupConfig() (*config.Config, error) {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// app is the wired set of components behind every command.
type app struct {
	cfg      *config.Config
	tracker  *tracker.Tracker
	renderer *render.Renderer
	tools    *tools.Handlers
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}
	t, err := tracker.New(st, tracker.Options{PassScore: cfg.VerifyPassScore})
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	r, err := render.New(cfg.TemplatesLocale)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	policy, err := tracker.ParseRemovePolicy(cfg.RemovePolicy)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		tracker:  t,
		renderer: r,
		tools:    tools.New(t, r, policy),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	var ln net.Listener
	if cfg.EnableGUI {
		ln, err = listen("tcp", fmt.Sprintf(":%d", cfg.WebPort))
		if err != nil {
			return fmt.Errorf("dashboard failed to listen: %w", err)
		}
	}
	return a.serve(cmd.Context(), &mcp.StdioTransport{}, ln)
}

// serve runs the MCP server on transport and, when ln is non-nil, the
// dashboard on ln. It returns once the context is cancelled or the MCP
// session ends, after the dashboard has shut down.
func (a *app) serve(ctx context.Context, transport mcp.Transport, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("[taskgraph] Starting %s %s", serverName, serverVersion)
	log.Printf("[taskgraph] Data directory: %s", a.cfg.DataDir)
	log.Printf("[taskgraph] Templates locale: %s, pass score: %d, remove policy: %s",
		a.renderer.Locale(), a.tracker.PassScore(), a.cfg.RemovePolicy)

	g, gctx := errgroup.WithContext(ctx)

	if ln != nil {
		dashboard, err := a.dashboard()
		if err != nil {
			ln.Close()
			return err
		}
		log.Printf("[Dashboard] Listening on %s", ln.Addr())
		if a.cfg.DashboardJWTSecret == "" {
			log.Printf("[Dashboard] Authentication disabled")
		}

		g.Go(func() error {
			if err := dashboard.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("dashboard failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			log.Printf("[Dashboard] Shutting down")
			return dashboard.Shutdown(shutdownCtx)
		})
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	a.tools.Register(server)

	g.Go(func() error {
		defer cancel()
		log.Println("[MCP] Starting on stdio transport...")
		err := server.Run(gctx, transport)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp server failed: %w", err)
		}
		log.Println("[MCP] Server stopped gracefully")
		return nil
	})

	return g.Wait()
}

func (a *app) dashboard() (*http.Server, error) {
	handler, err := web.NewHandler(a.tracker)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dashboard: %w", err)
	}
	return &http.Server{
		Handler:           handler.Router(web.NewAuth(a.cfg.DashboardJWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	cfg, err := setupConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	return a.printProjects(cmd.OutOrStdout())
}

func (a *app) printProjects(out io.Writer) error {
	projects := a.tracker.ListProjects()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects.")
		return nil
	}

	currentID := ""
	if cur, err := a.tracker.CurrentProject(); err == nil {
		currentID = cur.ID
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tPLAN\tTASKS\tREADY\tDONE")
	for _, p := range projects {
		sum, err := a.tracker.Summarize(p.ID)
		if err != nil {
			return err
		}
		marker := ""
		if p.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\tv%d\t%d\t%d\t%d\n",
			marker, p.ID, p.Name, sum.PlanVersion, sum.Total, sum.Ready, sum.Counts[domain.StatusCompleted])
	}
	return w.Flush()
}
