package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/notesprefs/internal/api"
	"github.com/kalambet/notesprefs/internal/catalog"
	"github.com/kalambet/notesprefs/internal/config"
	"github.com/kalambet/notesprefs/internal/settings"
	"github.com/kalambet/notesprefs/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the notesprefs server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running notesprefs server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show notesprefs server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP over stdin/stdout alongside HTTP")
}

// preferenceStore is a settings.Store that owns a connection.
type preferenceStore interface {
	settings.Store
	Close() error
}

func openStore(ctx context.Context, cfg config.Config) (preferenceStore, error) {
	if cfg.Storage.Backend == config.BackendRedis {
		s, err := storage.NewRedisStore(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisNamespace)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "notesprefs.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "notesprefs version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("Opening %s storage", cfg.Storage.Backend)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	mgr := settings.NewManager(catalog.Registry(), store)
	caps := cfg.Capabilities()

	handler := api.NewAppHandler(api.AppDeps{
		Manager: mgr,
		Token:   apiToken,
		Caps:    caps,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.Server.MaxConns)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Manager: mgr, Caps: caps, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		printSuccess("notesprefs listening on %s (platform %d, max %d conns)", addr, caps.PlatformVersion, cfg.Server.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("notesprefs is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop notesprefs (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to notesprefs (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		printStatus("Redis", "%s (namespace %s)", cfg.Storage.RedisAddr, cfg.Storage.RedisNamespace)
	default:
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("Platform", "%d", cfg.Runtime.PlatformVersion)
	printStatus("Domains", "%d", len(catalog.Registry().Keys()))

	if running {
		if c, err := newAPIClient(); err == nil {
			if resp, err := c.get(ctx, "/preferences"); err == nil {
				var sels []api.SelectionDoc
				if decodeJSON(resp, &sels) == nil {
					stored, normalized := 0, 0
					for _, s := range sels {
						if s.Stored {
							stored++
						}
						if s.Normalized {
							normalized++
						}
					}
					printStatus("Stored", "%d of %d", stored, len(sels))
					if normalized > 0 {
						printWarning("%d stored values are unknown and read as defaults", normalized)
					}
				}
			}
		}
	}
	return nil
}
