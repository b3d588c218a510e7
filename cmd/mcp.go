package cmd

import (
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jcdickinson/ferrisfind/internal/config"
	"github.com/jcdickinson/ferrisfind/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdio (same as running with no subcommand)",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	server, err := mcp.NewServer(config.SocketPath(), cfg.Search.Limit, binaryName())
	if err != nil {
		log.Fatalf("failed to create MCP server: %v", err)
	}

	errCh := make(chan error)
	go func() { errCh <- server.Run() }()

	if err := waitForSignal(errCh); err != nil {
		log.Fatalf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

func waitForSignal(errCh chan error) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Printf("received signal: %s", sig)
		return nil
	case err := <-errCh:
		return err
	}
}

// binaryName returns "ferrisfind" if that name on PATH resolves to the
// running binary, otherwise the full path to the binary.
func binaryName() string {
	const name = "ferrisfind"

	exe, err := os.Executable()
	if err != nil {
		return name
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return name
	}

	if onPath, err := exec.LookPath(name); err == nil {
		if resolved, err := filepath.EvalSymlinks(onPath); err == nil && resolved == exe {
			return name
		}
	}
	return exe
}
