// Command portalctl is a terminal client for the portal API. It keeps one
// signed-in session per role in a local file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/medportal/portal/pkg/client"
	"github.com/medportal/portal/pkg/poll"
	"github.com/medportal/portal/pkg/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries settings resolved from flags and PORTAL_* environment variables.
type app struct {
	v   *viper.Viper
	out io.Writer
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "portal", "session.json")
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	rootCmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Command line client for the medical portal",
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "http://localhost:8000", "Portal API base URL")
	flags.String("session-file", defaultSessionFile(), "Where signed-in sessions are stored")
	flags.Duration("poll-interval", poll.DefaultInterval, "Refresh interval for --watch")

	a.v.SetEnvPrefix("PORTAL")
	a.v.AutomaticEnv()
	_ = a.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = a.v.BindPFlag("session_file", flags.Lookup("session-file"))
	_ = a.v.BindPFlag("poll_interval", flags.Lookup("poll-interval"))

	rootCmd.AddCommand(a.loginCmd())
	rootCmd.AddCommand(a.logoutCmd())
	rootCmd.AddCommand(a.whoamiCmd())
	rootCmd.AddCommand(a.labCmd())
	rootCmd.AddCommand(a.appointmentsCmd())
	rootCmd.AddCommand(a.testsCmd())
	rootCmd.AddCommand(a.aiCmd())

	return rootCmd
}

func (a *app) store() *session.FileStorage {
	return session.NewFileStorage(a.v.GetString("session_file"))
}

func (a *app) client(token string) *client.Client {
	return client.New(a.v.GetString("api_url"), client.WithToken(token))
}

func (a *app) pollInterval() time.Duration {
	return a.v.GetDuration("poll_interval")
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
