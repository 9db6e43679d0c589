// drivepane terminal client
//
// Browses, uploads, downloads, previews and deletes files on a drivepane
// server. The session token lives in ~/.config/drivepane/token.json and is
// created with "drivepane login".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/actions"
	"github.com/drivepane/drivepane/internal/clientconfig"
	"github.com/drivepane/drivepane/internal/events"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/navigation"
	"github.com/drivepane/drivepane/internal/tui"
	"github.com/drivepane/drivepane/internal/upload"
	"github.com/drivepane/drivepane/pkg/client"
)

var (
	cfgFile     string
	profileName string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "drivepane",
		Short:         "Terminal file manager for a drivepane server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runUI,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default "+clientconfig.DefaultPath()+")")
	root.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "config profile")

	root.AddCommand(newLoginCmd(), newLogoutCmd())
	return root
}

// session bundles what every command needs from the profile.
type session struct {
	profile *clientconfig.Profile
	client  *client.Client
	store   *client.TokenStore
}

func loadSession() (*session, error) {
	p, err := clientconfig.Load(cfgFile, profileName)
	if err != nil {
		return nil, err
	}
	if p.LogFile != "" {
		if err := logging.Init(logging.Config{Level: p.LogLevel, Format: "json", OutputPath: p.LogFile}); err != nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
	} else {
		logging.InitNop()
	}
	return &session{
		profile: p,
		client:  client.New(client.Config{BaseURL: p.ServerURL}),
		store:   client.NewTokenStore(p.TokenFile),
	}, nil
}

func runUI(cmd *cobra.Command, _ []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	defer logging.Sync()
	defer s.client.Close()
	ctx := cmd.Context()

	tf, err := s.store.Load()
	if err != nil {
		return err
	}
	if tf == nil || tf.IsExpired(0) {
		return fmt.Errorf("not logged in to %s; run \"drivepane login\" first", s.profile.ServerURL)
	}

	maxSize, pageSize := s.profile.MaxFileSize, s.profile.PageSize
	if sc, err := s.client.Config(ctx); err != nil {
		logging.Warn("could not read server limits", zap.Error(err))
	} else if sc.MaxFileSize > 0 && sc.MaxFileSize < maxSize {
		maxSize = sc.MaxFileSize
	}

	logging.Info("starting drivepane",
		zap.String("profile", s.profile.Name),
		zap.String("server", s.profile.ServerURL),
		zap.String("user", tf.Username))

	bus := events.NewBroadcaster()
	nav := navigation.New(s.client, s.store, navigation.Options{PageSize: pageSize, Events: bus})
	queue := upload.NewQueue(s.client, s.store, upload.Options{MaxFileSize: maxSize, Events: bus})
	runner := actions.New(s.client, s.store, nav, actions.Options{
		DownloadDir: s.profile.DownloadDir,
		ViewerURL:   s.client.ViewerURL,
	})

	err = tui.Run(ctx, tui.Deps{
		Nav:     nav,
		Queue:   queue,
		Actions: runner,
		Events:  bus,
		Server:  s.profile.ServerURL,
		User:    tf.Username,
	})
	queue.Wait()
	return err
}
