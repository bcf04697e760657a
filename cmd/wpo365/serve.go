// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo web application",
		Long: `Serves a small web application whose pages require an Azure AD login.
Pages under the admin prefix are treated as privileged. Login artifacts are
kept in sealed cookies, or in Redis when a Redis address is
configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fc, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				fc.Server.Listen = listen
			}
			a, err := newApp(fc, logger, otel.GetMeterProvider())
			if err != nil {
				return err
			}
			defer a.Close()
			h, err := a.handler()
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              fc.Server.Listen,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", srv.Addr, "tls", fc.Server.tls(), "redirect_url", a.config.RedirectURL)
				if fc.Server.tls() {
					errCh <- srv.ListenAndServeTLS(fc.Server.TLSCertFile, fc.Server.TLSKeyFile)
					return
				}
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), fc.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on, overrides server.listen")
	return cmd
}
