// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by all commands.
type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func (o *rootOptions) logger(w io.Writer) (hclog.Logger, error) {
	level := hclog.LevelFromString(o.logLevel)
	if level == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", o.logLevel)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "wpo365",
		Level:      level,
		Output:     w,
		JSONFormat: o.logJSON,
	}), nil
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "wpo365",
		Short: "Azure AD login for web applications",
		Long: `wpo365 runs a demo web application whose pages require an Azure AD
login (the v1 hybrid flow with a form_post response), and inspects the
signing keys a tenant publishes.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "wpo365 version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "wpo365.yaml", "path of the YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: "+strings.Join([]string{"trace", "debug", "info", "warn", "error"}, ", "))
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "log in JSON")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newKeysCmd(opts))
	cmd.AddCommand(newMessagesCmd())
	return cmd
}
