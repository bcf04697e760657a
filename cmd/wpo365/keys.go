// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/asoet/wpo365-login/jwt"
)

func newKeysCmd(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List the signing keys published by the provider",
		Long: `Fetches the provider's key discovery document, as configured by the
authority (or keys URL) of the configuration, and lists its keys.`,
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
			c, err := fc.aadConfig()
			if err != nil {
				return err
			}
			keyOpts := []jwt.Option{jwt.WithProviderCA(c.ProviderCA), jwt.WithLogger(logger)}
			if c.InsecureSkipVerify {
				keyOpts = append(keyOpts, jwt.WithInsecureSkipVerify())
			}
			src, err := jwt.NewRemoteKeySource(c.KeysURL, keyOpts...)
			if err != nil {
				return err
			}
			ks, err := src.Keys(cmd.Context())
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ks)
			case "table":
				renderKeys(cmd.OutOrStdout(), ks)
				return nil
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func renderKeys(w io.Writer, ks *jwt.KeySet) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"KID", "TYPE", "USE", "SUBJECT", "NOT AFTER"})
	for _, k := range ks.Keys {
		subject, notAfter := "-", "-"
		if raw, err := ks.Find(k.KeyID); err == nil {
			if cert, err := parseCertificate(raw); err == nil {
				subject = cert.Subject.String()
				notAfter = cert.NotAfter.UTC().Format(time.RFC3339)
			}
		}
		t.AppendRow(table.Row{k.KeyID, k.KeyType, k.Use, subject, notAfter})
	}
	t.AppendFooter(table.Row{"", "", "", "TOTAL", len(ks.Keys)})
	t.Render()
}

func parseCertificate(raw string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(raw), ""))
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}
