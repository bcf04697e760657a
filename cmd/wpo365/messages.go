// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asoet/wpo365-login/aad"
)

func newMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages CODES",
		Short: "Print the messages users see for login error codes",
		Long: `Prints the message shown on the local login page for each code of a
comma separated login_errors value, e.g. "TAMPERED_WITH,CHECK_LOG".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs := aad.LoginMessages(args[0])
			if len(msgs) == 0 {
				return fmt.Errorf("no login error codes in %q", args[0])
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(msgs, "\n"))
			return err
		},
	}
}
