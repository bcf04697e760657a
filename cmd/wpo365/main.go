// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// wpo365 runs a demo web application protected by an Azure AD login and
// inspects a tenant's published signing keys.
package main

import "os"

// version can be set during build with -ldflags
var version = "dev"

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
