// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
handler is a package that provides net/http middleware and handlers (in the
form of http.HandlerFunc) which run an aad.SessionValidator for incoming
requests and send the redirects it decides on.
*/
package handler
