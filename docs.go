// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// wpo365 provides packages which let a web application require an Azure AD
// login (the v1 hybrid flow with a form_post response) before serving its
// pages, and exchange the login's authorization code for access tokens.
//
// The packages are:
//
//	aad             the session validator, flow initiator, token processor
//	                and token exchange client
//	aad/handler     net/http middleware and handlers for aad
//	aad/redisstore  a Redis backed aad.ArtifactStore
//	jwt             id_token verification against published signing keys
//
// cmd/wpo365 is a demo application using all of them.
package wpo365
