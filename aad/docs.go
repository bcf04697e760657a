// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package aad logs users of a web application in with Azure AD, using the
provider's v1 hybrid flow (response_type "id_token code" with a form_post
response).

Primary types provided by the package:

  - Config: the tenant, the application's registration and the behavior of
    the login (scenario, blacklisted pages, login and site URLs, resources
    and artifact lifetimes).

  - SessionValidator: decides for every request whether the client may
    continue, needs to log in with Azure AD or is sent to the local login
    page. A callback from the provider is handed to its TokenProcessor.

  - FlowInitiator: stores a nonce for the client and builds the authorize
    URL.

  - TokenProcessor: verifies the id_token posted back by the provider,
    checks its nonce and maps it to a host account.

  - ExchangeClient: gets access tokens for other resources with the client's
    refresh token or authorization code.

  - ArtifactStore: the client scoped state of a login (nonce, code, auth
    marker and refresh tokens). MemoryStore and CookieStore are provided,
    package redisstore keeps artifacts in Redis.

Redirects are never written by the components. They return an Outcome and
the caller sends it, see package handler for net/http middleware doing so.

The host application provides its accounts and sessions by implementing
IdentityStore and LocalSession.

StartTestProvider starts a local Azure AD look-alike which makes testing a
complete login easy.
*/
package aad
