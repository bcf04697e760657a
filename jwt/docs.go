// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package jwt verifies id_tokens issued by Azure AD against the signing keys the
provider publishes.

Primary types provided by the package:

  - KeySet: the provider's key discovery document, indexed by kid.

  - KeySource: supplies the current KeySet. RemoteKeySource fetches it on every
    call; CachingKeySource keeps it and refetches when a token names a kid it
    doesn't know.

  - Validator: decodes a token's header, looks up the key named by its kid,
    and verifies the signature with the algorithm named in the header as long
    as it is part of the validator's allow-list. Expiry, issuer and audience
    are checked as well.
*/
package jwt
