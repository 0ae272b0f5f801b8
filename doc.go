// Package accountd is the session and verification core of an account-and-
// login service fronting an external OAuth2 authorization server. It owns
// the multi-step user journeys (signup, password recovery, two-factor login
// verification, email change), the short-lived secret-keyed records that
// carry them across requests, the trusted-device history, the attempt
// throttles, and the transactional outbox announcing email changes to
// subscribers.
//
// Rendering, localization, CAPTCHA scoring and mail delivery are external
// collaborators injected through small interfaces; the package never speaks
// HTML.
package accountd
