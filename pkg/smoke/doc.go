// Package smoke implements the login-flow smoke test: a single browser
// scenario that opens the application under test, walks an optional
// OAuth-style login redirect and asserts the signed-in identity.
//
// The scenario talks to the browser only through the Page and Element
// capabilities, so it can run against real Chrome (see package
// smoke/browser) or against an in-memory fake in unit tests.
//
// Scenario steps:
//
//  1. Navigate to Config.TargetURL.
//  2. If the body holds an entry control (Config.EntrySelector), click it
//     and wait for the URL to change.
//  3. If the new URL carries the authorization marker (state=), inject the
//     credentials into the value attributes of the login form, submit, and
//     wait for the URL to return to the application (Config.ReturnMarker).
//  4. Click the entry control again and assert that Config.NameSelector
//     shows exactly Config.ExpectedName.
//
// Every failure is terminal. There is no retry beyond the bounded polls in
// WaitUntil and the assertion window.
package smoke
